package extractor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/edital/models"
)

// Strategy says where a field's value lives relative to its label.
type Strategy int

const (
	// SameBlock reads the first value node inside the labelled paragraph.
	SameBlock Strategy = iota
	// NextBlock reads the first value node inside the paragraph's next
	// element sibling.
	NextBlock
	// NthInBlock reads the Nth value node inside the labelled paragraph.
	NthInBlock
	// ContainerScan looks for the label in container blocks instead of
	// paragraphs and reads the first value node inside the container.
	ContainerScan
)

func (s Strategy) String() string {
	switch s {
	case SameBlock:
		return "same-block"
	case NextBlock:
		return "next-block"
	case NthInBlock:
		return "nth-in-block"
	case ContainerScan:
		return "container-scan"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Purchasing-unit value variants accepted from configuration.
const (
	VariantFirst  = "first"
	VariantSecond = "second"
	VariantAuto   = "auto"
)

// Rule maps one label to one record field.
type Rule struct {
	Field    string
	Label    string
	Strategy Strategy

	// Nth is the 1-based value node for NthInBlock. Zero picks the second
	// node when the block has one, the first otherwise.
	Nth int

	Target func(*models.NoticeRecord) **string
}

// Apply evaluates the rule against doc. A missing label or value yields nil.
func (r Rule) Apply(doc *goquery.Document) *string {
	switch r.Strategy {
	case SameBlock:
		block := findBlock(doc.Selection, paragraphs, r.Label)
		if block == nil {
			return nil
		}
		return textOf(block.FindMatcher(valueMatcher).First())

	case NextBlock:
		block := findBlock(doc.Selection, paragraphs, r.Label)
		if block == nil {
			return nil
		}
		return textOf(block.Next().FindMatcher(valueMatcher).First())

	case NthInBlock:
		block := findBlock(doc.Selection, paragraphs, r.Label)
		if block == nil {
			return nil
		}
		values := block.FindMatcher(valueMatcher)
		n := r.Nth
		if n <= 0 {
			n = 1
			if values.Length() >= 2 {
				n = 2
			}
			slog.Debug("value variant detected", "field", r.Field, "node", n, "candidates", values.Length())
		}
		return textOf(values.Eq(n - 1))

	case ContainerScan:
		block := findBlock(doc.Selection, containers, r.Label)
		if block == nil {
			return nil
		}
		return textOf(block.FindMatcher(valueMatcher).First())
	}
	return nil
}

type blockKind int

const (
	paragraphs blockKind = iota
	containers
)

// findBlock returns the first block, in document order, whose first label
// node contains label as a substring.
func findBlock(root *goquery.Selection, kind blockKind, label string) *goquery.Selection {
	m := paragraphMatcher
	if kind == containers {
		m = containerMatcher
	}

	var found *goquery.Selection
	root.FindMatcher(m).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		strong := s.FindMatcher(labelMatcher).First()
		if strong.Length() > 0 && strings.Contains(strong.Text(), label) {
			found = s
			return false
		}
		return true
	})
	return found
}

// DefaultRules returns the rule table for PNCP notice pages.
// purchasingUnitNth is passed through to the "Unidade compradora" rule.
func DefaultRules(purchasingUnitNth int) []Rule {
	return []Rule{
		{Field: "local", Label: "Local", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.Local }},
		{Field: "orgao", Label: "Órgão", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.Orgao }},
		{Field: "modalidade", Label: "Modalidade da contratação", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.Modalidade }},
		{Field: "amparoLegal", Label: "Amparo legal", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.AmparoLegal }},
		{Field: "tipo", Label: "Tipo", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.Tipo }},
		{Field: "modoDisputa", Label: "Modo de disputa", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.ModoDisputa }},
		{Field: "registroPreco", Label: "Registro de preço", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.RegistroPreco }},
		{Field: "dataInicioPropostas", Label: "Data de início de recebimento de propostas", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.DataInicioPropostas }},
		{Field: "dataFimPropostas", Label: "Data fim de recebimento de propostas", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.DataFimPropostas }},
		{Field: "idContratacao", Label: "Id contratação PNCP", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.IDContratacao }},
		{Field: "fonte", Label: "Fonte", Strategy: SameBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.Fonte }},
		{Field: "unidadeCompradora", Label: "Unidade compradora", Strategy: NthInBlock, Nth: purchasingUnitNth,
			Target: func(r *models.NoticeRecord) **string { return &r.UnidadeCompradora }},
		{Field: "objeto", Label: "Objeto", Strategy: NextBlock,
			Target: func(r *models.NoticeRecord) **string { return &r.Objeto }},
		{Field: "valorTotalEstimado", Label: "VALOR TOTAL ESTIMADO DA COMPRA", Strategy: ContainerScan,
			Target: func(r *models.NoticeRecord) **string { return &r.ValorTotalEstimado }},
	}
}

// PurchasingUnitNth maps a configured variant name to a value-node index.
func PurchasingUnitNth(variant string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(variant)) {
	case VariantFirst:
		return 1, nil
	case VariantSecond, "":
		return 2, nil
	case VariantAuto:
		return 0, nil
	default:
		return 0, fmt.Errorf("extractor: unknown purchasing unit variant %q (want first, second or auto)", variant)
	}
}

// Extractor runs a fixed rule table against rendered documents.
// It holds no per-request state and is safe for concurrent use.
type Extractor struct {
	rules []Rule
}

// New creates an Extractor over the given rules.
func New(rules []Rule) *Extractor {
	return &Extractor{rules: rules}
}

// NewDefault creates an Extractor with DefaultRules for the given
// purchasing-unit variant.
func NewDefault(purchasingUnitVariant string) (*Extractor, error) {
	nth, err := PurchasingUnitNth(purchasingUnitVariant)
	if err != nil {
		return nil, err
	}
	return New(DefaultRules(nth)), nil
}

// Extract evaluates every rule. It never fails: absent labels leave the
// corresponding field nil.
func (e *Extractor) Extract(doc *goquery.Document) models.NoticeRecord {
	var rec models.NoticeRecord
	missing := 0
	for _, r := range e.rules {
		v := r.Apply(doc)
		*r.Target(&rec) = v
		if v == nil {
			missing++
			slog.Debug("field not found", "field", r.Field, "label", r.Label, "strategy", r.Strategy.String())
		}
	}
	slog.Debug("fields extracted", "total", len(e.rules), "missing", missing)
	return rec
}
