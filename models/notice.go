package models

// NoticeRecord holds the labeled fields read from a rendered notice page.
// Every field is independently nullable: a label missing from the page
// serialises as null, never as an absent key.
type NoticeRecord struct {
	Local               *string `json:"local"`
	Orgao               *string `json:"orgao"`
	Modalidade          *string `json:"modalidade"`
	AmparoLegal         *string `json:"amparoLegal"`
	Tipo                *string `json:"tipo"`
	ModoDisputa         *string `json:"modoDisputa"`
	RegistroPreco       *string `json:"registroPreco"`
	DataInicioPropostas *string `json:"dataInicioPropostas"`
	DataFimPropostas    *string `json:"dataFimPropostas"`
	IDContratacao       *string `json:"idContratacao"`
	Fonte               *string `json:"fonte"`
	UnidadeCompradora   *string `json:"unidadeCompradora"`
	Objeto              *string `json:"objeto"`
	ValorTotalEstimado  *string `json:"valorTotalEstimado"`
}

// DownloadLink is an attachment URL found on the page.
type DownloadLink struct {
	URL string `json:"url"`

	// Excluded is true when the URL carries the ignore-deletion flag set to
	// "false"; excluded links are never fetched.
	Excluded bool `json:"excluded"`
}

// RetainedLinks returns the links that are not excluded, in original order.
func RetainedLinks(links []DownloadLink) []DownloadLink {
	out := make([]DownloadLink, 0, len(links))
	for _, l := range links {
		if !l.Excluded {
			out = append(out, l)
		}
	}
	return out
}

// DownloadedFile is one retrieved attachment, still in raw form.
type DownloadedFile struct {
	// Ordinal is the 1-based discovery index of the source link.
	Ordinal     int
	Name        string
	Content     []byte
	ContentType string
	SourceURL   string
}

// Size returns the payload length in bytes.
func (f *DownloadedFile) Size() int64 {
	return int64(len(f.Content))
}
