package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/edital/models"
)

func main() {
	apiURL := os.Getenv("EDITAL_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:3000"
	}
	apiKey := os.Getenv("EDITAL_API_KEY")

	s := server.NewMCPServer(
		"edital",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeNoticeTool := mcp.NewTool("scrape_notice",
		mcp.WithDescription("Render a PNCP public procurement notice page, return its labeled fields (local, órgão, modalidade, objeto, valor total estimado, ...) and the list of downloaded attachments."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute URL of the notice page, e.g. https://pncp.gov.br/app/editais/<cnpj>/<ano>/<sequencial>"),
		),
		mcp.WithBoolean("include_content",
			mcp.Description("Attach every downloaded file as an embedded resource (default: false, names and sizes only)"),
		),
	)
	s.AddTool(scrapeNoticeTool, handleScrapeNotice(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the edital API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(apiURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleScrapeNotice(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		includeContent := request.GetBool("include_content", false)

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/notices/scrape", models.NoticeRequest{URL: url})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp models.NoticeResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			errMsg := "notice processing failed"
			if resp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return noticeResult(url, &resp, includeContent), nil
	}
}

// noticeResult renders the record as indented JSON followed by the file list.
func noticeResult(url string, resp *models.NoticeResponse, includeContent bool) *mcp.CallToolResult {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\n%s\n\n", url, resp.Message)

	record, _ := json.MarshalIndent(resp.Data, "", "  ")
	sb.WriteString("Record:\n")
	sb.Write(record)
	sb.WriteString("\n\nFiles:\n")
	for i, f := range resp.Files {
		fmt.Fprintf(&sb, "%d. %s (%s, %d bytes) %s\n", i+1, f.Name, f.ContentType, f.Size, f.SourceURL)
	}

	result := mcp.NewToolResultText(sb.String())
	if includeContent {
		for _, f := range resp.Files {
			mimeType := f.ContentType
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			result.Content = append(result.Content, mcp.NewEmbeddedResource(mcp.BlobResourceContents{
				URI:      f.SourceURL,
				MIMEType: mimeType,
				Blob:     f.Content,
			}))
		}
	}
	return result
}
