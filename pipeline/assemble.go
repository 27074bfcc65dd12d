package pipeline

import (
	"encoding/base64"
	"fmt"

	"github.com/use-agent/edital/models"
)

// FailureMessage is the top-level message of every failed response.
const FailureMessage = "Error processing URL"

// Assemble composes the success response. Content is standard base64.
func Assemble(record models.NoticeRecord, files []models.DownloadedFile) *models.NoticeResponse {
	results := make([]models.FileResult, len(files))
	for i := range files {
		f := &files[i]
		results[i] = models.FileResult{
			Name:        f.Name,
			Content:     base64.StdEncoding.EncodeToString(f.Content),
			ContentType: f.ContentType,
			Size:        f.Size(),
			SourceURL:   f.SourceURL,
		}
	}
	return &models.NoticeResponse{
		Success: true,
		Data:    &record,
		Message: fmt.Sprintf("Successfully downloaded %d files.", len(files)),
		Files:   results,
	}
}

// Failure composes the failure response for err.
func Failure(err error) *models.NoticeResponse {
	return &models.NoticeResponse{
		Success: false,
		Message: FailureMessage,
		Error:   models.AsPipelineError(err).ToDetail(),
	}
}
