package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const DefaultSearchResults = 20

var validate = validator.New()

type Validater interface {
	Validate() map[string]string
}

type ChatQuery struct {
	Query string `json:"query" validate:"required,max=2000"`
}

type SearchQuery struct {
	Query    string `json:"query" validate:"required,max=2000"`
	NResults int    `json:"n_results" validate:"gte=1,lte=100"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// ValidateStruct runs the struct tags of v and reports failures keyed by field name.
func ValidateStruct(v any) map[string]string {
	if err := validate.Struct(v); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}

func (params *ChatQuery) Validate() map[string]string {
	return ValidateStruct(params)
}

func (params *SearchQuery) Validate() map[string]string {
	if params.NResults == 0 {
		params.NResults = DefaultSearchResults
	}
	return ValidateStruct(params)
}

type SearchMetadata struct {
	DocID     string `json:"doc_id"`
	Filename  string `json:"filename"`
	Page      int    `json:"page"`
	Paragraph int    `json:"paragraph"`
	ChunkID   string `json:"chunk_id"`
}

type SearchResult struct {
	Text     string         `json:"text"`
	Metadata SearchMetadata `json:"metadata"`
	Score    float64        `json:"score"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

type ChatResponse struct {
	Query             string        `json:"query"`
	Timestamp         time.Time     `json:"timestamp"`
	Answers           []Answer      `json:"answers"`
	Themes            ThemeAnalysis `json:"themes"`
	TotalDocsSearched int           `json:"total_docs_searched"`
}

type UploadResult struct {
	ID         string    `json:"id,omitempty"`
	Filename   string    `json:"filename"`
	Type       FileType  `json:"type,omitempty"`
	Size       int64     `json:"size,omitempty"`
	UploadTime time.Time `json:"upload_time,omitempty"`
	PageCount  int       `json:"page_count,omitempty"`
	Paragraphs int       `json:"paragraphs"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
}

type UploadResponse struct {
	Results        []UploadResult `json:"results"`
	TotalDocuments int            `json:"total_documents"`
}
