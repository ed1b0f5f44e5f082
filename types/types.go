package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type FileType string

const (
	FilePDF  FileType = "pdf"
	FileText FileType = "txt"
	FilePNG  FileType = "png"
	FileJPG  FileType = "jpg"
	FileJPEG FileType = "jpeg"
)

// IsImage reports whether the file type is handled by OCR.
func (t FileType) IsImage() bool {
	return t == FilePNG || t == FileJPG || t == FileJPEG
}

type Chunk struct {
	ID        uuid.UUID `json:"chunk_id"`
	DocID     string    `json:"doc_id"`
	Filename  string    `json:"filename"`
	Page      int       `json:"page"`
	Paragraph int       `json:"paragraph"`
	Position  int       `json:"position"`
	Content   string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Score     float64   `json:"score,omitempty"`
}

// Citation returns the (document, page, paragraph) reference of the chunk.
func (c Chunk) Citation() Citation {
	return Citation{DocID: c.DocID, Page: c.Page, Paragraph: c.Paragraph}
}

type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Type       FileType  `json:"type"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"upload_time"`
	Text       string    `json:"text,omitempty"`
	PageCount  int       `json:"page_count"`
	ChunkCount int       `json:"chunk_count"`
	Chunks     []Chunk   `json:"-"`
}

type Citation struct {
	DocID     string `json:"doc_id"`
	Page      int    `json:"page"`
	Paragraph int    `json:"paragraph"`
}

func (c Citation) String() string {
	return fmt.Sprintf("Page %d, Para %d", c.Page, c.Paragraph)
}

type Answer struct {
	DocID     string `json:"doc_id"`
	Filename  string `json:"filename"`
	Answer    string `json:"answer"`
	Citation  string `json:"citation"`
	Page      int    `json:"page"`
	Paragraph int    `json:"paragraph"`
}

type Theme struct {
	Name                string   `json:"name"`
	Summary             string   `json:"summary"`
	SupportingDocuments []string `json:"supporting_documents"`
	DocumentCount       int      `json:"document_count"`
}

type ThemeAnalysis struct {
	Themes    []Theme `json:"themes"`
	Synthesis string  `json:"synthesis"`
}

type QueryRecord struct {
	ID                uuid.UUID     `json:"id"`
	Query             string        `json:"query"`
	Timestamp         time.Time     `json:"timestamp"`
	ChunkIDs          []uuid.UUID   `json:"chunk_ids"`
	Answers           []Answer      `json:"answers"`
	Themes            ThemeAnalysis `json:"themes"`
	TotalDocsSearched int           `json:"total_docs_searched"`
}

// Citations lists the references carried by the record's answers.
func (q QueryRecord) Citations() []Citation {
	out := make([]Citation, 0, len(q.Answers))
	for _, a := range q.Answers {
		out = append(out, Citation{DocID: a.DocID, Page: a.Page, Paragraph: a.Paragraph})
	}
	return out
}
