package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"docqa/model"
	"docqa/types"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Extractor turns uploaded bytes into text with "[Page N]" markers.
type Extractor struct {
	ocr    model.TextRecognizer
	logger *slog.Logger
}

// NewExtractor builds an extractor. ocr may be nil, in which case images are
// rejected and images embedded in PDFs are skipped.
func NewExtractor(ocr model.TextRecognizer, logger *slog.Logger) *Extractor {
	return &Extractor{ocr: ocr, logger: logger}
}

// Extract returns the document text and its page count.
func (e *Extractor) Extract(ctx context.Context, ft types.FileType, mimeType string, data []byte) (string, int, error) {
	switch {
	case ft == types.FileText:
		return extractText(data), 1, nil
	case ft == types.FilePDF:
		return e.extractPDF(ctx, data)
	case ft.IsImage():
		text, err := e.recognize(ctx, data, mimeType)
		if err != nil {
			return "", 0, err
		}
		return text, 1, nil
	default:
		return "", 0, fmt.Errorf("%s files: %w", ft, types.ErrUnsupportedType)
	}
}

func extractText(data []byte) string {
	s := strings.ToValidUTF8(string(data), "")
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func (e *Extractor) recognize(ctx context.Context, img []byte, mimeType string) (string, error) {
	if e.ocr == nil {
		return "", types.ErrOCRUnavailable
	}
	text, err := e.ocr.Recognize(ctx, img, mimeType)
	if err != nil {
		if errors.Is(err, types.ErrLLMUnavailable) || errors.Is(err, types.ErrExtractionFailed) || ctx.Err() != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: ocr: %v", types.ErrExtractionFailed, err)
	}
	return text, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, int, error) {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	// page image lookup needs the optimized cross reference table
	read := api.ReadAndValidate
	if e.ocr != nil {
		conf.Cmd = pdfmodel.EXTRACTIMAGES
		read = api.ReadValidateAndOptimize
	}
	pdfCtx, err := read(bytes.NewReader(data), conf)
	if err != nil {
		return "", 0, fmt.Errorf("%w: read pdf: %v", types.ErrExtractionFailed, err)
	}

	texts, err := PageTexts(data)
	if err != nil {
		e.logger.Warn("pdf text partly unreadable", "err", err)
	}

	var b strings.Builder
	for page := 1; page <= pdfCtx.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		fmt.Fprintf(&b, "[Page %d]\n", page)
		if page <= len(texts) {
			b.WriteString(texts[page-1])
		}
		b.WriteString("\n\n")

		for _, text := range e.pageImageTexts(ctx, pdfCtx, page) {
			fmt.Fprintf(&b, "[Image Text Page %d]\n%s\n\n", page, text)
		}
	}
	return b.String(), pdfCtx.PageCount, nil
}

var imageMIME = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

// pageImageTexts OCRs the images placed on a page. Failures are logged and
// skipped so one unreadable image does not sink the document.
func (e *Extractor) pageImageTexts(ctx context.Context, pdfCtx *pdfmodel.Context, page int) []string {
	if e.ocr == nil {
		return nil
	}
	images, err := pdfcpu.ExtractPageImages(pdfCtx, page, false)
	if err != nil {
		e.logger.Warn("page images unreadable", "page", page, "err", err)
		return nil
	}

	keys := make([]int, 0, len(images))
	for k := range images {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var texts []string
	for _, k := range keys {
		img := images[k]
		mimeType, ok := imageMIME[strings.ToLower(img.FileType)]
		if !ok || img.Reader == nil {
			continue
		}
		data, err := io.ReadAll(img.Reader)
		if err != nil {
			continue
		}
		text, err := e.recognize(ctx, data, mimeType)
		if err != nil {
			e.logger.Warn("ocr of embedded image failed", "page", page, "object", k, "err", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}
