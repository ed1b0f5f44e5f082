package api

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"

	"docqa/loader"
	"docqa/store"
	"docqa/types"

	"github.com/gofiber/fiber/v2"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type DocumentHandler struct {
	ingestor *loader.Ingestor
	store    store.DBStorer
	logger   *slog.Logger
}

func NewDocumentHandler(ingestor *loader.Ingestor, s store.DBStorer, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		ingestor: ingestor,
		store:    s,
		logger:   logger,
	}
}

// HandleUpload ingests every file of the multipart form and reports a result
// per file. When no file could be ingested the response carries the status
// of the first failure.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return ErrNoFiles()
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		return ErrNoFiles()
	}

	var (
		results   = make([]types.UploadResult, 0, len(headers))
		firstFail error
		succeeded int
	)
	for _, fh := range headers {
		doc, err := h.ingest(c, fh)
		if err != nil {
			h.logger.Warn("upload rejected", "filename", fh.Filename, "err", err)
			if firstFail == nil {
				firstFail = err
			}
			results = append(results, types.UploadResult{
				Filename: fh.Filename,
				Status:   statusError,
				Message:  FromError(err).Message,
			})
			continue
		}

		succeeded++
		results = append(results, types.UploadResult{
			ID:         doc.ID,
			Filename:   doc.Filename,
			Type:       doc.Type,
			Size:       doc.Size,
			UploadTime: doc.UploadedAt,
			PageCount:  doc.PageCount,
			Paragraphs: len(doc.Chunks),
			Status:     statusSuccess,
			Message:    "Document processed successfully",
		})
	}

	total, err := h.store.CountDocuments(c.UserContext())
	if err != nil {
		return err
	}

	resp := types.UploadResponse{Results: results, TotalDocuments: total}
	if succeeded == 0 {
		return c.Status(StatusFor(firstFail)).JSON(resp)
	}
	return c.JSON(resp)
}

func (h *DocumentHandler) ingest(c *fiber.Ctx, fh *multipart.FileHeader) (*types.Document, error) {
	// reject by name and size before reading the body
	if _, err := h.ingestor.Limits().ValidateFile(fh.Filename, fh.Size); err != nil {
		return nil, err
	}

	file, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	return h.ingestor.Ingest(c.UserContext(), fh.Filename, data)
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.UserContext())
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []types.Document{}
	}
	for i := range docs {
		docs[i].Text = ""
	}
	return c.JSON(fiber.Map{"documents": docs, "total": len(docs)})
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, err := h.store.GetDocumentByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ErrNotFound(id, "document")
		}
		return err
	}
	return c.JSON(doc)
}

func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.ingestor.Remove(c.UserContext(), id); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ErrNotFound(id, "document")
		}
		return err
	}

	return c.JSON(fiber.Map{"deleted": id, "status": statusSuccess})
}
