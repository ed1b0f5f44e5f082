package api

import (
	"errors"
	"os"

	"docqa/loader"
	"docqa/store"
	"docqa/types"

	"github.com/gofiber/fiber/v2"
)

// FileHandler serves the originally uploaded files.
type FileHandler struct {
	ingestor *loader.Ingestor
	store    store.DBStorer
}

func NewFileHandler(ingestor *loader.Ingestor, s store.DBStorer) *FileHandler {
	return &FileHandler{
		ingestor: ingestor,
		store:    s,
	}
}

func (h *FileHandler) HandleDownload(c *fiber.Ctx) error {
	id := c.Params("id")
	doc, err := h.store.GetDocumentByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ErrNotFound(id, "document")
		}
		return err
	}

	path := h.ingestor.OriginalPath(doc)
	if _, err := os.Stat(path); err != nil {
		return ErrNotFound(id, "file of document")
	}

	return c.Download(path, doc.Filename)
}
