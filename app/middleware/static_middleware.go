package middleware

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
)

// PlugStatic answers browser lookups of /.well-known/ below the UI prefix so
// they never reach the file server.
func PlugStatic(staticPrefix string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()

		if strings.HasPrefix(path, staticPrefix) {
			rest := strings.TrimPrefix(path, strings.TrimSuffix(staticPrefix, "/"))
			if strings.HasPrefix(rest, "/.well-known/") {
				return c.JSON(fiber.Map{
					"status": "ignored dynamic-static",
				})
			}
		}

		return c.Next()
	}
}

// Static serves the web UI from dir when set, else from the embedded files.
func Static(embedded fs.FS, dir string) fiber.Handler {
	root := http.FS(embedded)
	if dir != "" {
		root = http.Dir(dir)
	}
	return filesystem.New(filesystem.Config{
		Root:   root,
		Index:  "/index.html",
		MaxAge: 60,
	})
}
