package handler

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
)

const swaggerPage = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Newsroom CMS Auth API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
        persistAuthorization: true
      });
    </script>
  </body>
</html>`

const swaggerCSP = "default-src 'self'; connect-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data:"

// DocsHandler serves the OpenAPI document read once at startup.
type DocsHandler struct {
	document []byte
}

func NewDocsHandler(documentPath string) *DocsHandler {
	documentPath = strings.TrimSpace(documentPath)
	if documentPath == "" {
		return &DocsHandler{}
	}

	content, err := os.ReadFile(documentPath)
	if err != nil {
		slog.Warn("openapi document not loaded, /openapi.yaml will answer 404", "path", documentPath, "error", err)
		return &DocsHandler{}
	}
	return &DocsHandler{document: content}
}

func (h *DocsHandler) OpenAPI(w http.ResponseWriter, _ *http.Request) {
	if len(h.document) == 0 {
		writeError(w, notFound("openapi document is not available"))
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.document)
}

func (h *DocsHandler) SwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Security-Policy", swaggerCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(swaggerPage))
}
