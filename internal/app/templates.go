package app

import (
	"embed"
	"html/template"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexData struct {
	PageID      string
	NetworkName string
	ChainID     int64
}

func renderIndex(w http.ResponseWriter, data indexData) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	return indexTemplate.Execute(w, data)
}
