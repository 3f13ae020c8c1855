// Package site serves the embedded live dashboard.
package site

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// FS returns an http.FileSystem for the embedded dashboard.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// Only possible if the embed directive and directory disagree.
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

// Register serves the dashboard at the mux root.
func Register(_ context.Context, mux *http.ServeMux) {
	mux.Handle("/", http.FileServer(FS()))
}
