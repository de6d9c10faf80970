package exporter

import (
	"context"
	"errors"
	"fmt"

	"github.com/iago/reportflow/internal/domain"
)

var ErrUnsupportedFormat = errors.New("exporter: unsupported format")

// Renderer turns a Document into the bytes of one file format.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

type RendererFunc func(ctx context.Context, doc Document) ([]byte, error)

func (f RendererFunc) Render(ctx context.Context, doc Document) ([]byte, error) {
	return f(ctx, doc)
}

// Registry picks the renderer for an export format.
type Registry struct {
	renderers map[domain.ExportFormat]Renderer
}

// NewRegistry registers the CSV, JSON, HTML and Excel renderers. PDF and PNG
// are only available when chrome is non-nil.
func NewRegistry(chrome *ChromeRenderer) *Registry {
	html := HTMLRenderer{}
	r := &Registry{renderers: map[domain.ExportFormat]Renderer{
		domain.ExportFormatCSV:   CSVRenderer{BOMPrefix: true},
		domain.ExportFormatJSON:  JSONRenderer{},
		domain.ExportFormatHTML:  html,
		domain.ExportFormatExcel: ExcelRenderer{},
	}}
	if chrome != nil {
		r.renderers[domain.ExportFormatPDF] = RendererFunc(chrome.PDF)
		r.renderers[domain.ExportFormatPNG] = RendererFunc(chrome.PNG)
	}
	return r
}

// Register replaces the renderer for format.
func (r *Registry) Register(format domain.ExportFormat, renderer Renderer) {
	r.renderers[format] = renderer
}

func (r *Registry) Render(ctx context.Context, format domain.ExportFormat, doc Document) ([]byte, error) {
	renderer, ok := r.renderers[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return renderer.Render(ctx, doc)
}
