package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Renderer is the document layout engine. It merges rendering configuration,
// assembles the section tree, and delegates pagination to headless Chrome.
type Renderer struct {
	timeout time.Duration
	now     func() time.Time
}

// NewRenderer creates a renderer with the given export timeout.
func NewRenderer(timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{
		timeout: timeout,
		now:     time.Now,
	}
}

// Render produces the PDF artifact for a document. The override is the
// document's stored (or request-supplied) rendering configuration; defaults
// fill in any omitted keys. Generation either fully succeeds or returns no
// bytes.
func (r *Renderer) Render(ctx context.Context, doc Document, override json.RawMessage) (*Result, error) {
	cfg, err := Merge(override)
	if err != nil {
		return nil, err
	}

	html, err := r.buildHTML(doc, cfg)
	if err != nil {
		return nil, err
	}

	data, err := r.printPDF(ctx, html, cfg, doc)
	if err != nil {
		return nil, err
	}

	pages, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("count pdf pages: %w", err)
	}

	return &Result{
		Data:      data,
		Filename:  sanitizeFilename(doc.Title) + ".pdf",
		MimeType:  "application/pdf",
		PageCount: pages,
	}, nil
}

// buildHTML assembles the document markup from the merged configuration.
func (r *Renderer) buildHTML(doc Document, cfg Config) (string, error) {
	sections, err := assembleSections(doc, cfg)
	if err != nil {
		return "", err
	}

	data := TemplateData{
		Title:      doc.Title,
		Layout:     cfg.Layout,
		Branding:   cfg.Branding,
		Sections:   sections,
		LogoHeight: logoHeight(cfg.Branding.LogoSize),
	}
	if cfg.Branding.Watermark.Enabled {
		wm := cfg.Branding.Watermark
		data.Watermark = &wm
	}
	// The footer band normally carries the date. When the band is off but the
	// date toggle is on, fall back to a timestamp line in the body.
	if cfg.HeaderFooter.Footer.ShowDate && !cfg.HeaderFooter.Footer.Enabled {
		data.GeneratedAt = r.now().Format("Jan 2, 2006 15:04")
	}

	return buildDocumentHTML(data)
}

// sanitizeFilename derives a download filename from a title by replacing
// every character outside [A-Za-z0-9] with an underscore.
func sanitizeFilename(title string) string {
	var result []rune
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result = append(result, r)
		default:
			result = append(result, '_')
		}
	}
	if len(result) == 0 {
		return "document"
	}
	return string(result)
}
