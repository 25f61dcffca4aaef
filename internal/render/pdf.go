package render

import (
	"context"
	"fmt"
	"html"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// paperSizes maps page size names to width/height in inches, portrait.
var paperSizes = map[string][2]float64{
	"A4":     {8.27, 11.69},
	"Letter": {8.5, 11.0},
	"Legal":  {8.5, 14.0},
}

// paperDimensions resolves the configured page size and orientation to
// physical dimensions in inches. Unknown sizes fall back to A4.
func paperDimensions(layout LayoutConfig) (width, height float64) {
	size, ok := paperSizes[layout.PageSize]
	if !ok {
		size = paperSizes["A4"]
	}
	width, height = size[0], size[1]
	if layout.Orientation == "landscape" {
		width, height = height, width
	}
	return width, height
}

// percentEncodeForDataURL encodes a string for use in a data URL
// Unlike url.QueryEscape, this properly encodes spaces as %20 for data URLs
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			// Unreserved characters per RFC 3986
			result.WriteRune(r)
		case r == ' ':
			// Space must be encoded as %20 in data URLs, not +
			result.WriteString("%20")
		default:
			// Percent-encode all other characters
			for _, b := range string(r) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}

// headerTemplate builds the Chrome-native header band template. Header
// templates cannot load external stylesheets, so all styling is inline.
func headerTemplate(cfg Config, now time.Time) string {
	header := cfg.HeaderFooter.Header
	if !header.Enabled {
		return "<span></span>"
	}

	var parts []string
	if header.Content != "" {
		parts = append(parts, html.EscapeString(header.Content))
	}
	if header.ShowCompanyName && cfg.Branding.CompanyName != "" {
		parts = append(parts, html.EscapeString(cfg.Branding.CompanyName))
	}
	if header.ShowDate {
		parts = append(parts, now.Format("Jan 2, 2006"))
	}
	if len(parts) == 0 {
		return "<span></span>"
	}

	return fmt.Sprintf(
		`<div style="font-size: 9pt; color: #718096; width: 100%%; text-align: center; padding: 4pt 0; border-bottom: 0.5pt solid #cbd5e0;">%s</div>`,
		strings.Join(parts, " &middot; "),
	)
}

// footerTemplate builds the Chrome-native footer band template. Page numbers
// use the engine's pageNumber/totalPages span interpolation since the total
// count is not known to the content template.
func footerTemplate(cfg Config, doc Document, now time.Time) string {
	footer := cfg.HeaderFooter.Footer
	if !footer.Enabled {
		return "<span></span>"
	}

	style := cfg.Sections[SectionFooter]
	fontSize := style.FontSize
	if fontSize <= 0 {
		fontSize = 10
	}
	color := cssColor(style.Color)

	var parts []string
	if footer.ShowCompanyName && cfg.Branding.CompanyName != "" {
		parts = append(parts, html.EscapeString(cfg.Branding.CompanyName))
	}
	if footer.ShowRevision && doc.RevisionNumber != "" {
		parts = append(parts, "Rev. "+html.EscapeString(doc.RevisionNumber))
	}
	if footer.ShowDate {
		parts = append(parts, now.Format("Jan 2, 2006"))
	}
	if footer.ShowPageNumbers {
		parts = append(parts, `Page <span class="pageNumber"></span> of <span class="totalPages"></span>`)
	}
	if len(parts) == 0 {
		return "<span></span>"
	}

	return fmt.Sprintf(
		`<div style="font-size: %.4gpt; color: %s; width: 100%%; text-align: center; padding: 4pt 0; border-top: 0.5pt solid #cbd5e0;">%s</div>`,
		fontSize, color, strings.Join(parts, " &middot; "),
	)
}

// printPDF converts HTML to PDF using headless Chrome, with page geometry
// and header/footer bands taken from the rendering configuration.
func (r *Renderer) printPDF(ctx context.Context, html string, cfg Config, doc Document) ([]byte, error) {
	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Chrome options for headless mode in container
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// Encode HTML as data URL using proper percent-encoding
	// url.QueryEscape uses + for spaces which is wrong for data URLs
	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	width, height := paperDimensions(cfg.Layout)
	margins := cfg.Layout.Margins
	now := r.now()

	displayBands := cfg.HeaderFooter.Header.Enabled || cfg.HeaderFooter.Footer.Enabled

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(width).
				WithPaperHeight(height).
				WithMarginTop(margins.Top / 72).
				WithMarginBottom(margins.Bottom / 72).
				WithMarginLeft(margins.Left / 72).
				WithMarginRight(margins.Right / 72).
				WithDisplayHeaderFooter(displayBands).
				WithHeaderTemplate(headerTemplate(cfg, now)).
				WithFooterTemplate(footerTemplate(cfg, doc, now)).
				Do(ctx)
			return err
		}),
	)

	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return pdfData, nil
}
