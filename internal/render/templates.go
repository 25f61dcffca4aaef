package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"sectionStyle": sectionStyle,
	}

	content, err := templateFS.ReadFile("templates/document.html")
	if err != nil {
		// Fallback to built-in template if file not found
		documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	documentTemplate = template.Must(template.New("document").Funcs(funcMap).Parse(string(content)))
}

// sectionStyle builds the inline CSS for a section from its configuration.
func sectionStyle(sc SectionConfig) template.CSS {
	return template.CSS(fmt.Sprintf(
		"font-size: %.4gpt; font-weight: %s; text-align: %s; color: %s; line-height: %.4g;",
		sc.FontSize, cssWord(sc.FontWeight), cssWord(sc.Alignment), cssColor(sc.Color), sc.Spacing,
	))
}

// cssWord restricts a configured keyword to a known-safe CSS identifier.
func cssWord(s string) string {
	switch s {
	case "normal", "bold", "left", "center", "right", "justify":
		return s
	}
	return "normal"
}

// cssColor accepts hex color values only; anything else falls back to a
// neutral dark gray.
func cssColor(s string) string {
	if len(s) != 4 && len(s) != 7 {
		return "#2d3748"
	}
	if s[0] != '#' {
		return "#2d3748"
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return "#2d3748"
		}
	}
	return s
}

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title       string
	Layout      LayoutConfig
	Branding    BrandingConfig
	Sections    []Section
	Watermark   *WatermarkConfig
	LogoHeight  int
	GeneratedAt string
}

// buildDocumentHTML renders the document template with provided data
func buildDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// logoHeight maps the configured logo size to a pixel height.
func logoHeight(size string) int {
	switch size {
	case "small":
		return 40
	case "large":
		return 80
	default:
		return 60
	}
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Helvetica, Arial, sans-serif; margin: 0; }
    .section { page-break-inside: avoid; }
  </style>
</head>
<body>
  {{range .Sections}}<div class="section" style="{{sectionStyle .Config}}">{{if .Heading}}<h2>{{.Heading}}</h2>{{end}}{{.Body}}</div>{{end}}
</body>
</html>`
