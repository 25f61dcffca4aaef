package render

import (
	"encoding/json"
	"fmt"
)

// SectionConfig controls one named content block of the rendered document.
type SectionConfig struct {
	Enabled    bool    `json:"enabled"`
	FontSize   float64 `json:"fontSize"`
	FontWeight string  `json:"fontWeight"`
	Alignment  string  `json:"alignment"`
	Spacing    float64 `json:"spacing"`
	Color      string  `json:"color"`
	Order      int     `json:"order"`
}

// Margins are page margins in points (1 inch = 72 points).
type Margins struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// LayoutConfig controls page geometry.
type LayoutConfig struct {
	PageSize         string  `json:"pageSize"`
	Orientation      string  `json:"orientation"`
	Margins          Margins `json:"margins"`
	LineHeight       float64 `json:"lineHeight"`
	ParagraphSpacing float64 `json:"paragraphSpacing"`
}

// WatermarkConfig controls the diagonal watermark overlay.
type WatermarkConfig struct {
	Enabled  bool    `json:"enabled"`
	Text     string  `json:"text"`
	Opacity  float64 `json:"opacity"`
	Rotation float64 `json:"rotation"`
}

// BrandingConfig controls company identity on the rendered document.
type BrandingConfig struct {
	CompanyName  string          `json:"companyName"`
	CompanyLogo  string          `json:"companyLogo"`
	LogoPosition string          `json:"logoPosition"`
	LogoSize     string          `json:"logoSize"`
	Watermark    WatermarkConfig `json:"watermark"`
}

// HeaderConfig controls the repeating header band.
type HeaderConfig struct {
	Enabled         bool   `json:"enabled"`
	ShowLogo        bool   `json:"showLogo"`
	ShowCompanyName bool   `json:"showCompanyName"`
	ShowDate        bool   `json:"showDate"`
	Content         string `json:"content"`
}

// FooterConfig controls the repeating footer band.
type FooterConfig struct {
	Enabled         bool `json:"enabled"`
	ShowPageNumbers bool `json:"showPageNumbers"`
	ShowCompanyName bool `json:"showCompanyName"`
	ShowDate        bool `json:"showDate"`
	ShowRevision    bool `json:"showRevision"`
}

// HeaderFooterConfig groups the header and footer bands.
type HeaderFooterConfig struct {
	Header HeaderConfig `json:"header"`
	Footer FooterConfig `json:"footer"`
}

// Config is the effective rendering configuration after defaults are merged in.
type Config struct {
	Sections     map[string]SectionConfig `json:"sections"`
	Layout       LayoutConfig             `json:"layout"`
	Branding     BrandingConfig           `json:"branding"`
	HeaderFooter HeaderFooterConfig       `json:"headerFooter"`
}

// Section names recognized by the layout engine.
const (
	SectionTitle          = "title"
	SectionDocumentInfo   = "documentInfo"
	SectionObjective      = "objective"
	SectionResponsibility = "responsibility"
	SectionReferences     = "references"
	SectionProcedure      = "procedure"
	SectionSteps          = "steps"
	SectionFooter         = "footer"
)

// Defaults returns the canonical rendering configuration. Callers must treat
// the result as a fresh value; it is never shared or mutated in place.
func Defaults() Config {
	return Config{
		Sections: map[string]SectionConfig{
			SectionTitle:          {Enabled: true, FontSize: 24, FontWeight: "bold", Alignment: "center", Spacing: 1.5, Color: "#1a202c", Order: 0},
			SectionDocumentInfo:   {Enabled: true, FontSize: 12, FontWeight: "normal", Alignment: "left", Spacing: 1.2, Color: "#2d3748", Order: 1},
			SectionObjective:      {Enabled: true, FontSize: 12, FontWeight: "normal", Alignment: "justify", Spacing: 1.4, Color: "#2d3748", Order: 2},
			SectionResponsibility: {Enabled: true, FontSize: 12, FontWeight: "normal", Alignment: "justify", Spacing: 1.4, Color: "#2d3748", Order: 3},
			SectionReferences:     {Enabled: true, FontSize: 11, FontWeight: "normal", Alignment: "left", Spacing: 1.2, Color: "#4a5568", Order: 4},
			SectionProcedure:      {Enabled: true, FontSize: 12, FontWeight: "normal", Alignment: "justify", Spacing: 1.4, Color: "#2d3748", Order: 5},
			SectionSteps:          {Enabled: true, FontSize: 12, FontWeight: "normal", Alignment: "left", Spacing: 1.3, Color: "#2d3748", Order: 6},
			SectionFooter:         {Enabled: true, FontSize: 10, FontWeight: "normal", Alignment: "center", Spacing: 1.0, Color: "#718096", Order: 7},
		},
		Layout: LayoutConfig{
			PageSize:         "A4",
			Orientation:      "portrait",
			Margins:          Margins{Top: 72, Bottom: 72, Left: 54, Right: 54},
			LineHeight:       1.5,
			ParagraphSpacing: 12,
		},
		Branding: BrandingConfig{
			CompanyName:  "",
			CompanyLogo:  "",
			LogoPosition: "top-left",
			LogoSize:     "medium",
			Watermark: WatermarkConfig{
				Enabled:  false,
				Text:     "CONFIDENTIAL",
				Opacity:  0.1,
				Rotation: 45,
			},
		},
		HeaderFooter: HeaderFooterConfig{
			Header: HeaderConfig{
				Enabled:         true,
				ShowLogo:        true,
				ShowCompanyName: true,
				ShowDate:        true,
				Content:         "Standard Operating Procedure",
			},
			Footer: FooterConfig{
				Enabled:         true,
				ShowPageNumbers: true,
				ShowCompanyName: true,
				ShowDate:        true,
				ShowRevision:    true,
			},
		},
	}
}

// Merge combines a caller-supplied configuration override with the canonical
// defaults. The merge is recursive: a leaf present in the override replaces
// the default, an absent leaf inherits the default, and arrays are replaced
// wholesale. Merging the same override twice yields the same result.
func Merge(override json.RawMessage) (Config, error) {
	base := configToMap(Defaults())

	if len(override) > 0 && string(override) != "null" {
		var over map[string]interface{}
		if err := json.Unmarshal(override, &over); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		mergeMaps(base, over)
	}

	raw, err := json.Marshal(base)
	if err != nil {
		return Config{}, fmt.Errorf("encode merged config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func configToMap(cfg Config) map[string]interface{} {
	raw, err := json.Marshal(cfg)
	if err != nil {
		// Config serializes to plain JSON types only.
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(err)
	}
	return m
}

// mergeMaps merges src into dst in place. Nested objects merge recursively;
// every other value (scalars, arrays, null) replaces the destination entry.
func mergeMaps(dst, src map[string]interface{}) {
	for key, value := range src {
		if srcMap, ok := value.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				mergeMaps(dstMap, srcMap)
				continue
			}
		}
		dst[key] = value
	}
}
