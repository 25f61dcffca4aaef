package render

import (
	"fmt"
	"sort"
	"strings"
)

// Section kinds determine how the template renders the block.
const (
	kindTitle = "title"
	kindInfo  = "info"
	kindText  = "text"
	kindList  = "list"
)

// Section is one assembled content block, in final display order.
type Section struct {
	Name    string
	Heading string
	Kind    string
	Config  SectionConfig
	Body    string
	Items   []string
	Info    []InfoRow
}

// InfoRow is a label/value pair for the document info block.
type InfoRow struct {
	Label string
	Value string
}

// bodySections lists the section names that render as in-document blocks.
// The footer section styles the repeating footer band instead.
var bodySections = []string{
	SectionTitle,
	SectionDocumentInfo,
	SectionObjective,
	SectionResponsibility,
	SectionReferences,
	SectionProcedure,
	SectionSteps,
}

var sectionHeadings = map[string]string{
	SectionObjective:      "Objective",
	SectionResponsibility: "Responsibility",
	SectionReferences:     "References",
	SectionProcedure:      "Procedure",
	SectionSteps:          "Steps",
}

// assembleSections builds the ordered content blocks for a document. Enabled
// sections are sorted by their configured order, which must be distinct.
// References and steps collections containing only whitespace are treated as
// absent and skipped even when enabled.
func assembleSections(doc Document, cfg Config) ([]Section, error) {
	seen := make(map[int]string)
	var sections []Section

	for _, name := range bodySections {
		sc, ok := cfg.Sections[name]
		if !ok || !sc.Enabled {
			continue
		}

		if prev, dup := seen[sc.Order]; dup {
			return nil, fmt.Errorf("%w: sections %q and %q share order %d", ErrInvalidConfig, prev, name, sc.Order)
		}
		seen[sc.Order] = name

		section := Section{Name: name, Config: sc}
		switch name {
		case SectionTitle:
			section.Kind = kindTitle
			section.Body = doc.Title
		case SectionDocumentInfo:
			section.Kind = kindInfo
			section.Info = []InfoRow{
				{Label: "Department", Value: doc.Department},
				{Label: "Responsible Person", Value: doc.ResponsiblePerson},
				{Label: "Effective Date", Value: doc.EffectiveDate.Format("Jan 2, 2006")},
				{Label: "Revision Date", Value: doc.RevisionDate.Format("Jan 2, 2006")},
				{Label: "Revision Number", Value: doc.RevisionNumber},
				{Label: "Prepared By", Value: doc.CreatedByName},
			}
		case SectionObjective:
			section.Kind = kindText
			section.Heading = sectionHeadings[name]
			section.Body = doc.Objective
		case SectionResponsibility:
			section.Kind = kindText
			section.Heading = sectionHeadings[name]
			section.Body = doc.Responsibility
		case SectionProcedure:
			section.Kind = kindText
			section.Heading = sectionHeadings[name]
			section.Body = doc.Procedure
		case SectionReferences:
			items := nonBlank(doc.References)
			if len(items) == 0 {
				continue
			}
			section.Kind = kindList
			section.Heading = sectionHeadings[name]
			section.Items = items
		case SectionSteps:
			items := nonBlank(doc.Steps)
			if len(items) == 0 {
				continue
			}
			section.Kind = kindList
			section.Heading = sectionHeadings[name]
			section.Items = items
		}

		sections = append(sections, section)
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Config.Order < sections[j].Config.Order
	})

	return sections, nil
}

// nonBlank filters out empty and whitespace-only entries, preserving order.
func nonBlank(items []string) []string {
	var out []string
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, item)
		}
	}
	return out
}
