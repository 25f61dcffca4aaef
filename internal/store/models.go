package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SOP is the central record: required authoring fields, ordered step and
// reference collections, and the raw per-document PDF rendering
// configuration. PDFConfig is persisted verbatim so a saved configuration
// round-trips field-for-field; defaults are merged only at render time.
type SOP struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	Department        string          `json:"department"`
	ResponsiblePerson string          `json:"responsiblePerson"`
	Objective         string          `json:"objective"`
	Responsibility    string          `json:"responsibility"`
	Procedure         string          `json:"procedure"`
	References        []string        `json:"references"`
	Steps             []string        `json:"steps"`
	EffectiveDate     time.Time       `json:"effectiveDate"`
	RevisionDate      time.Time       `json:"revisionDate"`
	RevisionNumber    string          `json:"revisionNumber"`
	PDFConfig         json.RawMessage `json:"pdfConfig,omitempty"`
	CreatedBy         string          `json:"createdBy"`
	CreatedByName     string          `json:"createdByName"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
