// Package render transforms SOP documents into paginated PDF output.
package render

import (
	"errors"
	"time"
)

// Document is the resolved SOP content handed to the layout engine,
// with the owner's display name already attached.
type Document struct {
	ID                string
	Title             string
	Department        string
	ResponsiblePerson string
	Objective         string
	Responsibility    string
	Procedure         string
	References        []string
	Steps             []string
	EffectiveDate     time.Time
	RevisionDate      time.Time
	RevisionNumber    string
	CreatedByName     string
}

// Result contains the rendered output
type Result struct {
	Data      []byte
	Filename  string
	MimeType  string
	PageCount int
}

var (
	// ErrPDFDependencyMissing indicates the headless browser runtime is unavailable.
	ErrPDFDependencyMissing = errors.New("render pdf dependency missing")
	// ErrInvalidConfig indicates the rendering configuration could not be applied.
	ErrInvalidConfig = errors.New("render invalid configuration")
)
