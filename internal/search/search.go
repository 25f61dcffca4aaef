// Package search provides full-text search over SOP records, backed by
// Meilisearch with a PostgreSQL FTS fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	Department string `json:"department"`
	CreatedBy  string `json:"createdBy"`
}

// Query describes a search request.
type Query struct {
	Text    string
	OwnerID string // empty = unscoped (admin)
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// SOPRecord is the data we index for a SOP document.
type SOPRecord struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Department        string `json:"department"`
	ResponsiblePerson string `json:"responsiblePerson"`
	Objective         string `json:"objective"`
	Procedure         string `json:"procedure"`
	CreatedBy         string `json:"createdBy"`
}
