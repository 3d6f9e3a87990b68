// Package search indexes goals for discovery, with Meilisearch as the
// primary engine and PostgreSQL full-text search as the fallback.
package search

// Result is a single goal hit returned to the caller.
type Result struct {
	ID      int64  `json:"id"`
	GrantID int64  `json:"grantId"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
	Source  string `json:"source"`
}

// Query describes a goal search request.
type Query struct {
	Text    string
	GrantID int64 // 0 = all grants
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// GoalRecord is the data we index per goal.
type GoalRecord struct {
	ID      int64  `json:"id"`
	GrantID int64  `json:"grantId"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Source  string `json:"source"`
}

// Searcher can execute a goal search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
