package store

import "time"

// Run records one mirrorlist generation
type Run struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SourceURL  string    `json:"source_url"`
	Criteria   string    `json:"criteria"` // JSON encoding of mirror.Criteria
	Candidates int       `json:"candidates"`
	Selected   int       `json:"selected"`
	OutputPath string    `json:"output_path,omitempty"` // empty when written to stdout or not written
}

// RunMirror is one ranked mirror of a Run
type RunMirror struct {
	RunID       int64   `json:"run_id"`
	Position    int     `json:"position"` // 1-based rank
	URL         string  `json:"url"`
	CountryCode string  `json:"country_code"`
	Protocol    string  `json:"protocol"`
	Score       float64 `json:"score"`
	Delay       int64   `json:"delay"`
}
