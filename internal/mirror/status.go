package mirror

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Status is the mirror status feed published by archlinux.org.
type Status struct {
	Cutoff         int64      `json:"cutoff"`
	LastCheck      time.Time  `json:"last_check"`
	NumChecks      int        `json:"num_checks"`
	CheckFrequency int        `json:"check_frequency"`
	URLs           []Endpoint `json:"urls"`
	Version        int        `json:"version"`
}

// ParseStatus decodes a status feed document. Numeric fields that are
// malformed (negative, non-finite, or a completion outside [0,1]) are dropped
// so the filter treats them as unknown.
func ParseStatus(data []byte) (*Status, error) {
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding status feed: %w", err)
	}
	for i := range st.URLs {
		st.URLs[i] = sanitize(st.URLs[i])
	}
	return &st, nil
}

func sanitize(e Endpoint) Endpoint {
	if e.CompletionPct != nil && (!finite(*e.CompletionPct) || *e.CompletionPct < 0 || *e.CompletionPct > 1) {
		e.CompletionPct = nil
	}
	if e.Delay != nil && *e.Delay < 0 {
		e.Delay = nil
	}
	e.DurationAvg = nonNegative(e.DurationAvg)
	e.DurationStdDev = nonNegative(e.DurationStdDev)
	e.Score = nonNegative(e.Score)
	return e
}

func nonNegative(v *float64) *float64 {
	if v == nil || !finite(*v) || *v < 0 {
		return nil
	}
	return v
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
