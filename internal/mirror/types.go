package mirror

import "time"

// DefaultMaxDelay is the sync delay threshold, in seconds, applied when
// Criteria.MaxDelay is unset.
const DefaultMaxDelay int64 = 3600

// Endpoint is a single mirror URL as reported by the mirror status feed.
// Pointer fields are absent when the feed has no (or no trustworthy) value.
type Endpoint struct {
	URL            string     `json:"url"`
	Country        string     `json:"country"`
	CountryCode    string     `json:"country_code"`
	Protocol       string     `json:"protocol"`
	CompletionPct  *float64   `json:"completion_pct"`
	Delay          *int64     `json:"delay"`
	IPv4           bool       `json:"ipv4"`
	IPv6           bool       `json:"ipv6"`
	DurationAvg    *float64   `json:"duration_avg"`
	DurationStdDev *float64   `json:"duration_stddev"`
	Score          *float64   `json:"score"`
	LastSync       *time.Time `json:"last_sync"`
	Active         bool       `json:"active"`
	ISOs           bool       `json:"isos"`
	Details        string     `json:"details,omitempty"`
}

// Criteria holds the constraints a mirror must satisfy to be selected.
// Use DefaultCriteria to get the defaults; the zero value does not require IPv4.
type Criteria struct {
	RequireIPv4 bool     `json:"require_ipv4"`
	RequireIPv6 bool     `json:"require_ipv6"`
	Protocols   []string `json:"protocols,omitempty"`
	Country     *string  `json:"country,omitempty"`
	MaxDelay    *int64   `json:"max_delay,omitempty"`
}

// DefaultCriteria returns criteria requiring IPv4 only, with no country or
// protocol restriction and the default delay threshold.
func DefaultCriteria() Criteria {
	return Criteria{RequireIPv4: true}
}

// DelayThreshold returns the effective maximum sync delay in seconds.
func (c Criteria) DelayThreshold() int64 {
	if c.MaxDelay == nil {
		return DefaultMaxDelay
	}
	return *c.MaxDelay
}

// SpeedResult holds the outcome of a mirror speed test.
type SpeedResult struct {
	URL            string  `json:"url"`
	LatencyMs      int     `json:"latency_ms"`
	ThroughputKBps float64 `json:"throughput_kbps"`
	Error          string  `json:"error,omitempty"`
}
