package mirror

import (
	"math"
	"slices"
)

// maxResponseBudget is the largest acceptable DurationAvg + DurationStdDev, in seconds.
const maxResponseBudget = 1.0

// Predicate names reported by Rejection.
const (
	RejectMissingStats = "missing_stats"
	RejectCountry      = "country"
	RejectProtocol     = "protocol"
	RejectIncomplete   = "incomplete"
	RejectStale        = "stale"
	RejectSlow         = "slow"
	RejectIPFamily     = "ip_family"
)

// OptionalEquals reports whether got satisfies an optional constraint:
// a nil want places no constraint, otherwise the values must be equal.
func OptionalEquals[T comparable](want *T, got T) bool {
	return want == nil || *want == got
}

// OptionalMember reports whether got is in allowed. An empty allowed set
// places no constraint.
func OptionalMember[T comparable](allowed []T, got T) bool {
	return len(allowed) == 0 || slices.Contains(allowed, got)
}

// HasRequiredStats reports whether the endpoint carries enough history to be
// judged: a standard deviation and an orderable score.
func HasRequiredStats(e Endpoint) bool {
	if e.DurationStdDev == nil || e.Score == nil {
		return false
	}
	return !math.IsNaN(*e.Score) && !math.IsInf(*e.Score, 0)
}

// MatchesCountry reports whether the endpoint is in the requested country.
func MatchesCountry(e Endpoint, c Criteria) bool {
	return OptionalEquals(c.Country, e.CountryCode)
}

// MatchesProtocol reports whether the endpoint uses one of the allowed protocols.
func MatchesProtocol(e Endpoint, c Criteria) bool {
	return OptionalMember(c.Protocols, e.Protocol)
}

// IsComplete reports whether the endpoint mirrors the whole package set.
func IsComplete(e Endpoint) bool {
	return e.CompletionPct != nil && *e.CompletionPct == 1.0
}

// IsFresh reports whether the endpoint's sync delay is known and within the threshold.
func IsFresh(e Endpoint, c Criteria) bool {
	return e.Delay != nil && *e.Delay <= c.DelayThreshold()
}

// IsResponsive reports whether average duration plus jitter fits the one second budget.
// Both timing statistics must be present.
func IsResponsive(e Endpoint) bool {
	if e.DurationAvg == nil || e.DurationStdDev == nil {
		return false
	}
	return *e.DurationAvg+*e.DurationStdDev <= maxResponseBudget
}

// MatchesIPFamily reports whether the endpoint supports every required IP version.
func MatchesIPFamily(e Endpoint, c Criteria) bool {
	if c.RequireIPv4 && !e.IPv4 {
		return false
	}
	if c.RequireIPv6 && !e.IPv6 {
		return false
	}
	return true
}

// Rejection returns the name of the first predicate the endpoint fails, or ""
// if it is acceptable.
func Rejection(e Endpoint, c Criteria) string {
	switch {
	case !HasRequiredStats(e):
		return RejectMissingStats
	case !MatchesCountry(e, c):
		return RejectCountry
	case !MatchesProtocol(e, c):
		return RejectProtocol
	case !IsComplete(e):
		return RejectIncomplete
	case !IsFresh(e, c):
		return RejectStale
	case !IsResponsive(e):
		return RejectSlow
	case !MatchesIPFamily(e, c):
		return RejectIPFamily
	}
	return ""
}

// Accept reports whether the endpoint passes every predicate.
func Accept(e Endpoint, c Criteria) bool {
	return Rejection(e, c) == ""
}

// Filter returns the endpoints accepted by c, in input order.
// The input slice is not modified.
func Filter(candidates []Endpoint, c Criteria) []Endpoint {
	survivors := make([]Endpoint, 0, len(candidates))
	for _, e := range candidates {
		if Accept(e, c) {
			survivors = append(survivors, e)
		}
	}
	return survivors
}
