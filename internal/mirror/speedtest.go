package mirror

import (
	"context"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	speedTestTimeout    = 5 * time.Second
	speedTestMaxWorkers = 10
)

// probePath is the file fetched from a mirror root when speed-testing it.
const probePath = "core/os/x86_64/core.db"

// ProbeURL returns the URL downloaded when speed-testing the mirror rooted at base.
func ProbeURL(base string) string {
	return strings.TrimSuffix(base, "/") + "/" + probePath
}

// SpeedTest measures latency and throughput for the given URLs. Only the topN
// lowest-latency responders are downloaded from; the rest are reported with
// their latency alone. Results are sorted by throughput descending, errors last.
// Live results never feed back into Rank.
func (d *Discovery) SpeedTest(ctx context.Context, urls []string, topN int) []SpeedResult {
	results := d.forEach(ctx, urls, func(ctx context.Context, url string) SpeedResult {
		return d.headLatency(ctx, url)
	})
	sortResults(results, func(a, b SpeedResult) bool { return a.LatencyMs < b.LatencyMs })

	var shortlist []string
	var rest []SpeedResult
	for _, r := range results {
		if r.Error == "" && len(shortlist) < topN {
			shortlist = append(shortlist, r.URL)
			continue
		}
		rest = append(rest, r)
	}

	latency := make(map[string]int, len(shortlist))
	for _, r := range results {
		latency[r.URL] = r.LatencyMs
	}

	measured := d.forEach(ctx, shortlist, func(ctx context.Context, url string) SpeedResult {
		r := d.download(ctx, url)
		r.LatencyMs = latency[url]
		return r
	})

	final := append(measured, rest...)
	sortResults(final, func(a, b SpeedResult) bool { return a.ThroughputKBps > b.ThroughputKBps })
	return final
}

// sortResults orders results with errors last and the rest by less.
func sortResults(results []SpeedResult, less func(a, b SpeedResult) bool) {
	slices.SortStableFunc(results, func(a, b SpeedResult) int {
		switch {
		case (a.Error == "") != (b.Error == ""):
			if a.Error == "" {
				return -1
			}
			return 1
		case less(a, b):
			return -1
		case less(b, a):
			return 1
		}
		return 0
	})
}

// forEach runs probe for every URL on a bounded pool of workers and returns
// the results in input order.
func (d *Discovery) forEach(ctx context.Context, urls []string, probe func(context.Context, string) SpeedResult) []SpeedResult {
	results := make([]SpeedResult, len(urls))
	sem := make(chan struct{}, speedTestMaxWorkers)
	var wg sync.WaitGroup

	for i, u := range urls {
		wg.Add(1)
		go func(idx int, url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			reqCtx, cancel := context.WithTimeout(ctx, speedTestTimeout)
			defer cancel()
			results[idx] = probe(reqCtx, url)
		}(i, u)
	}

	wg.Wait()
	return results
}

// headLatency times a HEAD request against url.
func (d *Discovery) headLatency(ctx context.Context, url string) SpeedResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return SpeedResult{URL: url, Error: err.Error()}
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := d.probe.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return SpeedResult{URL: url, LatencyMs: int(elapsed.Milliseconds()), Error: err.Error()}
	}
	_ = resp.Body.Close()

	return SpeedResult{URL: url, LatencyMs: int(elapsed.Milliseconds())}
}

// download fetches url in full and reports throughput in KiB/s.
func (d *Discovery) download(ctx context.Context, url string) SpeedResult {
	sr := SpeedResult{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := d.probe.Do(req)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}

	if elapsed.Seconds() > 0 {
		sr.ThroughputKBps = float64(n) / elapsed.Seconds() / 1024.0
	}
	return sr
}
