// Package mirrorlist renders ranked mirrors as a pacman mirrorlist.
package mirrorlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/mirror"
)

// repoSuffix is appended to each mirror root to form a pacman Server line.
const repoSuffix = "$repo/os/$arch"

// pacmanSchemes are the URL schemes pacman can download from.
var pacmanSchemes = []string{"http", "https", "ftp"}

// Options controls mirrorlist rendering.
type Options struct {
	// Limit is the number of active Server lines; the remainder are written
	// commented out. Zero leaves every usable entry active.
	Limit       int
	Criteria    mirror.Criteria
	SourceURL   string
	GeneratedAt time.Time
}

// ServerLine returns the pacman Server directive for a mirror root URL.
func ServerLine(base string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return "Server = " + base + repoSuffix
}

// Usable reports whether pacman can download from the mirror at base.
func Usable(base string) bool {
	scheme, _, ok := strings.Cut(base, "://")
	return ok && slices.Contains(pacmanSchemes, strings.ToLower(scheme))
}

// Write renders endpoints, in order, to w.
func Write(w io.Writer, endpoints []mirror.Endpoint, opts Options) error {
	bw := bufio.NewWriter(w)

	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	fmt.Fprintln(bw, "##")
	fmt.Fprintln(bw, "## Arch Linux repository mirrorlist")
	fmt.Fprintf(bw, "## Generated by mirrorrank on %s\n", generated.UTC().Format(time.RFC3339))
	if opts.SourceURL != "" {
		fmt.Fprintf(bw, "## Source: %s\n", opts.SourceURL)
	}
	fmt.Fprintf(bw, "## Criteria: %s\n", Describe(opts.Criteria))
	fmt.Fprintf(bw, "## Mirrors: %d\n", len(endpoints))
	fmt.Fprintln(bw, "## Mirrors pacman cannot download from (rsync) are listed commented out.")
	fmt.Fprintln(bw, "##")
	fmt.Fprintln(bw)

	active := 0
	for _, e := range endpoints {
		fmt.Fprintf(bw, "## %s (%s) score %s\n", e.Country, e.CountryCode, formatScore(e.Score))
		if !Usable(e.URL) {
			fmt.Fprintf(bw, "## %s mirror, not usable by pacman\n", e.Protocol)
			fmt.Fprintf(bw, "#%s\n", ServerLine(e.URL))
			continue
		}
		prefix := ""
		if opts.Limit > 0 && active >= opts.Limit {
			prefix = "#"
		} else {
			active++
		}
		fmt.Fprintf(bw, "%s%s\n", prefix, ServerLine(e.URL))
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing mirrorlist: %w", err)
	}
	return nil
}

// WriteFile atomically replaces path with the rendered mirrorlist.
func WriteFile(path string, endpoints []mirror.Endpoint, opts Options) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mirrorlist-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := Write(tmp, endpoints, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions on %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming mirrorlist into place: %w", err)
	}
	return nil
}

// Describe summarizes criteria for headers and logs.
func Describe(c mirror.Criteria) string {
	country := "any"
	if c.Country != nil {
		country = *c.Country
	}
	protocols := "any"
	if len(c.Protocols) > 0 {
		protocols = strings.Join(c.Protocols, ",")
	}
	return fmt.Sprintf("country=%s protocols=%s ipv4=%t ipv6=%t max_delay=%ds",
		country, protocols, c.RequireIPv4, c.RequireIPv6, c.DelayThreshold())
}

func formatScore(score *float64) string {
	if score == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *score)
}
