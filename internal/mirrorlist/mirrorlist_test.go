package mirrorlist

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/mirror"
	"github.com/google/go-cmp/cmp"
)

func endpoint(url, cc string, score float64) mirror.Endpoint {
	return mirror.Endpoint{URL: url, Country: "Somewhere", CountryCode: cc, Protocol: "https", Score: &score}
}

func serverLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, "Server") || strings.HasPrefix(l, "#Server") {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestServerLine(t *testing.T) {
	tests := map[string]string{
		"https://a.example.com/archlinux/": "Server = https://a.example.com/archlinux/$repo/os/$arch",
		"https://a.example.com/archlinux":  "Server = https://a.example.com/archlinux/$repo/os/$arch",
	}
	for in, want := range tests {
		if got := ServerLine(in); got != want {
			t.Errorf("ServerLine(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWrite(t *testing.T) {
	endpoints := []mirror.Endpoint{
		endpoint("https://a.example.com/archlinux/", "US", 0.5),
		endpoint("https://b.example.com/archlinux/", "US", 0.9),
	}
	country := "US"
	opts := Options{
		Criteria:    mirror.Criteria{RequireIPv4: true, Country: &country, Protocols: []string{"https"}},
		SourceURL:   "https://archlinux.org/mirrors/status/json/",
		GeneratedAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	if err := Write(&buf, endpoints, opts); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	out := buf.String()

	want := []string{
		"Server = https://a.example.com/archlinux/$repo/os/$arch",
		"Server = https://b.example.com/archlinux/$repo/os/$arch",
	}
	if diff := cmp.Diff(want, serverLines(out)); diff != "" {
		t.Errorf("server lines mismatch (-want +got):\n%s", diff)
	}
	for _, header := range []string{
		"## Generated by mirrorrank on 2026-10-18T12:00:00Z",
		"## Source: https://archlinux.org/mirrors/status/json/",
		"## Criteria: country=US protocols=https ipv4=true ipv6=false max_delay=3600s",
		"## Mirrors: 2",
		"## Somewhere (US) score 0.500",
	} {
		if !strings.Contains(out, header) {
			t.Errorf("output missing %q:\n%s", header, out)
		}
	}
}

func TestWriteLimitCommentsOutRest(t *testing.T) {
	endpoints := []mirror.Endpoint{
		endpoint("https://a.example.com/", "DE", 0.1),
		endpoint("https://b.example.com/", "DE", 0.2),
		endpoint("https://c.example.com/", "DE", 0.3),
	}

	var buf bytes.Buffer
	if err := Write(&buf, endpoints, Options{Limit: 2}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	want := []string{
		"Server = https://a.example.com/$repo/os/$arch",
		"Server = https://b.example.com/$repo/os/$arch",
		"#Server = https://c.example.com/$repo/os/$arch",
	}
	if diff := cmp.Diff(want, serverLines(buf.String())); diff != "" {
		t.Errorf("server lines mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, Options{}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if len(serverLines(buf.String())) != 0 {
		t.Error("expected no server lines")
	}
	if !strings.Contains(buf.String(), "## Mirrors: 0") {
		t.Errorf("expected mirror count header, got:\n%s", buf.String())
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirrorlist")
	if err := os.WriteFile(path, []byte("old contents\n"), 0600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	endpoints := []mirror.Endpoint{endpoint("https://a.example.com/", "FR", 1)}
	if err := WriteFile(path, endpoints, Options{}); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if strings.Contains(string(data), "old contents") {
		t.Error("expected file to be replaced")
	}
	if !strings.Contains(string(data), "Server = https://a.example.com/$repo/os/$arch") {
		t.Errorf("unexpected contents:\n%s", data)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if fi.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", fi.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected temp file to be cleaned up, found %d entries", len(entries))
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "mirrorlist")
	if err := WriteFile(path, nil, Options{}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestDescribeDefaults(t *testing.T) {
	got := Describe(mirror.DefaultCriteria())
	want := "country=any protocols=any ipv4=true ipv6=false max_delay=3600s"
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestUsable(t *testing.T) {
	tests := map[string]bool{
		"https://a.example.com/":   true,
		"http://a.example.com/":    true,
		"ftp://a.example.com/":     true,
		"HTTPS://a.example.com/":   true,
		"rsync://a.example.com/":   false,
		"a.example.com/archlinux/": false,
	}
	for in, want := range tests {
		if got := Usable(in); got != want {
			t.Errorf("Usable(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriteCommentsOutRsync(t *testing.T) {
	rsync := endpoint("rsync://r.example.com/archlinux/", "DE", 0.05)
	rsync.Protocol = "rsync"
	endpoints := []mirror.Endpoint{
		rsync,
		endpoint("https://a.example.com/", "DE", 0.1),
		endpoint("https://b.example.com/", "DE", 0.2),
	}

	var buf bytes.Buffer
	if err := Write(&buf, endpoints, Options{Limit: 1}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	want := []string{
		"#Server = rsync://r.example.com/archlinux/$repo/os/$arch",
		"Server = https://a.example.com/$repo/os/$arch",
		"#Server = https://b.example.com/$repo/os/$arch",
	}
	if diff := cmp.Diff(want, serverLines(buf.String())); diff != "" {
		t.Errorf("server lines mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(buf.String(), "## rsync mirror, not usable by pacman") {
		t.Errorf("expected rsync note, got:\n%s", buf.String())
	}
}
