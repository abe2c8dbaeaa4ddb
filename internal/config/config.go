package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/BadgerOps/mirrorrank/internal/mirror"
	"github.com/BadgerOps/mirrorrank/internal/safety"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Protocols lists the mirror protocols published in the status feed.
var Protocols = []string{"http", "https", "rsync", "ftp"}

var countryCodePattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Config is the top-level configuration
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Criteria CriteriaConfig `yaml:"criteria"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
}

// SourceConfig controls how the mirror status feed is fetched
type SourceConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	RetryMax int           `yaml:"retry_max"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// CriteriaConfig holds the default selection constraints
type CriteriaConfig struct {
	Country     string   `yaml:"country"`
	Protocols   []string `yaml:"protocols"`
	RequireIPv4 bool     `yaml:"require_ipv4"`
	RequireIPv6 bool     `yaml:"require_ipv6"`
	MaxDelay    *int64   `yaml:"max_delay,omitempty"`
}

// OutputConfig controls where and how the mirrorlist is written
type OutputConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// ServerConfig holds HTTP API and history settings
type ServerConfig struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`

	// SpeedTestPerMinute caps POST /api/speedtest requests; 0 disables the cap.
	SpeedTestPerMinute int `yaml:"speedtest_per_minute"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	defaults := mirror.DefaultCriteria()
	return &Config{
		Source: SourceConfig{
			URL:      mirror.DefaultStatusURL,
			Timeout:  30 * time.Second,
			RetryMax: 3,
			CacheTTL: 1 * time.Hour,
		},
		Criteria: CriteriaConfig{
			RequireIPv4: defaults.RequireIPv4,
			RequireIPv6: defaults.RequireIPv6,
		},
		Server: ServerConfig{
			Listen:             "127.0.0.1:8080",
			SpeedTestPerMinute: 6,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"mirrorrank.yaml",
		"/etc/mirrorrank/mirrorrank.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "mirrorrank", "mirrorrank.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if _, err := safety.ValidateHTTPURL(c.Source.URL); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("source.url: %w", err))
	}
	if c.Source.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("source.timeout must not be negative"))
	}
	if c.Source.CacheTTL < 0 {
		errs = multierror.Append(errs, fmt.Errorf("source.cache_ttl must not be negative"))
	}
	errs = multierror.Append(errs, ValidateCriteria(c.Criteria))
	if c.Output.Limit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("output.limit must not be negative"))
	}
	if c.Server.SpeedTestPerMinute < 0 {
		errs = multierror.Append(errs, fmt.Errorf("server.speedtest_per_minute must not be negative"))
	}

	return errs.ErrorOrNil()
}

// ValidateCriteria checks user-supplied selection constraints. Unknown
// protocols and country codes are not errors; they select nothing.
func ValidateCriteria(cc CriteriaConfig) error {
	var errs *multierror.Error

	if cc.MaxDelay != nil && *cc.MaxDelay < 0 {
		errs = multierror.Append(errs, fmt.Errorf("criteria.max_delay must not be negative"))
	}

	return errs.ErrorOrNil()
}

// Warnings describes constraints that are valid but cannot match any mirror
// in the status feed.
func (cc CriteriaConfig) Warnings() []string {
	var warnings []string
	if cc.Country != "" && !countryCodePattern.MatchString(cc.Country) {
		warnings = append(warnings, fmt.Sprintf("country %q is not a two-letter upper-case country code and matches no mirror", cc.Country))
	}
	for _, p := range cc.Protocols {
		if !slices.Contains(Protocols, p) {
			warnings = append(warnings, fmt.Sprintf("protocol %q is not one of %v and matches no mirror", p, Protocols))
		}
	}
	return warnings
}

// Criteria converts the configured constraints into selection criteria.
func (cc CriteriaConfig) Criteria() mirror.Criteria {
	c := mirror.Criteria{
		RequireIPv4: cc.RequireIPv4,
		RequireIPv6: cc.RequireIPv6,
		Protocols:   slices.Clone(cc.Protocols),
	}
	if cc.Country != "" {
		country := cc.Country
		c.Country = &country
	}
	if cc.MaxDelay != nil {
		delay := *cc.MaxDelay
		c.MaxDelay = &delay
	}
	return c
}

// DiscoveryOptions returns the status feed settings for mirror.NewDiscovery.
func (s SourceConfig) DiscoveryOptions() mirror.DiscoveryOptions {
	return mirror.DiscoveryOptions{
		StatusURL: s.URL,
		Timeout:   s.Timeout,
		RetryMax:  s.RetryMax,
		CacheTTL:  s.CacheTTL,
	}
}
