// Package config loads prospector settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/prospector/internal/pipeline"
	"github.com/FranksOps/prospector/internal/storage"
	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// AppName is used for XDG paths.
	AppName = "prospector"

	// EnvPrefix prefixes environment overrides, e.g. PROSPECTOR_SEARCH_API_KEY.
	EnvPrefix = "PROSPECTOR"

	// LocalConfigFile is looked up in the working directory when no XDG
	// config exists.
	LocalConfigFile = "prospector.yaml"
)

// Backend kinds for sheets.backend.
const (
	BackendXLSX     = "xlsx"
	BackendCSV      = "csv"
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config is the complete run configuration.
type Config struct {
	// Keywords is the keyword file, one per line.
	Keywords    string          `mapstructure:"keywords"`
	Workers     int             `mapstructure:"workers"`
	MetricsPort int             `mapstructure:"metrics_port"`
	Report      string          `mapstructure:"report"`
	Search      SearchConfig    `mapstructure:"search"`
	Authority   AuthorityConfig `mapstructure:"authority"`
	Filter      FilterConfig    `mapstructure:"filter"`
	Contacts    ContactConfig   `mapstructure:"contacts"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Sheets      SheetsConfig    `mapstructure:"sheets"`
}

// SearchConfig configures serper.dev.
type SearchConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Endpoint          string        `mapstructure:"endpoint"`
	Country           string        `mapstructure:"country"`
	MaxResults        int           `mapstructure:"max_results"`
	SiteQueryResults  int           `mapstructure:"site_query_results"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// AuthorityConfig configures Ahrefs.
type AuthorityConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Endpoint          string        `mapstructure:"endpoint"`
	BacklinkThreshold float64       `mapstructure:"backlink_threshold"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// FilterConfig holds the site filters.
type FilterConfig struct {
	PageCountCeiling int     `mapstructure:"page_count_ceiling"`
	AuthorityMin     float64 `mapstructure:"authority_min"`
	AuthorityMax     float64 `mapstructure:"authority_max"`
}

// ContactConfig configures the contact crawler.
type ContactConfig struct {
	MaxDepth          int           `mapstructure:"max_depth"`
	MaxPages          int           `mapstructure:"max_pages"`
	Concurrency       int           `mapstructure:"concurrency"`
	RespectRobots     bool          `mapstructure:"respect_robots"`
	UseSitemap        bool          `mapstructure:"use_sitemap"`
	UserAgent         string        `mapstructure:"user_agent"`
	UserAgentMode     string        `mapstructure:"user_agent_mode"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	ProxiesFile       string        `mapstructure:"proxies_file"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Jitter            float64       `mapstructure:"jitter"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// SheetsConfig locates the results and partner workbooks. Results and
// Partners are file paths, directories (csv) or DSNs (postgres) depending
// on Backend. An empty Partners skips the partner list.
type SheetsConfig struct {
	Backend       string   `mapstructure:"backend"`
	Results       string   `mapstructure:"results"`
	Partners      string   `mapstructure:"partners"`
	ResultRanges  []string `mapstructure:"result_ranges"`
	PartnerRanges []string `mapstructure:"partner_ranges"`
	AppendRange   string   `mapstructure:"append_range"`
	WriteHeader   bool     `mapstructure:"write_header"`
}

func setDefaults(v *viper.Viper) {
	def := pipeline.DefaultConfig()

	v.SetDefault("keywords", "keywords.txt")
	v.SetDefault("workers", def.Workers)
	v.SetDefault("metrics_port", 0)
	v.SetDefault("report", "text")

	v.SetDefault("search.api_key", "")
	v.SetDefault("search.endpoint", "")
	v.SetDefault("search.country", "us")
	v.SetDefault("search.max_results", def.MaxSearchResults)
	v.SetDefault("search.site_query_results", def.SiteQueryMaxResults)
	v.SetDefault("search.requests_per_second", 0)
	v.SetDefault("search.timeout", 30*time.Second)

	v.SetDefault("authority.api_key", "")
	v.SetDefault("authority.endpoint", "")
	v.SetDefault("authority.backlink_threshold", def.BacklinkAuthorityThreshold)
	v.SetDefault("authority.requests_per_second", 0)
	v.SetDefault("authority.timeout", 30*time.Second)

	v.SetDefault("filter.page_count_ceiling", def.PageCountCeiling)
	v.SetDefault("filter.authority_min", def.AuthorityMin)
	v.SetDefault("filter.authority_max", def.AuthorityMax)

	v.SetDefault("contacts.max_depth", 2)
	v.SetDefault("contacts.max_pages", 30)
	v.SetDefault("contacts.concurrency", 4)
	v.SetDefault("contacts.respect_robots", true)
	v.SetDefault("contacts.use_sitemap", true)
	v.SetDefault("contacts.user_agent", "")
	v.SetDefault("contacts.user_agent_mode", "sequential")
	v.SetDefault("contacts.fingerprint", "chrome")
	v.SetDefault("contacts.proxies_file", "")
	v.SetDefault("contacts.requests_per_second", 2)
	v.SetDefault("contacts.jitter", 0.2)
	v.SetDefault("contacts.timeout", 20*time.Second)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "cache")

	v.SetDefault("sheets.backend", BackendXLSX)
	v.SetDefault("sheets.results", "prospects.xlsx")
	v.SetDefault("sheets.partners", "")
	v.SetDefault("sheets.result_ranges", rangeStrings(def.ResultRanges))
	v.SetDefault("sheets.partner_ranges", rangeStrings(def.PartnerRanges))
	v.SetDefault("sheets.append_range", def.AppendRange.String())
	v.SetDefault("sheets.write_header", def.WriteHeader)
}

func rangeStrings(rs []storage.Range) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}

// XDGConfigFile returns the per-user config file path, e.g.
// ~/.config/prospector/config.yaml on Linux.
func XDGConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// FindConfigFile returns explicit if set, otherwise the first existing file
// of XDGConfigFile and LocalConfigFile, otherwise "".
func FindConfigFile(fsys afero.Fs, explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range []string{XDGConfigFile(), LocalConfigFile} {
		if ok, _ := afero.Exists(fsys, p); ok {
			return p
		}
	}
	return ""
}

// Load reads the config file at path (see FindConfigFile), applies
// PROSPECTOR_* environment overrides and returns the result. An empty path
// loads defaults and environment only. Load does not validate.
func Load(fsys afero.Fs, path string) (*Config, error) {
	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate returns the first problem found.
func (c *Config) Validate() error {
	if c.Search.APIKey == "" {
		return ErrMissingSearchKey
	}
	if c.Authority.APIKey == "" {
		return ErrMissingAuthorityKey
	}
	if c.Search.MaxResults <= 0 || c.Search.SiteQueryResults <= 0 {
		return ErrInvalidResultLimit
	}
	if c.Filter.AuthorityMin > c.Filter.AuthorityMax {
		return ErrInvalidAuthorityRange
	}
	if c.Authority.BacklinkThreshold < 0 {
		return ErrInvalidBacklinkThreshold
	}
	if c.Workers < 1 {
		return ErrInvalidWorkers
	}
	switch c.Sheets.Backend {
	case BackendXLSX, BackendCSV, BackendJSON, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Sheets.Backend)
	}
	if c.Sheets.Results == "" {
		return ErrMissingResults
	}
	switch c.Report {
	case "text", "json", "html":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReport, c.Report)
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		return ErrMissingCacheDir
	}
	if _, err := c.Pipeline(); err != nil {
		return err
	}
	return nil
}

// Pipeline converts the run thresholds and sheet layout.
func (c *Config) Pipeline() (pipeline.Config, error) {
	pc := pipeline.Config{
		MaxSearchResults:           c.Search.MaxResults,
		SiteQueryMaxResults:        c.Search.SiteQueryResults,
		PageCountCeiling:           c.Filter.PageCountCeiling,
		AuthorityMin:               c.Filter.AuthorityMin,
		AuthorityMax:               c.Filter.AuthorityMax,
		BacklinkAuthorityThreshold: c.Authority.BacklinkThreshold,
		Workers:                    c.Workers,
		WriteHeader:                c.Sheets.WriteHeader,
	}

	var errs []error
	parse := func(field string, in []string) []storage.Range {
		out := make([]storage.Range, 0, len(in))
		for _, s := range in {
			r, err := storage.ParseRange(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("sheets.%s: %w", field, err))
				continue
			}
			out = append(out, r)
		}
		return out
	}
	pc.ResultRanges = parse("result_ranges", c.Sheets.ResultRanges)
	pc.PartnerRanges = parse("partner_ranges", c.Sheets.PartnerRanges)
	if appendRanges := parse("append_range", []string{c.Sheets.AppendRange}); len(appendRanges) == 1 {
		pc.AppendRange = appendRanges[0]
	}
	if err := errors.Join(errs...); err != nil {
		return pipeline.Config{}, err
	}
	return pc, nil
}
