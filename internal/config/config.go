// Package config resolves the run configuration from flags, environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/dorker/internal/backoff"
	"github.com/FranksOps/dorker/internal/fingerprint"
	"github.com/FranksOps/dorker/internal/netcheck"
	"github.com/FranksOps/dorker/internal/report"
	"github.com/FranksOps/dorker/internal/serp"
	"github.com/FranksOps/dorker/internal/sink"
)

// EnvPrefix prefixes every environment variable, e.g. DORKER_API_KEY.
const EnvPrefix = "DORKER"

// Keys shared by flags, environment variables and config files.
const (
	KeyQuery           = "query"
	KeyDorkFile        = "dork-file"
	KeyResults         = "results"
	KeyOutput          = "output"
	KeyDisplay         = "display"
	KeyInfo            = "info"
	KeyUserAgent       = "user-agent"
	KeyAPIKey          = "api-key"
	KeyEngineID        = "search-engine-id"
	KeyBackend         = "backend"
	KeyFormat          = "format"
	KeyTimeout         = "timeout"
	KeySelectors       = "selectors"
	KeyTLSProfile      = "tls-profile"
	KeyProxyFile       = "proxy-file"
	KeyRandomUserAgent = "random-user-agent"
	KeyMetricsPort     = "metrics-port"
	KeySummary         = "summary"
	KeyLogLevel        = "log-level"
	KeyConfig          = "config"
	KeyNoColor         = "no-color"

	// Config-file only.
	KeyScrapeURL     = "endpoints.scrape"
	KeyAPIURL        = "endpoints.api"
	KeyProbeURL      = "endpoints.probe"
	KeyDuckDuckGoURL = "endpoints.duckduckgo"

	KeyBackoffMinDelay      = "backoff.min-delay"
	KeyBackoffMaxDelay      = "backoff.max-delay"
	KeyBackoffFailureUnit   = "backoff.failure-unit"
	KeyBackoffFailureSpread = "backoff.failure-spread"
	KeyBackoffFailureCap    = "backoff.failure-cap"

	KeySelectorOverride = "selector-override"
)

// Backend choices accepted by --backend.
const (
	BackendAuto    = "auto"
	BackendScrape  = string(serp.BackendScrape)
	BackendAPI     = string(serp.BackendAPI)
	BackendLibrary = string(serp.BackendLibrary)
)

// ErrConfiguration marks every invalid or inconsistent setting.
var ErrConfiguration = errors.New("invalid configuration")

// Error names the offending setting. errors.Is(err, ErrConfiguration) holds
// for every *Error.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

func (e *Error) Unwrap() error { return ErrConfiguration }

// Endpoints are the upstream URLs. They are only overridden in tests and
// for self-hosted mirrors.
type Endpoints struct {
	Scrape     string
	API        string
	Probe      string
	DuckDuckGo string
}

// SearchConfig is the resolved, read-only run configuration.
type SearchConfig struct {
	Query           string
	DorkFile        string
	Results         int
	Output          string
	Format          sink.Format
	Display         bool
	Info            bool
	UserAgent       string
	RandomUserAgent bool
	APIKey          string
	EngineID        string
	Backend         string
	Timeout         time.Duration
	Selectors       string
	// SelectorOverride replaces the versioned set when its container and
	// link rules are set in the config file.
	SelectorOverride serp.Selectors
	TLSProfile       fingerprint.Profile
	ProxyFile        string
	MetricsPort      int
	Summary          report.Format
	LogLevel         slog.Level
	NoColor          bool
	ConfigFile       string
	Endpoints        Endpoints
	Backoff          backoff.Config
}

// RegisterFlags defines the command-line flags on fs. -df and -seid are
// handled by NormalizeArgs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyQuery, "q", "", "search query or dork to run")
	fs.String(KeyDorkFile, "", "file with one query per line")
	fs.IntP(KeyResults, "r", 15, "maximum number of results per query")
	fs.StringP(KeyOutput, "o", "sources.txt", "output file, appended to")
	fs.BoolP(KeyDisplay, "d", false, "print results to the console as they are written")
	fs.BoolP(KeyInfo, "i", false, "gather titles and descriptions")
	fs.StringP(KeyUserAgent, "u", "", "override the User-Agent header (default: a desktop browser string)")
	fs.StringP(KeyAPIKey, "a", "", "search API key")
	fs.String(KeyEngineID, "", "search engine id for the API")
	fs.String(KeyBackend, BackendAuto, "auto, scrape, api or library")
	fs.String(KeyFormat, string(sink.FormatText), "output format: text, jsonl or csv")
	fs.Duration(KeyTimeout, 20*time.Second, "timeout for every outbound request")
	fs.String(KeySelectors, serp.DefaultSelectors, "results-page selector set ("+strings.Join(serp.SelectorVersions(), ", ")+")")
	fs.String(KeyTLSProfile, string(fingerprint.ProfileGo), "TLS fingerprint for scraping: go, chrome, firefox, safari or random")
	fs.String(KeyProxyFile, "", "file with one proxy URL per line for scraping")
	fs.Bool(KeyRandomUserAgent, false, "rotate through built-in desktop User-Agents")
	fs.Int(KeyMetricsPort, 0, "serve Prometheus metrics on this port (0 disables)")
	fs.String(KeySummary, "", "print a run summary to stderr: text, json or html")
	fs.String(KeyLogLevel, "info", "log level: debug, info, warn or error")
	fs.String(KeyConfig, "", "config file (yaml, toml or json)")
	fs.Bool(KeyNoColor, false, "disable colored console output")
}

// NormalizeArgs rewrites the multi-letter short forms -df and -seid, which
// pflag cannot express, to their long names.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, a := range args {
		if a == "--" {
			return append(out, args[i:]...)
		}
		switch {
		case a == "-df":
			a = "--" + KeyDorkFile
		case strings.HasPrefix(a, "-df="):
			a = "--" + KeyDorkFile + a[len("-df"):]
		case a == "-seid":
			a = "--" + KeyEngineID
		case strings.HasPrefix(a, "-seid="):
			a = "--" + KeyEngineID + a[len("-seid"):]
		}
		out = append(out, a)
	}
	return out
}

// NewViper returns a viper instance with defaults and DORKER_ environment
// binding. Flags are bound separately with v.BindPFlags.
func NewViper() *viper.Viper {
	v := viper.New()

	def := backoff.DefaultConfig()
	v.SetDefault(KeyResults, 15)
	v.SetDefault(KeyOutput, "sources.txt")
	v.SetDefault(KeyBackend, BackendAuto)
	v.SetDefault(KeyFormat, string(sink.FormatText))
	v.SetDefault(KeyTimeout, 20*time.Second)
	v.SetDefault(KeySelectors, serp.DefaultSelectors)
	v.SetDefault(KeyTLSProfile, string(fingerprint.ProfileGo))
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyScrapeURL, serp.DefaultScrapeURL)
	v.SetDefault(KeyAPIURL, serp.DefaultAPIURL)
	v.SetDefault(KeyProbeURL, netcheck.DefaultURL)
	v.SetDefault(KeyDuckDuckGoURL, serp.DefaultDuckDuckGoURL)
	v.SetDefault(KeyBackoffMinDelay, def.MinDelay)
	v.SetDefault(KeyBackoffMaxDelay, def.MaxDelay)
	v.SetDefault(KeyBackoffFailureUnit, def.FailureUnit)
	v.SetDefault(KeyBackoffFailureSpread, def.FailureSpread)
	v.SetDefault(KeyBackoffFailureCap, def.FailureCap)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file named by the config key, if any, and builds a
// validated SearchConfig.
func Load(v *viper.Viper) (SearchConfig, error) {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return SearchConfig{}, &Error{Field: KeyConfig, Msg: fmt.Sprintf("read %s: %v", path, err)}
		}
	}

	cfg := SearchConfig{
		Query:           v.GetString(KeyQuery),
		DorkFile:        v.GetString(KeyDorkFile),
		Results:         v.GetInt(KeyResults),
		Output:          v.GetString(KeyOutput),
		Display:         v.GetBool(KeyDisplay),
		Info:            v.GetBool(KeyInfo),
		UserAgent:       v.GetString(KeyUserAgent),
		RandomUserAgent: v.GetBool(KeyRandomUserAgent),
		APIKey:          strings.TrimSpace(v.GetString(KeyAPIKey)),
		EngineID:        strings.TrimSpace(v.GetString(KeyEngineID)),
		Backend:         strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend))),
		Timeout:         v.GetDuration(KeyTimeout),
		Selectors:       v.GetString(KeySelectors),
		ProxyFile:       v.GetString(KeyProxyFile),
		MetricsPort:     v.GetInt(KeyMetricsPort),
		NoColor:         v.GetBool(KeyNoColor),
		ConfigFile:      v.ConfigFileUsed(),
		Endpoints: Endpoints{
			Scrape:     v.GetString(KeyScrapeURL),
			API:        v.GetString(KeyAPIURL),
			Probe:      v.GetString(KeyProbeURL),
			DuckDuckGo: v.GetString(KeyDuckDuckGoURL),
		},
		Backoff: backoff.Config{
			MinDelay:      v.GetDuration(KeyBackoffMinDelay),
			MaxDelay:      v.GetDuration(KeyBackoffMaxDelay),
			FailureUnit:   v.GetDuration(KeyBackoffFailureUnit),
			FailureSpread: v.GetInt(KeyBackoffFailureSpread),
			FailureCap:    v.GetDuration(KeyBackoffFailureCap),
		},
	}

	if v.IsSet(KeySelectorOverride) {
		if err := v.UnmarshalKey(KeySelectorOverride, &cfg.SelectorOverride); err != nil {
			return SearchConfig{}, &Error{Field: KeySelectorOverride, Msg: err.Error()}
		}
		if cfg.SelectorOverride.Version == "" {
			cfg.SelectorOverride.Version = "custom"
		}
	}

	var errs []error
	var err error
	if cfg.Format, err = sink.ParseFormat(v.GetString(KeyFormat)); err != nil {
		errs = append(errs, &Error{Field: KeyFormat, Msg: err.Error()})
	}
	if cfg.Summary, err = report.ParseFormat(v.GetString(KeySummary)); err != nil {
		errs = append(errs, &Error{Field: KeySummary, Msg: err.Error()})
	}
	if cfg.TLSProfile, err = fingerprint.ParseProfile(v.GetString(KeyTLSProfile)); err != nil {
		errs = append(errs, &Error{Field: KeyTLSProfile, Msg: err.Error()})
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		errs = append(errs, &Error{Field: KeyLogLevel, Msg: err.Error()})
	}
	if len(errs) > 0 {
		return SearchConfig{}, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return SearchConfig{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and the API credential pairing.
func (c SearchConfig) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &Error{Field: field, Msg: fmt.Sprintf(format, args...)})
	}

	if (c.APIKey == "") != (c.EngineID == "") {
		bad(KeyAPIKey, "api key and search engine id must be given together")
	}
	if c.Results <= 0 {
		bad(KeyResults, "must be positive, got %d", c.Results)
	}
	if strings.TrimSpace(c.Output) == "" {
		bad(KeyOutput, "must not be empty")
	}
	if c.Timeout < 0 {
		bad(KeyTimeout, "must not be negative, got %s", c.Timeout)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		bad(KeyMetricsPort, "out of range: %d", c.MetricsPort)
	}

	switch c.Backend {
	case BackendAuto, "":
	case BackendAPI:
		if c.APIKey == "" {
			bad(KeyBackend, "the api backend needs --api-key and --search-engine-id")
		}
	case BackendScrape, BackendLibrary:
		if c.APIKey != "" {
			bad(KeyBackend, "%s backend conflicts with api credentials", c.Backend)
		}
	default:
		bad(KeyBackend, "unknown backend %q (want auto, scrape, api or library)", c.Backend)
	}

	if c.SelectorOverride.Container != "" || c.SelectorOverride.Link != "" {
		if err := c.SelectorOverride.Validate(); err != nil {
			bad(KeySelectorOverride, "%v", err)
		}
	} else if _, err := serp.LookupSelectors(c.Selectors); err != nil {
		bad(KeySelectors, "%v", err)
	}

	if c.Backoff.MinDelay < 0 || c.Backoff.MaxDelay < c.Backoff.MinDelay {
		bad("backoff", "delays must satisfy 0 <= min-delay <= max-delay")
	}

	return errors.Join(errs...)
}

// ResolveBackend applies the selection policy: explicit choice first, then
// the API when credentials are present, otherwise scraping.
func (c SearchConfig) ResolveBackend() serp.Backend {
	switch c.Backend {
	case BackendScrape, BackendAPI, BackendLibrary:
		return serp.Backend(c.Backend)
	}
	if c.APIKey != "" && c.EngineID != "" {
		return serp.BackendAPI
	}
	return serp.BackendScrape
}

// BatchMode reports whether queries come from a file. A dork file takes
// precedence over a single query.
func (c SearchConfig) BatchMode() bool {
	return c.DorkFile != ""
}

// ResultSelectors returns the selector set the scraper should use.
func (c SearchConfig) ResultSelectors() (serp.Selectors, error) {
	if c.SelectorOverride.Container != "" || c.SelectorOverride.Link != "" {
		return c.SelectorOverride, nil
	}
	return serp.LookupSelectors(c.Selectors)
}
