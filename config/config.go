package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Selectors locates the pieces of a listing or detail page. The defaults
// match the PrestaShop theme the harvester was written against.
type Selectors struct {
	ProductContainer string
	TitleLink        string
	Price            string
	ShortDescription string
	NextPage         string
	Barcode          string
}

// DefaultSelectors returns the selectors for the default storefront theme.
func DefaultSelectors() Selectors {
	return Selectors{
		ProductContainer: "article.product-miniature",
		TitleLink:        "h3.product-title a",
		Price:            "div.product-price-and-shipping span.price",
		ShortDescription: "p.an_short_description",
		NextPage:         "nav.pagination a.next",
		Barcode:          "dd.value",
	}
}

// Config holds harvester configuration for one pipeline run.
type Config struct {
	BaseURL string
	// CatalogURL, when set, is used as the listing start page instead of
	// asking the text service to pick one of the discovered links.
	CatalogURL     string
	MaxPages       int
	Timeout        time.Duration
	PageDelayMin   time.Duration
	PageDelayMax   time.Duration
	UserAgent      string
	AcceptLanguage string
	Selectors      Selectors

	Credential models.Credential

	APIKey               string
	Model                string
	LLMBaseURL           string
	LLMTimeout           time.Duration
	TranslateWorkers     int
	TranslateInterval    time.Duration
	TranslationCacheSize int
	SkipTranslation      bool

	OutputFile   string
	OutputFormat string // comma-separated sinks: csv, json, postgres; dual is csv,json
	DatabaseURL  string
	Verbose      bool
	MetricsAddr  string
}

// DefaultConfig returns conservative defaults for the demo storefront.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              "https://pali.plus",
		MaxPages:             1,
		Timeout:              20 * time.Second,
		PageDelayMin:         2 * time.Second,
		PageDelayMax:         3 * time.Second,
		UserAgent:            "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		AcceptLanguage:       "en-US,en;q=0.9",
		Selectors:            DefaultSelectors(),
		Model:                "gpt-4",
		LLMTimeout:           60 * time.Second,
		TranslateWorkers:     4,
		TranslateInterval:    500 * time.Millisecond,
		TranslationCacheSize: 256,
		OutputFile:           "output/product_data.csv",
		OutputFormat:         "csv",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.CatalogURL != "" {
		if u, err := url.Parse(c.CatalogURL); err != nil || u.Host == "" {
			return fmt.Errorf("invalid catalog URL %q", c.CatalogURL)
		}
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.PageDelayMin < 0 || c.PageDelayMax < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.PageDelayMin > c.PageDelayMax {
		return fmt.Errorf("page delay min (%s) cannot exceed page delay max (%s)", c.PageDelayMin, c.PageDelayMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Credential.Email == "" || c.Credential.Password == "" {
		return fmt.Errorf("credential email and password are required")
	}

	if c.NeedsTextService() && c.APIKey == "" {
		return fmt.Errorf("api key is required unless translation is skipped and a catalog URL is given")
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}
	if c.TranslateWorkers <= 0 {
		return fmt.Errorf("translate workers must be positive")
	}
	if c.TranslateInterval < 0 {
		return fmt.Errorf("translate interval cannot be negative")
	}
	if c.TranslationCacheSize < 0 {
		return fmt.Errorf("translation cache size cannot be negative")
	}

	sinks := c.Sinks()
	if len(sinks) == 0 {
		return fmt.Errorf("output format cannot be empty")
	}
	for _, sink := range sinks {
		switch sink {
		case "csv", "json":
		case "postgres":
			if c.DatabaseURL == "" {
				return fmt.Errorf("database URL is required for postgres output")
			}
		default:
			return fmt.Errorf("output format must list csv, json, dual, or postgres, got %q", sink)
		}
	}
	if c.OutputFile == "" && c.WritesFile() {
		return fmt.Errorf("output file cannot be empty")
	}

	return nil
}

// Sinks expands OutputFormat into distinct sink names in the order given.
func (c *Config) Sinks() []string {
	var sinks []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(strings.ToLower(c.OutputFormat), ",") {
		names := []string{strings.TrimSpace(part)}
		if names[0] == "dual" {
			names = []string{"csv", "json"}
		}
		for _, name := range names {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			sinks = append(sinks, name)
		}
	}
	return sinks
}

// WritesFile reports whether any sink writes to OutputFile.
func (c *Config) WritesFile() bool {
	for _, sink := range c.Sinks() {
		if sink == "csv" || sink == "json" {
			return true
		}
	}
	return false
}

// NeedsTextService reports whether the run calls the text service at all.
func (c *Config) NeedsTextService() bool {
	return !c.SkipTranslation || c.CatalogURL == ""
}
