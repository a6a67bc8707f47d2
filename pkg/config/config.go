package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "igtags/pkg/errors"
)

// Config holds all configuration options for a collection run
type Config struct {
	Output    OutputConfig    `yaml:"output" json:"output"`
	Scrape    ScrapeConfig    `yaml:"scrape" json:"scrape"`
	Companies CompaniesConfig `yaml:"companies" json:"companies"`
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Images    ImagesConfig    `yaml:"images" json:"images"`
	Mirror    MirrorConfig    `yaml:"mirror" json:"mirror"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// OutputConfig holds the output directory shared by the table and the images
type OutputConfig struct {
	Directory string `yaml:"directory" json:"directory"`
	ClearOld  bool   `yaml:"clear_old" json:"clear_old"`
}

// ScrapeConfig selects the phases and their bounds
type ScrapeConfig struct {
	Posts            bool `yaml:"posts" json:"posts"`
	Images           bool `yaml:"images" json:"images"`
	Comments         bool `yaml:"comments" json:"comments"`
	MaxPosts         int  `yaml:"max_posts" json:"max_posts"`
	MaxComments      int  `yaml:"max_comments" json:"max_comments"`
	MinCommentLength int  `yaml:"min_comment_length" json:"min_comment_length"`
}

// CompaniesConfig points at the tag-group file
type CompaniesConfig struct {
	File      string   `yaml:"file" json:"file"`
	Selection []string `yaml:"selection" json:"selection"`
}

// InstagramConfig holds browser and account settings
type InstagramConfig struct {
	Login             string        `yaml:"login" json:"login"`
	Password          string        `yaml:"password" json:"password"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	Headless          bool          `yaml:"headless" json:"headless"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	WaitTimeout       time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	LoadMoreDelay     time.Duration `yaml:"load_more_delay" json:"load_more_delay"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// StoreConfig selects the snapshot backend
type StoreConfig struct {
	Format string `yaml:"format" json:"format"`
}

// RetryConfig holds the image fetch policy
type RetryConfig struct {
	ImageAttempts int           `yaml:"image_attempts" json:"image_attempts"`
	ImageDelay    time.Duration `yaml:"image_delay" json:"image_delay"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// ImagesConfig controls how fetched payloads are written
type ImagesConfig struct {
	Normalize bool `yaml:"normalize" json:"normalize"`
	MaxWidth  int  `yaml:"max_width" json:"max_width"`
	Quality   int  `yaml:"quality" json:"quality"`
}

// MirrorConfig configures the optional remote copy of saved assets
type MirrorConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	Bucket   string `yaml:"bucket" json:"bucket"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	Region   string `yaml:"region" json:"region"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Workers  int    `yaml:"workers" json:"workers"`

	// Static S3 credentials; empty falls back to the AWS default chain
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

const (
	StoreFormatCSV    = "csv"
	StoreFormatSQLite = "sqlite"

	MirrorNone = "none"
	MirrorGCS  = "gcs"
	MirrorS3   = "s3"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Directory: "./data",
		},
		Scrape: ScrapeConfig{
			Posts:            true,
			MaxPosts:         50,
			MaxComments:      100,
			MinCommentLength: 2,
		},
		Companies: CompaniesConfig{
			File: "companies.json",
		},
		Instagram: InstagramConfig{
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			Headless:          true,
			NavigationTimeout: 45 * time.Second,
			WaitTimeout:       10 * time.Second,
			LoadMoreDelay:     7 * time.Second,
			DownloadTimeout:   30 * time.Second,
		},
		Store: StoreConfig{
			Format: StoreFormatCSV,
		},
		Retry: RetryConfig{
			ImageAttempts: 3,
			ImageDelay:    5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Images: ImagesConfig{
			Normalize: true,
			Quality:   90,
		},
		Mirror: MirrorConfig{
			Provider: MirrorNone,
			Workers:  2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var problems []error

	if v := os.Getenv("SCRAPER_OUTPUT_PATH"); v != "" {
		c.Output.Directory = v
	}
	if v := os.Getenv("INSTAGRAM_LOGIN"); v != "" {
		c.Instagram.Login = v
	}
	if v := os.Getenv("INSTAGRAM_PASSWORD"); v != "" {
		c.Instagram.Password = v
	}
	if v := os.Getenv("SCRAPER_COMPANIES_FILE"); v != "" {
		c.Companies.File = v
	}
	if v := os.Getenv("SCRAPER_COMPANIES"); v != "" {
		c.Companies.Selection = splitList(v)
	}
	if v := os.Getenv("SCRAPER_STORE_FORMAT"); v != "" {
		c.Store.Format = strings.ToLower(v)
	}
	if v := os.Getenv("SCRAPER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MIRROR_ACCESS_KEY"); v != "" {
		c.Mirror.AccessKey = v
	}
	if v := os.Getenv("MIRROR_SECRET_KEY"); v != "" {
		c.Mirror.SecretKey = v
	}

	boolVars := map[string]*bool{
		"SCRAPE_POSTS":    &c.Scrape.Posts,
		"SCRAPE_IMAGES":   &c.Scrape.Images,
		"SCRAPE_COMMENTS": &c.Scrape.Comments,
	}
	for name, dst := range boolVars {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*dst = b
	}

	if v := os.Getenv("SCRAPER_MAX_POSTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("SCRAPER_MAX_POSTS: %w", err))
		} else {
			c.Scrape.MaxPosts = n
		}
	}

	return errors.Join(problems...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igtags.yaml",
		".igtags.yml",
		filepath.Join(home, ".config", "igtags", "config.yaml"),
		filepath.Join(home, ".config", "igtags", "config.yml"),
		filepath.Join(home, ".igtags.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var problems []error

	if c.Output.Directory == "" {
		problems = append(problems, errors.New("output directory is required"))
	}

	if !c.Scrape.Posts && !c.Scrape.Images && !c.Scrape.Comments {
		problems = append(problems, errors.New("at least one of posts, images or comments must be enabled"))
	}
	if c.Scrape.MaxPosts <= 0 {
		problems = append(problems, errors.New("max posts must be positive"))
	}
	if c.Scrape.MaxComments <= 0 {
		problems = append(problems, errors.New("max comments must be positive"))
	}
	if c.Scrape.MinCommentLength < 0 {
		problems = append(problems, errors.New("min comment length cannot be negative"))
	}

	if c.Scrape.Posts && c.Companies.File == "" {
		problems = append(problems, errors.New("companies file is required for post discovery"))
	}

	if c.Instagram.NavigationTimeout <= 0 {
		problems = append(problems, errors.New("navigation timeout must be positive"))
	}
	if c.Instagram.WaitTimeout <= 0 {
		problems = append(problems, errors.New("wait timeout must be positive"))
	}
	if c.Instagram.DownloadTimeout <= 0 {
		problems = append(problems, errors.New("download timeout must be positive"))
	}

	switch c.Store.Format {
	case StoreFormatCSV, StoreFormatSQLite:
	default:
		problems = append(problems, fmt.Errorf("unknown store format %q", c.Store.Format))
	}

	if c.Retry.ImageAttempts < 1 {
		problems = append(problems, errors.New("image attempts must be at least 1"))
	}
	if c.Retry.ImageDelay < 0 {
		problems = append(problems, errors.New("image retry delay cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		problems = append(problems, errors.New("requests per minute cannot be negative"))
	}

	if c.Images.MaxWidth < 0 {
		problems = append(problems, errors.New("image max width cannot be negative"))
	}
	if c.Images.Quality < 1 || c.Images.Quality > 100 {
		problems = append(problems, errors.New("image quality must be between 1 and 100"))
	}

	switch c.Mirror.Provider {
	case MirrorNone, "":
	case MirrorGCS, MirrorS3:
		if c.Mirror.Bucket == "" {
			problems = append(problems, errors.New("mirror bucket is required"))
		}
		if c.Mirror.Workers <= 0 {
			problems = append(problems, errors.New("mirror workers must be positive"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown mirror provider %q", c.Mirror.Provider))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, errors.New("invalid log level"))
	}

	return errors.Join(problems...)
}

// ValidateCredentials fails when comments are requested without a login.
func (c *Config) ValidateCredentials() error {
	if !c.Scrape.Comments {
		return nil
	}
	if c.Instagram.Login == "" || c.Instagram.Password == "" {
		return errs.New(errs.ErrorTypeConfig,
			"scraping comments requires authentication, please provide login and password")
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Masked returns a copy that is safe to print.
func (c *Config) Masked() *Config {
	cp := *c
	if cp.Instagram.Password != "" {
		cp.Instagram.Password = "********"
	}
	if cp.Mirror.SecretKey != "" {
		cp.Mirror.SecretKey = "********"
	}
	cp.Companies.Selection = append([]string(nil), c.Companies.Selection...)
	return &cp
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output-path"].(string); ok && v != "" {
		c.Output.Directory = v
	}
	if v, ok := flags["clear-old"].(bool); ok {
		c.Output.ClearOld = v
	}
	if v, ok := flags["scrape-posts"].(bool); ok {
		c.Scrape.Posts = v
	}
	if v, ok := flags["scrape-images"].(bool); ok {
		c.Scrape.Images = v
	}
	if v, ok := flags["scrape-comments"].(bool); ok {
		c.Scrape.Comments = v
	}
	if v, ok := flags["max-posts"].(int); ok {
		c.Scrape.MaxPosts = v
	}
	if v, ok := flags["companies"].([]string); ok && len(v) > 0 {
		c.Companies.Selection = v
	}
	if v, ok := flags["companies-file"].(string); ok && v != "" {
		c.Companies.File = v
	}
	if v, ok := flags["instagram-login"].(string); ok && v != "" {
		c.Instagram.Login = v
	}
	if v, ok := flags["instagram-password"].(string); ok && v != "" {
		c.Instagram.Password = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Instagram.Headless = v
	}
	if v, ok := flags["store-format"].(string); ok && v != "" {
		c.Store.Format = strings.ToLower(v)
	}
	if v, ok := flags["metrics-addr"].(string); ok {
		c.Metrics.Addr = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igtags.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
