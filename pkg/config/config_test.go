package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	errs "igtags/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Scrape.MaxPosts != 50 {
		t.Errorf("Expected default max posts to be 50, got %d", config.Scrape.MaxPosts)
	}

	if config.Scrape.MaxComments != 100 {
		t.Errorf("Expected default max comments to be 100, got %d", config.Scrape.MaxComments)
	}

	if config.Retry.ImageAttempts != 3 || config.Retry.ImageDelay != 5*time.Second {
		t.Errorf("Expected image retry policy 3 x 5s, got %d x %s", config.Retry.ImageAttempts, config.Retry.ImageDelay)
	}

	if config.Store.Format != StoreFormatCSV {
		t.Errorf("Expected default store format to be csv, got %s", config.Store.Format)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SCRAPER_OUTPUT_PATH", "/tmp/igtags-out")
	t.Setenv("INSTAGRAM_LOGIN", "env-login")
	t.Setenv("INSTAGRAM_PASSWORD", "env-password")
	t.Setenv("SCRAPE_IMAGES", "true")
	t.Setenv("SCRAPE_COMMENTS", "1")
	t.Setenv("SCRAPE_POSTS", "false")
	t.Setenv("SCRAPER_COMPANIES", "acme, globex ,")
	t.Setenv("SCRAPER_MAX_POSTS", "12")
	t.Setenv("SCRAPER_STORE_FORMAT", "SQLite")
	t.Setenv("SCRAPER_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.Output.Directory != "/tmp/igtags-out" {
		t.Errorf("Expected output directory to be /tmp/igtags-out, got %s", config.Output.Directory)
	}
	if config.Instagram.Login != "env-login" || config.Instagram.Password != "env-password" {
		t.Errorf("Expected credentials from env, got %q/%q", config.Instagram.Login, config.Instagram.Password)
	}
	if !config.Scrape.Images || !config.Scrape.Comments || config.Scrape.Posts {
		t.Errorf("Unexpected phase selection: %+v", config.Scrape)
	}
	if len(config.Companies.Selection) != 2 || config.Companies.Selection[1] != "globex" {
		t.Errorf("Expected selection [acme globex], got %v", config.Companies.Selection)
	}
	if config.Scrape.MaxPosts != 12 {
		t.Errorf("Expected max posts to be 12, got %d", config.Scrape.MaxPosts)
	}
	if config.Store.Format != StoreFormatSQLite {
		t.Errorf("Expected store format sqlite, got %s", config.Store.Format)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level to be debug, got %s", config.Logging.Level)
	}
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("SCRAPE_IMAGES", "sometimes")
	t.Setenv("SCRAPER_MAX_POSTS", "many")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	if err == nil {
		t.Fatal("Expected an error for malformed environment values")
	}
	if !strings.Contains(err.Error(), "SCRAPE_IMAGES") || !strings.Contains(err.Error(), "SCRAPER_MAX_POSTS") {
		t.Errorf("Expected both variables to be reported, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{
			name:      "defaults",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "missing output directory",
			mutate:    func(c *Config) { c.Output.Directory = "" },
			wantError: true,
		},
		{
			name: "no phase enabled",
			mutate: func(c *Config) {
				c.Scrape.Posts, c.Scrape.Images, c.Scrape.Comments = false, false, false
			},
			wantError: true,
		},
		{
			name:      "zero max posts",
			mutate:    func(c *Config) { c.Scrape.MaxPosts = 0 },
			wantError: true,
		},
		{
			name:      "unknown store format",
			mutate:    func(c *Config) { c.Store.Format = "parquet" },
			wantError: true,
		},
		{
			name:      "zero image attempts",
			mutate:    func(c *Config) { c.Retry.ImageAttempts = 0 },
			wantError: true,
		},
		{
			name: "mirror without bucket",
			mutate: func(c *Config) {
				c.Mirror.Provider = MirrorGCS
			},
			wantError: true,
		},
		{
			name: "s3 mirror with bucket",
			mutate: func(c *Config) {
				c.Mirror.Provider = MirrorS3
				c.Mirror.Bucket = "assets"
			},
			wantError: false,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "loud" },
			wantError: true,
		},
		{
			name: "images only needs no companies file",
			mutate: func(c *Config) {
				c.Scrape.Posts = false
				c.Scrape.Images = true
				c.Companies.File = ""
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateCredentials(t *testing.T) {
	config := DefaultConfig()
	if err := config.ValidateCredentials(); err != nil {
		t.Errorf("Expected no credential requirement without comments, got %v", err)
	}

	config.Scrape.Comments = true
	err := config.ValidateCredentials()
	if err == nil {
		t.Fatal("Expected an error when comments are enabled without credentials")
	}
	if !errs.IsType(err, errs.ErrorTypeConfig) {
		t.Errorf("Expected a config error, got %v", err)
	}

	config.Instagram.Login = "user"
	config.Instagram.Password = "secret"
	if err := config.ValidateCredentials(); err != nil {
		t.Errorf("Expected credentials to satisfy validation, got %v", err)
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()

	flags := map[string]interface{}{
		"output-path":        "/flag/output",
		"scrape-posts":       false,
		"scrape-images":      true,
		"companies":          []string{"acme"},
		"instagram-login":    "flag-login",
		"instagram-password": "flag-password",
		"max-posts":          7,
		"store-format":       "sqlite",
		"log-level":          "error",
		"clear-old":          true,
	}

	config.MergeCommandLineFlags(flags)

	if config.Output.Directory != "/flag/output" {
		t.Errorf("Expected output directory to be /flag/output, got %s", config.Output.Directory)
	}
	if config.Scrape.Posts || !config.Scrape.Images {
		t.Errorf("Expected posts off and images on, got %+v", config.Scrape)
	}
	if len(config.Companies.Selection) != 1 || config.Companies.Selection[0] != "acme" {
		t.Errorf("Expected selection [acme], got %v", config.Companies.Selection)
	}
	if config.Instagram.Login != "flag-login" || config.Instagram.Password != "flag-password" {
		t.Errorf("Expected flag credentials, got %q/%q", config.Instagram.Login, config.Instagram.Password)
	}
	if config.Scrape.MaxPosts != 7 {
		t.Errorf("Expected max posts to be 7, got %d", config.Scrape.MaxPosts)
	}
	if config.Store.Format != StoreFormatSQLite {
		t.Errorf("Expected store format sqlite, got %s", config.Store.Format)
	}
	if config.Logging.Level != "error" {
		t.Errorf("Expected log level to be error, got %s", config.Logging.Level)
	}
	if !config.Output.ClearOld {
		t.Error("Expected clear-old to be set")
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	config := DefaultConfig()
	config.Output.Directory = "/srv/igtags"
	config.Retry.ImageDelay = 1500 * time.Millisecond
	config.Companies.Selection = []string{"acme", "globex"}

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded := DefaultConfig()
	if err := loaded.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Output.Directory != "/srv/igtags" {
		t.Errorf("Expected output directory /srv/igtags, got %s", loaded.Output.Directory)
	}
	if loaded.Retry.ImageDelay != 1500*time.Millisecond {
		t.Errorf("Expected image delay 1.5s, got %s", loaded.Retry.ImageDelay)
	}
	if len(loaded.Companies.Selection) != 2 {
		t.Errorf("Expected two selected companies, got %v", loaded.Companies.Selection)
	}
}

func TestLoadFromFileDurations(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
retry:
  image_attempts: 4
  image_delay: 250ms
instagram:
  navigation_timeout: 1m
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Retry.ImageAttempts != 4 || config.Retry.ImageDelay != 250*time.Millisecond {
		t.Errorf("Unexpected retry config %+v", config.Retry)
	}
	if config.Instagram.NavigationTimeout != time.Minute {
		t.Errorf("Expected navigation timeout 1m, got %s", config.Instagram.NavigationTimeout)
	}
	if config.Scrape.MaxPosts != 50 {
		t.Errorf("Expected untouched defaults to survive, got max posts %d", config.Scrape.MaxPosts)
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
output:
  directory: /from/file
scrape:
  max_posts: 10
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("SCRAPER_OUTPUT_PATH", "/from/env")
	t.Setenv("SCRAPER_MAX_POSTS", "")

	config, err := Load(configPath, map[string]interface{}{"max-posts": 3})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if config.Output.Directory != "/from/env" {
		t.Errorf("Expected env to override file, got %s", config.Output.Directory)
	}
	if config.Scrape.MaxPosts != 3 {
		t.Errorf("Expected flag to override file, got %d", config.Scrape.MaxPosts)
	}
}

func TestLoadFailsValidation(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := Load("", map[string]interface{}{"store-format": "xml"})
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "unknown store format") {
		t.Errorf("Expected store format problem to be reported, got %v", err)
	}
}

func TestMasked(t *testing.T) {
	config := DefaultConfig()
	config.Instagram.Password = "hunter2"

	masked := config.Masked()
	if masked.Instagram.Password == "hunter2" {
		t.Error("Expected password to be masked")
	}
	if config.Instagram.Password != "hunter2" {
		t.Error("Masked() must not modify the original")
	}
}
