package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"quotepdf/internal/domain"
)

// Supported rendering engines.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// PaperSize is a page size in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PostgresConfig locates the API token database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full service configuration. It is read once at startup.
type Config struct {
	Server struct {
		Host           string `yaml:"host"`
		Port           string `yaml:"port"`
		Prefork        bool   `yaml:"prefork"`
		Environment    string `yaml:"environment"`
		BodyLimitBytes int    `yaml:"body_limit_bytes"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	PDF struct {
		Engine             string               `yaml:"engine"`
		DefaultPaper       string               `yaml:"default_paper"`
		PaperSizes         map[string]PaperSize `yaml:"paper_sizes"`
		Margin             string               `yaml:"margin"`
		PrintBackground    bool                 `yaml:"print_background"`
		TimeoutSecs        int                  `yaml:"timeout_secs"`
		NetworkIdleMillis  int                  `yaml:"network_idle_ms"`
		ChromePath         string               `yaml:"chrome_path"`
		ChromeNoSandbox    bool                 `yaml:"chrome_no_sandbox"`
		UserDataDir        string               `yaml:"user_data_dir"`
		MaxConcurrent      int                  `yaml:"max_concurrent"`
		AcquireTimeoutSecs int                  `yaml:"acquire_timeout_secs"`
	} `yaml:"pdf"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	RateLimiter struct {
		EnableUserLimiter      bool          `yaml:"enable_user_limiter"`
		UserLimit              int           `yaml:"user_limit"`
		EnableTokenRateLimiter bool          `yaml:"enable_token_rate_limiter"`
		Interval               time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Postgres       PostgresConfig `yaml:"postgres"`
		ReloadInterval time.Duration  `yaml:"reload_interval"`
	} `yaml:"auth"`
}

// Default mirrors the behaviour of the service without any configuration:
// port 3000, 10MB JSON bodies, A4 with 0.5cm margins, one browser per request.
func Default() Config {
	var cfg Config
	cfg.Server.Port = ":3000"
	cfg.Server.Environment = "development"
	cfg.Server.BodyLimitBytes = 10 * 1024 * 1024

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 28

	cfg.PDF.Engine = EngineChromedp
	cfg.PDF.DefaultPaper = "A4"
	cfg.PDF.PaperSizes = map[string]PaperSize{
		"A3":     {Width: 11.69, Height: 16.54},
		"A4":     {Width: domain.A4WidthInches, Height: domain.A4HeightInches},
		"A5":     {Width: 5.83, Height: 8.27},
		"LETTER": {Width: 8.5, Height: 11},
		"LEGAL":  {Width: 8.5, Height: 14},
	}
	cfg.PDF.Margin = "0.5cm"
	cfg.PDF.PrintBackground = true
	cfg.PDF.TimeoutSecs = 30
	cfg.PDF.NetworkIdleMillis = 500
	cfg.PDF.ChromeNoSandbox = true
	cfg.PDF.AcquireTimeoutSecs = 30

	cfg.Cache.PDFCacheTTL = time.Minute
	cfg.Cache.PDFCacheDB = 1

	cfg.RateLimiter.Interval = time.Minute
	cfg.Auth.ReloadInterval = time.Minute
	return cfg
}

// LoadFrom overlays the YAML file at path onto Default, applies environment
// overrides and validates the result. An empty path skips the file.
// It panics on invalid configuration since it only runs at startup.
func LoadFrom(path string) Config {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			panic(fmt.Sprintf("config: read %s: %v", path, err))
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.Server.Port = NormalizePort(v)
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Server.Environment = v
	} else if v := os.Getenv("NODE_ENV"); v != "" {
		c.Server.Environment = v
	}
	// Allow common container env var to override chrome_path.
	if c.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			c.PDF.ChromePath = v
		}
	}
}

// NormalizePort turns "3000" into ":3000" and leaves ":3000" alone.
func NormalizePort(p string) string {
	if strings.HasPrefix(p, ":") {
		return p
	}
	return ":" + p
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	port := strings.TrimPrefix(c.Server.Port, ":")
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid server.port %q", c.Server.Port)
	}
	if c.Server.BodyLimitBytes <= 0 {
		return fmt.Errorf("server.body_limit_bytes must be positive")
	}
	if c.PDF.Engine != EngineChromedp && c.PDF.Engine != EngineRod {
		return fmt.Errorf("unsupported pdf.engine %q", c.PDF.Engine)
	}
	if _, ok := c.PDF.PaperSizes[strings.ToUpper(c.PDF.DefaultPaper)]; !ok {
		return fmt.Errorf("pdf.default_paper %q not in paper_sizes", c.PDF.DefaultPaper)
	}
	if _, err := ParseLength(c.PDF.Margin); err != nil {
		return err
	}
	if c.PDF.TimeoutSecs <= 0 {
		return fmt.Errorf("pdf.timeout_secs must be positive")
	}
	if c.PDF.NetworkIdleMillis <= 0 {
		return fmt.Errorf("pdf.network_idle_ms must be positive")
	}
	if c.PDF.MaxConcurrent < 0 {
		return fmt.Errorf("pdf.max_concurrent must not be negative")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	limiting := c.RateLimiter.EnableUserLimiter || c.RateLimiter.UserLimit > 0 || c.RateLimiter.EnableTokenRateLimiter
	if limiting && c.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive")
	}
	if c.AuthEnabled() && c.Auth.ReloadInterval <= 0 {
		return fmt.Errorf("auth.reload_interval must be positive")
	}
	return nil
}

// AuthEnabled reports whether API tokens are loaded from Postgres.
func (c Config) AuthEnabled() bool {
	return c.Auth.Postgres.Host != ""
}

// RenderTimeout bounds a whole load-and-export cycle.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.PDF.TimeoutSecs) * time.Second
}

// NetworkIdle is how long the network must stay quiet before export.
func (c Config) NetworkIdle() time.Duration {
	return time.Duration(c.PDF.NetworkIdleMillis) * time.Millisecond
}

// AcquireTimeout bounds the wait for a free render slot.
func (c Config) AcquireTimeout() time.Duration {
	return time.Duration(c.PDF.AcquireTimeoutSecs) * time.Second
}

// PrintOptions resolves the configured paper and margin.
func (c Config) PrintOptions() domain.PrintOptions {
	opts := domain.DefaultPrintOptions()
	if paper, ok := c.PDF.PaperSizes[strings.ToUpper(c.PDF.DefaultPaper)]; ok {
		opts.PaperWidth, opts.PaperHeight = paper.Width, paper.Height
	}
	if m, err := ParseLength(c.PDF.Margin); err == nil {
		opts = opts.UniformMargin(m)
	}
	opts.PrintBackground = c.PDF.PrintBackground
	return opts
}
