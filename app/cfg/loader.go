package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBDriver  string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"sqlite" choice:"postgres" description:"Storage backend"`
	DBDSN     string `long:"db-dsn" env:"DB_DSN" default:"./data/rss-reader.db" description:"SQLite file path or PostgreSQL DSN"`
	Namespace string `long:"namespace" env:"STORE_NAMESPACE" default:"rss-reader" description:"Key-value namespace for persisted records"`

	// Application configuration
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://reader.example.com)"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers"`
	RefreshInterval   int    `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"900" description:"Seconds between scheduled refreshes (0 disables)"`
	FetchTimeout      int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Seconds allowed per document fetch"`
	SubscriptionsFile string `long:"subscriptions" env:"SUBSCRIPTIONS_FILE" description:"YAML file of feeds to subscribe to at start"`
	ExtractContent    bool   `long:"extract-content" env:"EXTRACT_CONTENT" description:"Extract full article text for items without content"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Reader/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	LogFile   string `long:"log-file" env:"LOG_FILE" description:"Also write logs to this rotating file"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment into the global configuration.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBDriver:          raw.DBDriver,
		DBDSN:             raw.DBDSN,
		Namespace:         raw.Namespace,
		Port:              raw.Port,
		BaseUrl:           raw.BaseUrl,
		APIAccessKey:      raw.APIAccessKey,
		WorkerCount:       raw.WorkerCount,
		RefreshInterval:   raw.RefreshInterval,
		FetchTimeout:      raw.FetchTimeout,
		SubscriptionsFile: raw.SubscriptionsFile,
		ExtractContent:    raw.ExtractContent,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		LogFile:           raw.LogFile,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func validate(cfg *Cfg) error {
	nonNegativeFields := map[string]int{
		"worker count":     cfg.WorkerCount,
		"refresh interval": cfg.RefreshInterval,
		"fetch timeout":    cfg.FetchTimeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if cfg.DBDSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	return nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
