package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// options are read from flags, then the environment, then defaults.
type options struct {
	Addr     string `long:"addr" env:"ADDR" description:"Listen address; overrides --port"`
	Port     string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseURL  string `long:"base-url" env:"BASE_URL" description:"Public base URL used in email links"`
	APIKey   string `long:"api-key" env:"API_KEY" description:"API key required on /api (optional)"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level (debug, info, warn, error)"`

	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/hackers.db" description:"SQLite cache file"`
	LocalStorage string `long:"local-storage" env:"LOCAL_STORAGE" description:"Directory for subscriptions and credentials"`
	Bucket       string `long:"bucket" env:"STORAGE_BUCKET" description:"Cloud Storage bucket; overrides local storage"`
	Salt         string `long:"salt" env:"TOKEN_SALT" description:"Secret used to derive tokens and blob names"`

	FeedsDir     string        `long:"feeds-dir" env:"FEEDS_DIR" description:"Directory of YAML feed jobs; built-in jobs when empty"`
	Workers      int           `long:"workers" env:"WORKER_COUNT" default:"3" description:"Background sync workers"`
	SyncInterval time.Duration `long:"sync-interval" env:"SYNC_INTERVAL" default:"30s" description:"How often due feeds are checked"`
	PollInterval time.Duration `long:"poll-interval" env:"POLL_INTERVAL" default:"0" description:"Check watched threads on a timer; 0 relies on POST /pollz"`
	UserAgent    string        `long:"user-agent" env:"USER_AGENT" default:"hackers/1.0" description:"User agent for feed requests"`
	MaxPages     int           `long:"max-comment-pages" env:"MAX_COMMENT_PAGES" default:"10" description:"Comment pages fetched per thread"`

	EmailProvider string `long:"email-provider" env:"EMAIL_PROVIDER" choice:"auto" choice:"gmail" choice:"brevo" choice:"smtp" choice:"resend" choice:"mock" default:"auto" description:"Email delivery backend"`
	EmailFrom     string `long:"email-from" env:"EMAIL_FROM" default:"hackers@localhost" description:"Sender address"`
	EmailFromName string `long:"email-from-name" env:"EMAIL_FROM_NAME" default:"Hacker News Watch" description:"Sender display name"`
	GoogleCreds   string `long:"google-credentials" env:"GOOGLE_CREDENTIALS_JSON" description:"Service account JSON for Gmail"`
	BrevoAPIKey   string `long:"brevo-api-key" env:"BREVO_API_KEY" description:"Brevo API key"`
	ResendAPIKey  string `long:"resend-api-key" env:"RESEND_API_KEY" description:"Resend API key"`
	SMTPHost      string `long:"smtp-host" env:"SMTP_HOST" description:"SMTP server host"`
	SMTPPort      int    `long:"smtp-port" env:"SMTP_PORT" default:"587" description:"SMTP server port"`
	SMTPUser      string `long:"smtp-user" env:"SMTP_USER" description:"SMTP username"`
	SMTPPassword  string `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`

	InstapaperKey     string `long:"instapaper-key" env:"INSTAPAPER_KEY" description:"Instapaper OAuth consumer key"`
	InstapaperSecret  string `long:"instapaper-secret" env:"INSTAPAPER_SECRET" description:"Instapaper OAuth consumer secret"`
	ReadabilityKey    string `long:"readability-key" env:"READABILITY_KEY" description:"Readability OAuth consumer key"`
	ReadabilitySecret string `long:"readability-secret" env:"READABILITY_SECRET" description:"Readability OAuth consumer secret"`
	PocketKey         string `long:"pocket-key" env:"POCKET_CONSUMER_KEY" description:"Pocket consumer key"`
}

// errHelp signals that usage was printed and the process should exit cleanly.
var errHelp = errors.New("help requested")

// loadOptions loads .env when present and parses args.
func loadOptions(args []string) (*options, error) {
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			fmt.Fprintln(os.Stderr, "Warning: .env exists but couldn't be loaded:", err)
		}
	}

	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, errHelp
		}
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	return &opts, nil
}

// listenAddr returns the address the HTTP server binds.
func (o *options) listenAddr() string {
	if o.Addr != "" {
		return o.Addr
	}
	return ":" + strings.TrimPrefix(o.Port, ":")
}

// localMode reports whether blobs live on disk; it fills in the default directory.
func (o *options) localMode() bool {
	if o.Bucket != "" {
		return false
	}
	if o.LocalStorage == "" {
		o.LocalStorage = "./data"
	}
	return true
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("parse log level %q: %w", s, err)
	}
	return level, nil
}
