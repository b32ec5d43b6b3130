// Package main runs the Hacker News reader service: a cached feed and comment API with
// search, bookmarks and voting, read-later integrations, background feed sync, and email
// alerts for watched threads.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"hackers/account"
	"hackers/article"
	"hackers/email"
	"hackers/feed"
	"hackers/poll"
	"hackers/readlater"
	"hackers/scraper"
	"hackers/search"
	"hackers/server"
	blobs "hackers/storage"
	"hackers/store"
	"hackers/syncer"
)

const devSalt = "local-development-salt"

func main() {
	opts, err := loadOptions(os.Args[1:])
	if errors.Is(err, errHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, logger *slog.Logger) error {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	blobStore, closeBlobs, err := openBlobStore(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	cache, err := store.Open(ctx, opts.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("Failed to close cache", "error", err)
		}
	}()

	hnScraper := scraper.New(httpClient, logger).WithMaxCommentPages(opts.MaxPages)
	articles := article.NewService(cache, article.NewExtractor(httpClient, logger), logger)
	readLater := readlater.NewManager(blobStore, blobs.IsNotFound, logger, readLaterServices(opts, httpClient, logger)...)
	session := account.NewManager(hnScraper, blobStore, blobs.IsNotFound, logger)

	configs := syncer.DefaultConfigs()
	if opts.FeedsDir != "" {
		configs, err = syncer.LoadConfigs(opts.FeedsDir, logger)
		if err != nil {
			return fmt.Errorf("load feed configs: %w", err)
		}
	}
	scheduler := syncer.NewScheduler(configs, &syncer.Deps{
		Scraper:  hnScraper,
		RSS:      feed.New(httpClient, opts.UserAgent, logger),
		Cache:    cache,
		Articles: articles,
		Logger:   logger,
	}, opts.Workers, opts.SyncInterval)
	scheduler.Start()
	defer scheduler.Stop()

	baseURL := opts.BaseURL
	if baseURL == "" {
		if opts.Bucket != "" {
			return errors.New("BASE_URL is required with STORAGE_BUCKET (e.g., https://your-service.run.app)")
		}
		baseURL = "http://localhost" + opts.listenAddr()
	}
	provider, err := newEmailProvider(ctx, opts, logger)
	if err != nil {
		return err
	}
	sender := email.New(provider, logger, baseURL)
	monitor := poll.New(hnScraper, blobStore, sender, logger)

	if opts.PollInterval > 0 {
		go pollLoop(ctx, monitor, opts.PollInterval, logger)
	}

	srv := server.New(&server.Config{
		Cache:         cache,
		Scraper:       hnScraper,
		Articles:      articles,
		ReadLater:     readLater,
		Session:       session,
		Search:        search.New(httpClient, logger),
		Subscriptions: blobStore,
		Emailer:       sender,
		Poller:        monitor,
		Feeds:         scheduler,
		Logger:        logger,
		IsNotFound:    blobs.IsNotFound,
		APIKey:        opts.APIKey,
	})
	logger.Info("Starting service",
		"addr", opts.listenAddr(),
		"base_url", baseURL,
		"feeds", len(configs),
		"api_key_required", opts.APIKey != "",
		"read_later_services", readLater.Services())
	return srv.Run(ctx, opts.listenAddr())
}

// openBlobStore selects local directory mode unless a bucket is configured.
func openBlobStore(ctx context.Context, opts *options, logger *slog.Logger) (*blobs.Store, func(), error) {
	salt := opts.Salt
	if opts.localMode() {
		logger.Info("Running in local storage mode", "storage_path", opts.LocalStorage)
		if err := os.MkdirAll(opts.LocalStorage, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create local storage directory: %w", err)
		}
		if salt == "" {
			logger.Warn("TOKEN_SALT not set, using development salt")
			salt = devSalt
		}
		return blobs.New(nil, "", opts.LocalStorage, []byte(salt), logger), func() {}, nil
	}

	if salt == "" {
		return nil, nil, errors.New("TOKEN_SALT is required with STORAGE_BUCKET")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("create storage client: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close storage client", "error", err)
		}
	}
	logger.Info("Using Cloud Storage", "bucket", opts.Bucket)
	return blobs.New(client, opts.Bucket, "", []byte(salt), logger), closeFn, nil
}

// readLaterServices registers only the services whose keys are configured.
func readLaterServices(opts *options, client *http.Client, logger *slog.Logger) []readlater.Service {
	var services []readlater.Service
	if opts.InstapaperKey != "" && opts.InstapaperSecret != "" {
		services = append(services, readlater.NewInstapaper(client, opts.InstapaperKey, opts.InstapaperSecret, logger))
	}
	if opts.ReadabilityKey != "" && opts.ReadabilitySecret != "" {
		services = append(services, readlater.NewReadability(client, opts.ReadabilityKey, opts.ReadabilitySecret, logger))
	}
	if opts.PocketKey != "" {
		services = append(services, readlater.NewPocket(client, opts.PocketKey, logger))
	}
	return services
}

// newEmailProvider builds the configured provider. In auto mode the first backend
// with credentials wins, then Gmail through Application Default Credentials on
// Cloud Run, then the mock.
func newEmailProvider(ctx context.Context, opts *options, logger *slog.Logger) (email.Provider, error) {
	choice := opts.EmailProvider
	if choice == "" || choice == "auto" {
		choice = autoProvider(ctx, opts)
	}
	logger.Info("Email provider selected", "provider", choice, "from", opts.EmailFrom)

	switch choice {
	case "gmail":
		svc, err := initGmailService(ctx, opts.GoogleCreds)
		if err != nil {
			return nil, fmt.Errorf("initialize gmail: %w", err)
		}
		return email.NewGmailProvider(svc, opts.EmailFrom, logger), nil
	case "brevo":
		if opts.BrevoAPIKey == "" {
			return nil, errors.New("BREVO_API_KEY is required for the brevo provider")
		}
		return email.NewBrevoProvider(opts.BrevoAPIKey, opts.EmailFrom, opts.EmailFromName, logger), nil
	case "resend":
		p, err := email.NewResendProvider(opts.ResendAPIKey, opts.EmailFrom, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize resend: %w", err)
		}
		return p, nil
	case "smtp":
		if opts.SMTPHost == "" {
			return nil, errors.New("SMTP_HOST is required for the smtp provider")
		}
		return email.NewSMTPProvider(opts.SMTPHost, opts.SMTPPort, opts.SMTPUser, opts.SMTPPassword, opts.EmailFrom, logger), nil
	case "mock":
		logger.Info("Mock email mode enabled, messages are logged only")
		return email.NewMockProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", choice)
	}
}

func autoProvider(ctx context.Context, opts *options) string {
	switch {
	case opts.BrevoAPIKey != "":
		return "brevo"
	case opts.ResendAPIKey != "":
		return "resend"
	case opts.SMTPHost != "":
		return "smtp"
	case opts.GoogleCreds != "":
		return "gmail"
	case opts.Bucket != "" && isCloudRun(ctx):
		return "gmail"
	default:
		return "mock"
	}
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context, credsJSON string) (*gmail.Service, error) {
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}
	// The service account needs the gmail.send scope
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}
	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}

// Checker runs one pass over watched threads.
type Checker interface {
	CheckAll(ctx context.Context) error
}

// pollLoop checks watched threads every interval until ctx is done.
func pollLoop(ctx context.Context, c Checker, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("Poll loop started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := c.CheckAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Scheduled poll failed", "error", err)
				continue
			}
			logger.Info("Scheduled poll completed", "duration_ms", time.Since(start).Milliseconds())
		}
	}
}
