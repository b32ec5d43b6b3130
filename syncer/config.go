package syncer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"hackers/feed"
	"hackers/pkg/hn"
)

// Feed sources.
const (
	SourceScrape = "scrape"
	SourceRSS    = "rss"
)

// rssPaths maps listings to their hnrss.org feeds.
var rssPaths = map[hn.PostType]string{
	hn.News:   "frontpage",
	hn.Newest: "newest",
	hn.Ask:    "ask",
	hn.Show:   "show",
	hn.Jobs:   "jobs",
	hn.Best:   "best",
}

// FeedConfig declares one listing to keep in sync.
type FeedConfig struct {
	Name             string      `yaml:"name" json:"name"`
	Type             hn.PostType `yaml:"type" json:"type"`
	Source           string      `yaml:"source" json:"source"`
	RSSURL           string      `yaml:"rss_url" json:"rss_url"`
	Filter           feed.Filter `yaml:"filter" json:"filter"`
	Pages            int         `yaml:"pages" json:"pages"`
	RefreshInterval  int         `yaml:"refresh_interval" json:"refresh_interval"` // seconds
	MaxCommentsPosts int         `yaml:"max_comments_posts" json:"max_comments_posts"`
	FetchComments    bool        `yaml:"fetch_comments" json:"fetch_comments"`
	ExtractArticles  bool        `yaml:"extract_articles" json:"extract_articles"`
	Disabled         bool        `yaml:"disabled" json:"disabled"`
}

// Interval returns the refresh interval as a duration.
func (c *FeedConfig) Interval() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Second
}

func (c *FeedConfig) setDefaults() {
	c.Type = hn.PostType(strings.ToLower(strings.TrimSpace(string(c.Type))))
	if c.Pages == 0 {
		c.Pages = 1
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 900
	}
	if c.MaxCommentsPosts == 0 {
		c.MaxCommentsPosts = 10
	}
	if c.Source == "" {
		c.Source = SourceScrape
	}
	if c.Source == SourceRSS && c.RSSURL == "" {
		if path, ok := rssPaths[c.Type]; ok {
			c.RSSURL = "https://hnrss.org/" + path
		}
	}
}

func (c *FeedConfig) validate() error {
	if c.Name == "" {
		return errors.New("feed name is required")
	}
	if strings.ContainsAny(c.Name, "/ ") {
		return fmt.Errorf("feed name %q must not contain spaces or slashes", c.Name)
	}
	t, err := hn.ParsePostType(string(c.Type))
	if err != nil {
		return err
	}
	c.Type = t

	switch c.Source {
	case SourceScrape:
	case SourceRSS:
		if c.RSSURL == "" {
			return fmt.Errorf("no rss feed for type %s; set rss_url", c.Type)
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	if c.Pages < 1 || c.Pages > 10 {
		return fmt.Errorf("pages must be between 1 and 10, got %d", c.Pages)
	}
	if c.RefreshInterval < 60 {
		return fmt.Errorf("refresh interval must be at least 60 seconds, got %d", c.RefreshInterval)
	}
	if c.MaxCommentsPosts < 0 {
		return errors.New("max comments posts must be non-negative")
	}
	return nil
}

// LoadConfigs reads every *.yml and *.yaml file in dir, sorted by feed name.
// A missing directory yields no feeds.
func LoadConfigs(dir string, logger *slog.Logger) ([]*FeedConfig, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("find feed configs: %w", err)
		}
		files = append(files, matches...)
	}

	seen := make(map[string]string, len(files))
	configs := make([]*FeedConfig, 0, len(files))
	for _, file := range files {
		cfg, err := loadConfig(file)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		if prev, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("feed %q declared in both %s and %s", cfg.Name, prev, file)
		}
		seen[cfg.Name] = file
		configs = append(configs, cfg)
		logger.Info("Loaded feed config", "file", file, "feed", cfg.Name, "type", cfg.Type, "source", cfg.Source)
	}

	slices.SortFunc(configs, func(a, b *FeedConfig) int { return strings.Compare(a.Name, b.Name) })
	if err := checkListingOwners(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

// checkListingOwners rejects two enabled feeds writing the same listing.
// Listings are stored per post type, so the later sync would replace the earlier one.
func checkListingOwners(configs []*FeedConfig) error {
	owners := make(map[hn.PostType]string, len(configs))
	for _, cfg := range configs {
		if cfg.Disabled {
			continue
		}
		if prev, dup := owners[cfg.Type]; dup {
			return fmt.Errorf("feeds %q and %q both sync the %s listing; disable one or merge their filters", prev, cfg.Name, cfg.Type)
		}
		owners[cfg.Type] = cfg.Name
	}
	return nil
}

func loadConfig(path string) (*FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var cfg FeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// DefaultConfigs returns the feeds synced when no config directory is given.
func DefaultConfigs() []*FeedConfig {
	cfg := &FeedConfig{Name: "front", Type: hn.News, FetchComments: true}
	cfg.setDefaults()
	return []*FeedConfig{cfg}
}
