// Package update checks GitHub releases for a newer litscreen build.
package update

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	// GitHubRepo is the repository to check for updates.
	GitHubRepo = "fentz26/litscreen"
	// GitHubAPIURL is the GitHub releases API endpoint.
	GitHubAPIURL = "https://api.github.com/repos/%s/releases"
	// CheckInterval is the minimum time between network checks.
	CheckInterval = 24 * time.Hour
)

// Version is set at build time via -ldflags.
var Version = "dev"

// GitHubRelease is the part of a release response we read.
type GitHubRelease struct {
	TagName     string `json:"tag_name"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
}

// Cache stores the last check so repeated runs stay offline.
type Cache struct {
	LastCheck     int64  `json:"last_check"`
	LatestVersion string `json:"latest_version"`
	ReleaseURL    string `json:"release_url"`
}

// Result is the outcome of one check.
type Result struct {
	Current    string
	Latest     string
	ReleaseURL string
	HasUpdate  bool
	Cached     bool
}

// Checker handles update checking and caching.
type Checker struct {
	configDir  string
	apiURL     string
	httpClient *http.Client
	cache      *Cache
	now        func() time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithAPIURL points the checker at another releases endpoint.
func WithAPIURL(url string) Option {
	return func(c *Checker) { c.apiURL = url }
}

// WithConfigDir overrides ~/.config/litscreen as the cache location.
func WithConfigDir(dir string) Option {
	return func(c *Checker) { c.configDir = dir }
}

// NewChecker creates a new update checker.
func NewChecker(opts ...Option) (*Checker, error) {
	c := &Checker{
		apiURL:     fmt.Sprintf(GitHubAPIURL, GitHubRepo),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		c.configDir = filepath.Join(homeDir, ".config", "litscreen")
	}
	if err := os.MkdirAll(c.configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	_ = c.loadCache()
	return c, nil
}

// ShouldCheck returns true if enough time has passed since the last check.
func (c *Checker) ShouldCheck() bool {
	if c.cache == nil {
		return true
	}
	return c.now().Sub(time.Unix(c.cache.LastCheck, 0)) > CheckInterval
}

// Check compares Version with the newest release. The network is only
// consulted when force is set or the cache is stale.
func (c *Checker) Check(force bool) (*Result, error) {
	cached := true
	if force || c.ShouldCheck() {
		if err := c.fetch(); err != nil {
			return nil, err
		}
		cached = false
	}
	return &Result{
		Current:    Version,
		Latest:     c.cache.LatestVersion,
		ReleaseURL: c.cache.ReleaseURL,
		HasUpdate:  Newer(c.cache.LatestVersion, Version),
		Cached:     cached,
	}, nil
}

func (c *Checker) fetch() error {
	resp, err := c.httpClient.Get(c.apiURL)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	// /releases rather than /releases/latest so prereleases count.
	var releases []GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return fmt.Errorf("failed to parse release info: %w", err)
	}
	if len(releases) == 0 {
		return fmt.Errorf("no releases found")
	}

	c.cache = &Cache{
		LastCheck:     c.now().Unix(),
		LatestVersion: strings.TrimPrefix(releases[0].TagName, "v"),
		ReleaseURL:    releases[0].HTMLURL,
	}
	_ = c.saveCache()
	return nil
}

// Newer reports whether latest is a higher semantic version than current.
// Development builds never report an update.
func Newer(latest, current string) bool {
	if current == "dev" || latest == "" {
		return false
	}
	l, cur := canonical(latest), canonical(current)
	if !semver.IsValid(l) || !semver.IsValid(cur) {
		return l != cur
	}
	return semver.Compare(l, cur) > 0
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

func (c *Checker) cachePath() string {
	return filepath.Join(c.configDir, "update_cache.json")
}

func (c *Checker) loadCache() error {
	data, err := os.ReadFile(c.cachePath())
	if err != nil {
		return err
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return err
	}
	c.cache = &cache
	return nil
}

func (c *Checker) saveCache() error {
	data, err := json.MarshalIndent(c.cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.cachePath(), data, 0600)
}
