// Package config loads and hot-reloads the host's YAML configuration: where
// to listen, the rewrite-rule limits to enforce, and the path to the rule
// text evaluated against every request.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/chilledornaments/htaccess-tester-core/pkg/rewrite"
)

const (
	defaultListenAddress              = "0.0.0.0:8484"
	defaultMetricsServerListenAddress = "0.0.0.0:8485"
	defaultCacheTTL                   = 86400
	defaultCacheCleanupInterval       = 3600
	defaultMaxIterations              = 100
	defaultMaxURLLength               = 8192
	defaultMaxRegexSubjectLength      = 2048
)

// CacheConfig controls the host's compiled-matcher cache lifetime.
type CacheConfig struct {
	TTL             int64 `yaml:"ttl"`
	CleanupInterval int   `yaml:"cleanup_interval"`
}

// LimitsConfig mirrors rewrite.Limits for YAML unmarshalling; AsLimits
// converts it to the core's contract type.
type LimitsConfig struct {
	MaxIterations         int `yaml:"max_iterations"`
	MaxURLLength          int `yaml:"max_url_length"`
	MaxRegexSubjectLength int `yaml:"max_regex_subject_length"`
	MaxRuleCount          int `yaml:"max_rule_count"`
}

func (l LimitsConfig) AsLimits() rewrite.Limits {
	return rewrite.Limits{
		MaxIterations:         l.MaxIterations,
		MaxURLLength:          l.MaxURLLength,
		MaxRegexSubjectLength: l.MaxRegexSubjectLength,
		MaxRuleCount:          l.MaxRuleCount,
	}
}

// AppConfig is the unmarshalled host configuration plus the parsed rule
// document that configuration points at.
type AppConfig struct {
	ListenAddress              string       `yaml:"listen_address"`
	MetricsServerListenAddress string       `yaml:"metrics_server_listen_address"`
	RulesPath                  string       `yaml:"rules_path"`
	Limits                     LimitsConfig `yaml:"limits"`
	Cache                      CacheConfig  `yaml:"cache"`

	RulesText string
	Document  rewrite.Document
}

// InvalidConfigError reports a config file that fails to parse as YAML or
// whose rules_path cannot be read.
type InvalidConfigError struct {
	Path string
	Err  error
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration at %s: %s", e.Path, e.Err)
}

// Load reads path, applying defaults before unmarshalling so a config file
// only has to mention the settings it wants to override, then parses the
// rules_path it points at.
func Load(l *slog.Logger, path string) (*AppConfig, error) {
	c := &AppConfig{
		ListenAddress:              defaultListenAddress,
		MetricsServerListenAddress: defaultMetricsServerListenAddress,
		Limits: LimitsConfig{
			MaxIterations:         defaultMaxIterations,
			MaxURLLength:          defaultMaxURLLength,
			MaxRegexSubjectLength: defaultMaxRegexSubjectLength,
		},
		Cache: CacheConfig{
			TTL:             defaultCacheTTL,
			CleanupInterval: defaultCacheCleanupInterval,
		},
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, InvalidConfigError{Path: path, Err: err}
	}
	defer f.Close()

	buffer, err := io.ReadAll(f)
	if err != nil {
		return nil, InvalidConfigError{Path: path, Err: err}
	}

	if err := yaml.Unmarshal(buffer, c); err != nil {
		return nil, InvalidConfigError{Path: path, Err: err}
	}

	if c.RulesPath == "" {
		return nil, InvalidConfigError{Path: path, Err: fmt.Errorf("rules_path is required")}
	}

	rulesBytes, err := os.ReadFile(c.RulesPath)
	if err != nil {
		return nil, InvalidConfigError{Path: c.RulesPath, Err: err}
	}

	c.RulesText = string(rulesBytes)
	c.Document = rewrite.Parse(c.RulesText)

	logger := l.WithGroup("config")
	for _, node := range c.Document.Nodes {
		if node.Kind == rewrite.NodeParseError {
			logger.Warn("rule line failed to parse", "line", node.LineNo, "message", node.Message)
		}
	}
	logger.Info("loaded rules", "path", c.RulesPath, "lines", len(c.Document.Nodes))

	return c, nil
}

// Store holds the current AppConfig behind a RWMutex so the reloader
// goroutine can swap it out while request handlers read a consistent
// snapshot.
type Store struct {
	lock sync.RWMutex
	cfg  *AppConfig
}

func NewStore(cfg *AppConfig) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) Get() *AppConfig {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.cfg
}

func (s *Store) set(cfg *AppConfig) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cfg = cfg
}

// Reload re-runs Load against path and, on success, is reflected by Get
// immediately after returning.
func (s *Store) Reload(l *slog.Logger, path string) error {
	cfg, err := Load(l, path)
	if err != nil {
		return err
	}
	s.set(cfg)
	return nil
}

// Watch starts an fsnotify watcher on configPath and reloads the store
// whenever the file changes, until ctx is done. A failed reload logs and
// keeps serving the previously loaded configuration.
func Watch(ctx context.Context, l *slog.Logger, configPath string, s *Store) {
	logger := l.WithGroup("reloader").With("config_path", configPath)
	logger.Info("starting config reloader")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create file watcher", "err", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(configPath); err != nil {
		logger.Error("failed to watch file", "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down config reload worker")
			return
		case _, ok := <-watcher.Events:
			if !ok {
				return
			}
			if err := s.Reload(l, configPath); err != nil {
				logger.Error("error reloading config, reusing existing config", "err", err)
			} else {
				logger.Info("reloaded config")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("error watching file but continuing to try", "err", err)
		}
	}
}
