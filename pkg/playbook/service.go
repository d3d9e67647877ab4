// Package playbook resolves and serves the published disposal-plan
// documents (处置预案) that back each response scenario. Documents live in
// an external repository, typically GitHub; the service fetches them on
// demand, caches them with a TTL, and validates URLs against a host
// allowlist before any fetch.
package playbook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/airside-ops/apron/pkg/config"
)

// fetchTimeout bounds one document fetch so a slow host cannot stall a
// reasoning pass.
const fetchTimeout = 5 * time.Second

// Service resolves scenario IDs to disposal-plan content. A nil *Service
// is valid; all methods degrade to "no document".
type Service struct {
	fetcher *Fetcher
	cache   *Cache
	cfg     *config.PlaybookConfig
	logger  *slog.Logger
}

// NewService assembles the service, or returns nil when no document
// source is configured. token may be empty (public repositories only).
func NewService(cfg *config.PlaybookConfig, token string, logger *slog.Logger) *Service {
	if cfg == nil || (len(cfg.Sources) == 0 && cfg.RepoURL == "") {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ttl := time.Minute
	if cfg.CacheTTL > 0 {
		ttl = cfg.CacheTTL
	}
	return &Service{
		fetcher: NewFetcher(token),
		cache:   NewCache(ttl),
		cfg:     cfg,
		logger:  logger.With("component", "playbook"),
	}
}

// ForScenario returns the disposal-plan text for a scenario, or "" when
// the scenario has no configured document or the fetch fails. Fail-open:
// a missing plan never blocks a turn.
func (s *Service) ForScenario(ctx context.Context, scenarioID string) string {
	if s == nil {
		return ""
	}
	rawURL := s.cfg.Sources[scenarioID]
	if rawURL == "" {
		return ""
	}
	content, err := s.resolve(ctx, rawURL)
	if err != nil {
		s.logger.Warn("Failed to fetch disposal plan",
			"scenario", scenarioID,
			"url", rawURL,
			"error", err)
		return ""
	}
	return content
}

// List returns the document URLs published in the configured repository.
// Returns an empty slice when no repository is configured.
func (s *Service) List(ctx context.Context) ([]string, error) {
	if s == nil || s.cfg.RepoURL == "" {
		return []string{}, nil
	}

	if cached, ok := s.cache.Get(s.cfg.RepoURL); ok {
		return splitCachedList(cached), nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	docs, err := s.fetcher.ListDocuments(ctx, s.cfg.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("list disposal plans from %s: %w", s.cfg.RepoURL, err)
	}
	if docs == nil {
		docs = []string{}
	}

	s.cache.Set(s.cfg.RepoURL, joinForCache(docs))
	return docs, nil
}

// OverrideHTTPClientForTest replaces the fetcher's HTTP client.
// For testing only.
func (s *Service) OverrideHTTPClientForTest(httpClient *http.Client) {
	s.fetcher.httpClient = httpClient
}

func (s *Service) resolve(ctx context.Context, rawURL string) (string, error) {
	if err := ValidateDocURL(rawURL, s.cfg.AllowedDomains); err != nil {
		return "", err
	}

	normalized := ConvertToRawURL(rawURL)
	if content, ok := s.cache.Get(normalized); ok {
		return content, nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	content, err := s.fetcher.FetchDocument(ctx, rawURL)
	if err != nil {
		return "", err
	}

	s.cache.Set(normalized, content)
	return content, nil
}

// The list cache rides the content cache: entries are joined with a NUL,
// which cannot occur in a URL.
func joinForCache(items []string) string {
	return strings.Join(items, "\x00")
}

func splitCachedList(cached string) []string {
	if cached == "" {
		return []string{}
	}
	return strings.Split(cached, "\x00")
}
