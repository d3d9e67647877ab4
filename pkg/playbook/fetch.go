package playbook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxDocBytes caps a fetched document. Disposal plans are a few pages of
// markdown; anything larger is a misconfigured URL.
const maxDocBytes = 1 << 20

// Fetcher downloads disposal-plan documents and lists the markdown files
// of a document repository over the GitHub API.
type Fetcher struct {
	httpClient *http.Client
	token      string
	logger     *slog.Logger
}

// NewFetcher creates a fetcher. token may be empty (public repositories
// only, lower rate limits).
func NewFetcher(token string) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		token:      token,
		logger:     slog.Default(),
	}
}

// FetchDocument fetches raw document content. GitHub blob URLs are
// rewritten to raw.githubusercontent.com first.
func (f *Fetcher) FetchDocument(ctx context.Context, docURL string) (string, error) {
	downloadURL := ConvertToRawURL(docURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	f.setAuthHeader(req)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch document from %s: %w", downloadURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("document host returned HTTP %d for %s", resp.StatusCode, downloadURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocBytes))
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	return string(body), nil
}

// repoContentItem is one entry of a GitHub Contents API response.
type repoContentItem struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Type    string `json:"type"` // "file" or "dir"
	HTMLURL string `json:"html_url"`
}

// ListDocuments returns all markdown file URLs under a GitHub directory,
// walking subdirectories via the Contents API.
func (f *Fetcher) ListDocuments(ctx context.Context, repoURL string) ([]string, error) {
	parts, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, fmt.Errorf("parse repo URL: %w", err)
	}
	return f.listDocumentsRecursive(ctx, parts.Owner, parts.Repo, parts.Ref, parts.Path)
}

func (f *Fetcher) listDocumentsRecursive(ctx context.Context, owner, repo, ref, path string) ([]string, error) {
	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s?ref=%s", owner, repo, path, ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	f.setAuthHeader(req)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list contents at %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned HTTP %d for path %q", resp.StatusCode, path)
	}

	var items []repoContentItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode contents response: %w", err)
	}

	var docs []string
	for _, item := range items {
		switch item.Type {
		case "file":
			if strings.HasSuffix(strings.ToLower(item.Name), ".md") {
				// The HTML (blob) URL is the canonical reference.
				docs = append(docs, item.HTMLURL)
			}
		case "dir":
			sub, err := f.listDocumentsRecursive(ctx, owner, repo, ref, item.Path)
			if err != nil {
				f.logger.Warn("Failed to list subdirectory", "path", item.Path, "error", err)
				continue
			}
			docs = append(docs, sub...)
		}
	}

	return docs, nil
}

func (f *Fetcher) setAuthHeader(req *http.Request) {
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
}
