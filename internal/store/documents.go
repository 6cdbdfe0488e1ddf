package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/httputil"
	"github.com/halallens/screener/pkg/logger"
)

// DocumentStore fetches raw filing bodies from the object store over
// HTTP. The crawler writes documents there and hands the pipeline only
// the key; this is the single place documents are read back.
type DocumentStore struct {
	client  *httputil.Client
	baseURL string
	logger  *logger.Logger
}

// NewDocumentStore creates a fetcher for the configured object store
func NewDocumentStore(cfg config.ObjectStoreConfig, log *logger.Logger) *DocumentStore {
	return &DocumentStore{
		client:  httputil.NewWithTimeout(log, cfg.Timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  log.WithField("module", "store"),
	}
}

// Fetch retrieves one document body by object key
func (s *DocumentStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	url := s.baseURL + "/" + strings.TrimLeft(key, "/")

	resp, err := s.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch document %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch document %s: status %d", key, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", key, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":   key,
		"bytes": len(body),
	}).Debug("Document fetched")
	return body, nil
}
