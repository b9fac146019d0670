// Package quality keeps table quality scores warm in the local cache by
// syncing from the upstream quality platform on a schedule.
package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// Source is the upstream quality platform boundary.
type Source interface {
	// GetAll returns the quality record for every known table.
	GetAll(ctx context.Context) ([]models.QualityRecord, error)

	// GetUpdatedSince returns records whose score changed after t.
	GetUpdatedSince(ctx context.Context, t time.Time) ([]models.QualityRecord, error)
}

// httpSource fetches quality records from a REST endpoint.
type httpSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a Source over an HTTP endpoint exposing
// GET /quality/tables and GET /quality/tables?updated_since=RFC3339.
func NewHTTPSource(baseURL string) Source {
	return &httpSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

var _ Source = (*httpSource)(nil)

func (s *httpSource) GetAll(ctx context.Context) ([]models.QualityRecord, error) {
	return s.fetch(ctx, s.baseURL+"/quality/tables")
}

func (s *httpSource) GetUpdatedSince(ctx context.Context, t time.Time) ([]models.QualityRecord, error) {
	u := fmt.Sprintf("%s/quality/tables?updated_since=%s",
		s.baseURL, url.QueryEscape(t.UTC().Format(time.RFC3339)))
	return s.fetch(ctx, u)
}

func (s *httpSource) fetch(ctx context.Context, u string) ([]models.QualityRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("quality: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quality: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quality: fetch %s: status %d", u, resp.StatusCode)
	}

	var records []models.QualityRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("quality: decode response: %w", err)
	}
	return records, nil
}

// MockSource is a configurable mock for testing sync behavior.
type MockSource struct {
	GetAllFunc          func(ctx context.Context) ([]models.QualityRecord, error)
	GetUpdatedSinceFunc func(ctx context.Context, t time.Time) ([]models.QualityRecord, error)

	GetAllCalls          int
	GetUpdatedSinceCalls int
	LastSince            time.Time
}

var _ Source = (*MockSource)(nil)

func (m *MockSource) GetAll(ctx context.Context) ([]models.QualityRecord, error) {
	m.GetAllCalls++
	if m.GetAllFunc != nil {
		return m.GetAllFunc(ctx)
	}
	return nil, nil
}

func (m *MockSource) GetUpdatedSince(ctx context.Context, t time.Time) ([]models.QualityRecord, error) {
	m.GetUpdatedSinceCalls++
	m.LastSince = t
	if m.GetUpdatedSinceFunc != nil {
		return m.GetUpdatedSinceFunc(ctx, t)
	}
	return nil, nil
}
