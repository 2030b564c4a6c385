package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snappic/server/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ListingPath is where the server publishes the photo listing
const ListingPath = "/api/images"

// HTTPLister reads the listing from a snappic server
type HTTPLister struct {
	url    string
	client *http.Client
}

// NewHTTPLister creates a lister for the server at baseURL. A nil client gets
// one with a timeout shorter than the default poll interval.
func NewHTTPLister(baseURL string, client *http.Client) *HTTPLister {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPLister{
		url:    strings.TrimRight(baseURL, "/") + ListingPath,
		client: client,
	}
}

// List implements Lister
func (l *HTTPLister) List(ctx context.Context) ([]models.GalleryImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch listing: unexpected status %s", resp.Status)
	}
	if resp.StatusCode == http.StatusNoContent {
		return []models.GalleryImage{}, nil
	}

	var photos []models.GalleryImage
	if err := json.NewDecoder(resp.Body).Decode(&photos); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return photos, nil
}
