package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSchemaSource fetches the current schema set from a remote endpoint
// serving a JSON object of schemaName -> raw schema document, the same
// plain-HTTP-plus-JSON shape kojihub.HTTPClient uses for build lookups.
type HTTPSchemaSource struct {
	URL  string
	HTTP *http.Client
}

// NewHTTPSchemaSource builds an HTTPSchemaSource with a bounded timeout.
func NewHTTPSchemaSource(url string) *HTTPSchemaSource {
	return &HTTPSchemaSource{URL: url, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch retrieves and decodes the schema set.
func (s *HTTPSchemaSource) Fetch(ctx context.Context) (map[string][]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("validator: building schema request: %w", err)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("validator: fetching schemas from %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validator: schema source %s returned status %d", s.URL, resp.StatusCode)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("validator: decoding schema set: %w", err)
	}

	out := make(map[string][]byte, len(raw))
	for name, doc := range raw {
		out[name] = doc
	}
	return out, nil
}
