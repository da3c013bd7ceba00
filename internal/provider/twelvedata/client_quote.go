package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"

	"quoteboard/internal/provider"
)

// Quote retrieves the latest quote for symbol from the /quote endpoint.
//
// Twelve Data answers unknown symbols and exhausted credits with HTTP 200 and a body like
//
//	{"code": 404, "message": "symbol not found", "status": "error"}
//
// which is returned as a payload; telling it apart from a quote is the normalizer's job.
func (c *Client) Quote(ctx context.Context, symbol, apiKey string) (provider.Payload, error) {
	query := maps.Clone(c.query)
	query.Set("symbol", symbol)
	query.Set("apikey", apiKey)

	url := fmt.Sprintf("%s/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("unauthorized")

	case http.StatusNotFound:
		return nil, fmt.Errorf("symbol %s: %w", symbol, provider.ErrNoData)

	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited")

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, string(b))
	}

	var body provider.Payload
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding quote response: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("decoding quote response: empty body")
	}
	return body, nil
}
