package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"quoteboard/internal/httpx"
	"quoteboard/internal/provider"
)

// Config controls the Alpha Vantage provider.
type Config struct {
	Name     string
	URL      string // base URL, e.g. https://www.alphavantage.co
	Function string // defaults to GLOBAL_QUOTE
}

// Provider queries the GLOBAL_QUOTE function, one symbol per call.
// Responses are nested under "Global Quote" with numbered field labels.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "AlphaVantage"
	}
	if cfg.URL == "" {
		cfg.URL = "https://www.alphavantage.co"
	}
	if cfg.Function == "" {
		cfg.Function = "GLOBAL_QUOTE"
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Quote(ctx context.Context, symbol, apiKey string) (provider.Payload, error) {
	q := url.Values{}
	q.Set("function", p.cfg.Function)
	q.Set("symbol", symbol)
	q.Set("apikey", apiKey)
	u := strings.TrimRight(p.cfg.URL, "/") + "/query?" + q.Encode()

	resp, err := p.client.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", p.cfg.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, fmt.Errorf("GET %s -> %d: %s", p.cfg.URL, resp.StatusCode, string(b))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var body provider.Payload
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if body == nil {
		return nil, fmt.Errorf("decode: empty body")
	}
	return body, nil
}
