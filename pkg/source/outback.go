package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/eunmann/cdxsum/pkg/cdx"
)

// Outback reads every collection of an OutbackCDX server. Each collection
// is dumped with a range query in the extended legacy CDX layout.
type Outback struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// OutbackConfig configures an Outback source.
type OutbackConfig struct {
	URL string
	// RequestsPerSecond paces requests; 0 disables pacing.
	RequestsPerSecond float64
	// Client defaults to an http.Client without a total timeout, since
	// collection dumps are long-lived streams.
	Client *http.Client
}

// NewOutback creates an Outback source.
func NewOutback(cfg OutbackConfig) *Outback {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: time.Minute,
		}}
	}
	return &Outback{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Collections lists the server's collections.
func (o *Outback) Collections(ctx context.Context) ([]string, error) {
	body, err := o.get(ctx, o.baseURL+"/api/collections")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var names []string
	if err := json.NewDecoder(body).Decode(&names); err != nil {
		return nil, fmt.Errorf("decode collections: %w", err)
	}
	return names, nil
}

// CollectionURL is the range query that dumps every record of name.
func (o *Outback) CollectionURL(name string) string {
	return o.baseURL + "/" + url.PathEscape(name) + "?url=&matchType=range"
}

// Inputs returns one stream per collection, in server order.
func (o *Outback) Inputs(ctx context.Context) ([]Input, error) {
	names, err := o.Collections(ctx)
	if err != nil {
		return nil, err
	}
	inputs := make([]Input, len(names))
	for i, name := range names {
		u := o.CollectionURL(name)
		inputs[i] = Input{
			Name:   u,
			Format: cdx.FormatNbamskrMSVg,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				return o.get(ctx, u)
			},
		}
	}
	return inputs, nil
}

func (o *Outback) get(ctx context.Context, u string) (io.ReadCloser, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", u, err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: unexpected status %s", u, resp.Status)
	}
	return resp.Body, nil
}
