package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// serviceSDLResponse is the response body from a subgraph's GraphQL endpoint
// when queried with `{ _service { sdl } }`.
type serviceSDLResponse struct {
	Data struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	} `json:"data"`
}

// RetryOption defines the retry configuration for SDL fetching.
type RetryOption struct {
	Attempts int    `yaml:"attempts" env:"ATTEMPTS" default:"3"`
	Timeout  string `yaml:"timeout"  env:"TIMEOUT"  default:"5s"`
}

// FetchSDLs loads the SDL of every service concurrently, in the order of
// services. A service listing schema files is read from disk; any other is
// asked for its SDL over HTTP.
func FetchSDLs(ctx context.Context, services []GatewayService, httpClient *http.Client, retry RetryOption) ([]string, error) {
	sdls := make([]string, len(services))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, s := range services {
		eg.Go(func() error {
			sdl, err := loadSDL(egCtx, s, httpClient, retry)
			if err != nil {
				return fmt.Errorf("service %s: %w", s.Name, err)
			}
			sdls[i] = sdl
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return sdls, nil
}

func loadSDL(ctx context.Context, s GatewayService, httpClient *http.Client, retry RetryOption) (string, error) {
	if len(s.SchemaFiles) == 0 {
		return fetchSDL(ctx, s.Host, httpClient, retry)
	}

	var schema []byte
	for _, f := range s.SchemaFiles {
		src, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		schema = append(schema, src...)
		schema = append(schema, '\n')
	}
	return string(schema), nil
}

// fetchSDL fetches the SDL by sending { _service { sdl } } to the subgraph's GraphQL
// endpoint (host). It retries up to attempts times, each with a per-attempt timeout,
// and stops early when ctx is done.
func fetchSDL(ctx context.Context, host string, httpClient *http.Client, retry RetryOption) (string, error) {
	attempts := retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	timeoutDuration := 5 * time.Second
	if retry.Timeout != "" {
		d, err := time.ParseDuration(retry.Timeout)
		if err != nil {
			return "", fmt.Errorf("invalid SDL fetch timeout %q: %w", retry.Timeout, err)
		}
		timeoutDuration = d
	}

	body := []byte(`{"query":"{_service{sdl}}"}`)

	var lastErr error
	for i := 0; i < attempts; i++ {
		sdl, err := doFetchSDL(ctx, host, httpClient, body, timeoutDuration)
		if err == nil {
			return sdl, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("failed to fetch SDL from %s after %d attempt(s): %w", host, attempts, lastErr)
}

// doFetchSDL performs a single SDL fetch attempt with the given timeout.
// It POSTs the query directly to host, the subgraph's GraphQL endpoint
// (e.g. http://localhost:4001/graphql).
func doFetchSDL(ctx context.Context, host string, httpClient *http.Client, body []byte, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, host)
	}

	var svcResp serviceSDLResponse
	if err := json.NewDecoder(resp.Body).Decode(&svcResp); err != nil {
		return "", fmt.Errorf("failed to decode SDL response: %w", err)
	}

	if svcResp.Data.Service.SDL == "" {
		return "", fmt.Errorf("empty SDL returned from %s", host)
	}

	return svcResp.Data.Service.SDL, nil
}
