package source

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/PuerkitoBio/goquery"
	fhttp "github.com/bogdanfinn/fhttp"
	fhttpcookiejar "github.com/bogdanfinn/fhttp/cookiejar"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
	"github.com/rs/zerolog/log"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// ClientConfig carries the outbound HTTP policy: per-request timeout and the
// retry/backoff applied to each request (never to a whole run).
type ClientConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryBackoff time.Duration
}

// Client wraps a browser-profiled HTTP client shared by all scrapers. Job
// boards reject default Go clients, so requests carry a Chrome TLS profile
// and a rotating user agent.
type Client struct {
	http tls_client.HttpClient
	cfg  ClientConfig
}

// NewClient builds the shared scraper client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	jar, _ := fhttpcookiejar.New(nil)

	client, err := tls_client.NewHttpClient(
		tls_client.NewNoopLogger(),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithTimeoutSeconds(int(cfg.Timeout.Seconds())),
		tls_client.WithCookieJar(jar),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		http: client,
		cfg:  cfg,
	}, nil
}

// Do issues the request, retrying transient failures (network errors, 429,
// 5xx) up to RetryMax times with linear backoff.
func (c *Client) Do(req *fhttp.Request) (*fhttp.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.randomUA())
	}

	var resp *fhttp.Response
	var err error
	for attempt := 0; ; attempt++ {
		resp, err = c.http.Do(req)
		if err == nil && resp.StatusCode != 429 && resp.StatusCode < 500 {
			return resp, nil
		}

		if attempt >= c.cfg.RetryMax {
			break
		}
		if resp != nil {
			resp.Body.Close()
		}

		wait := c.cfg.RetryBackoff * time.Duration(attempt+1)
		log.Debug().
			Str("url", req.URL.String()).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Retrying request")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// randomUA picks an agent with the package-level rand, which is safe for the
// concurrent workers sharing this client.
func (c *Client) randomUA() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// fetchDocument GETs the target and parses the body as HTML.
func fetchDocument(ctx context.Context, client *Client, target string, headers map[string]string) (*goquery.Document, error) {
	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	applyHeaders(req, headers)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func applyHeaders(req *fhttp.Request, headers map[string]string) {
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["accept"]; !ok {
		headers["accept"] = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	}
	if _, ok := headers["accept-language"]; !ok {
		headers["accept-language"] = "en-US,en;q=0.9"
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}
