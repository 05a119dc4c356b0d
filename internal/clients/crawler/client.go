// Package crawler fetches a blog URL and extracts its title and readable
// text, implementing interfaces.Crawler. Structurally grounded on the
// teacher's rate-limited HTTP client (internal/clients/eodhd): same
// golang.org/x/time/rate gate, same functional-options construction, same
// wrapped-APIError-on-non-2xx shape — generalized here from a JSON REST API
// to an arbitrary-HTML fetch-and-extract.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/lumenfeed/ingest/internal/apierr"
	"github.com/lumenfeed/ingest/internal/common"
	"github.com/lumenfeed/ingest/internal/interfaces"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 2 // requests per second
	DefaultUserAgent = "ingest-crawler/1.0"
	maxBodyBytes     = 8 << 20 // 8MiB
)

// Client fetches and extracts readable content from blog URLs.
type Client struct {
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	userAgent  string
}

// ClientOption configures the client.
type ClientOption func(*Client)

func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func WithRateLimit(requestsPerSecond float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst) }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a new crawler client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Crawl fetches rawURL and returns its extracted title and text. Network
// failures, 5xx, and 429 (rate limited) responses are TRANSIENT (worth a
// retry elsewhere in the pipeline); other 4xx responses are PERMANENT, per
// spec §4.D step 2 / §7.
func (c *Client) Crawl(ctx context.Context, rawURL string) (*interfaces.CrawlResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apierr.Transient("crawler.wait", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apierr.Permanent("crawler.request", fmt.Errorf("invalid url: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	c.logger.Debug().Str("url", rawURL).Msg("crawling blog url")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Transient("crawler.fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apierr.Transient("crawler.fetch", fmt.Errorf("upstream status %d for %s", resp.StatusCode, rawURL))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierr.Transient("crawler.fetch", fmt.Errorf("rate limited: upstream status %d for %s", resp.StatusCode, rawURL))
	}
	if resp.StatusCode >= 400 {
		return nil, apierr.Permanent("crawler.fetch", fmt.Errorf("upstream status %d for %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apierr.Transient("crawler.read", err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, apierr.Permanent("crawler.parse", fmt.Errorf("failed to parse html: %w", err))
	}

	title, text := extractTitleAndText(doc)
	if strings.TrimSpace(text) == "" {
		return nil, apierr.Permanent("crawler.extract", fmt.Errorf("no extractable text content at %s", rawURL))
	}

	return &interfaces.CrawlResult{Title: strings.TrimSpace(title), Text: strings.TrimSpace(text)}, nil
}

// skipTags holds elements whose text content is never part of the readable
// article body.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "nav": true,
	"header": true, "footer": true, "aside": true, "form": true,
}

func extractTitleAndText(n *html.Node) (title, text string) {
	var titleBuf, textBuf strings.Builder
	var walk func(*html.Node, bool)
	walk = func(node *html.Node, skip bool) {
		if node.Type == html.ElementNode && skipTags[node.Data] {
			skip = true
		}
		if node.Type == html.ElementNode && node.Data == "title" && titleBuf.Len() == 0 {
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					titleBuf.WriteString(c.Data)
				}
			}
		}
		if node.Type == html.TextNode && !skip {
			trimmed := strings.TrimSpace(node.Data)
			if trimmed != "" {
				textBuf.WriteString(trimmed)
				textBuf.WriteString(" ")
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(n, false)
	return titleBuf.String(), textBuf.String()
}

var _ interfaces.Crawler = (*Client)(nil)
