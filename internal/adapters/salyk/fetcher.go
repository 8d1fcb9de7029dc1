package salyk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

// Config controls the ticket page client.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	Accept         string
	AcceptLanguage string
	MaxBodyBytes   int64
}

// DefaultConfig presents the client as a desktop browser with a Russian
// locale preference; the authority serves a reduced page otherwise.
func DefaultConfig() Config {
	return Config{
		Timeout:        15 * time.Second,
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
		MaxBodyBytes:   4 << 20,
	}
}

// Client fetches ticket pages and hands them to a Parser.
type Client struct {
	http   *http.Client
	cfg    Config
	parser *Parser
	logger *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client. The per-request timeout comes from cfg.
func NewClient(cfg Config, parser *Parser, logger *slog.Logger, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		http:   &http.Client{},
		cfg:    cfg,
		parser: parser,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAndParse downloads the ticket page at u and parses it. Network
// failures, non-2xx responses, undecodable bodies and pages without any
// receipt fields all surface as *FetchError.
func (c *Client) FetchAndParse(ctx context.Context, u *url.URL) (*receipt.ParsedReceipt, error) {
	body, err := c.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	return c.parser.Parse(body)
}

// Fetch downloads and decodes the ticket page at u.
func (c *Client) Fetch(ctx context.Context, u *url.URL) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", c.cfg.Accept)
	req.Header.Set("Accept-Language", c.cfg.AcceptLanguage)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("ticket fetch failed", "url", u.String(), "error", err)
		return "", &FetchError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return "", &FetchError{Kind: KindNetwork, StatusCode: statusIfBad(resp.StatusCode), Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Info("fetched ticket",
		"url", u.String(),
		"status", resp.StatusCode,
		"bytes", len(data),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := DecodeBody(data)
		return "", &FetchError{
			Kind:       KindNetwork,
			StatusCode: resp.StatusCode,
			Snippet:    snippet(text),
			Err:        ErrBadStatus,
		}
	}

	if int64(len(data)) > c.cfg.MaxBodyBytes {
		return "", &FetchError{
			Kind: KindNetwork,
			Err:  fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, c.cfg.MaxBodyBytes),
		}
	}

	text, err := DecodeBody(data)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return "", fe
		}
		return "", &FetchError{Kind: KindDecode, Err: err}
	}
	return text, nil
}

func statusIfBad(code int) int {
	if code < 200 || code > 299 {
		return code
	}
	return 0
}
