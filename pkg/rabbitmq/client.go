package rabbitmq

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultTimeout bounds a single request to the management API when
	// no other timeout has been configured.
	//
	DefaultTimeout = 10 * time.Second

	queuesPath = "/api/queues"
)

// Client talks to the RabbitMQ management API over plain HTTP(S) using
// basic authentication.
//
type Client struct {
	baseURL   string
	username  string
	password  string
	userAgent string
	timeout   time.Duration

	httpClient *http.Client
	rest       *resty.Client

	log logr.Logger
}

// Option is a functional argument that overrides the client's defaults.
//
type Option func(c *Client)

// WithCredentials sets the basic-auth credentials attached to every request.
//
func WithCredentials(username, password string) func(c *Client) {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout overrides DefaultTimeout.
//
func WithTimeout(v time.Duration) func(c *Client) {
	return func(c *Client) {
		c.timeout = v
	}
}

func WithUserAgent(v string) func(c *Client) {
	return func(c *Client) {
		c.userAgent = v
	}
}

// WithHTTPClient makes requests go through the given client (and its
// transport) rather than a fresh one.
//
func WithHTTPClient(v *http.Client) func(c *Client) {
	return func(c *Client) {
		c.httpClient = v
	}
}

func WithLogger(v logr.Logger) func(c *Client) {
	return func(c *Client) {
		c.log = v
	}
}

// NewClient instantiates a client targeting the management API reachable
// at `baseURL` (e.g., http://localhost:15672).
//
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("url parse '%s': %w", baseURL, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url '%s' must carry scheme and host", baseURL)
	}

	c := &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		userAgent: "rabbitmq-exporter",
		timeout:   DefaultTimeout,
		log:       logr.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient != nil {
		c.rest = resty.NewWithClient(c.httpClient)
	} else {
		c.rest = resty.New()
	}

	c.rest.
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", c.userAgent).
		SetLogger(&restyLogger{log: c.log})

	if c.username != "" || c.password != "" {
		c.rest.SetBasicAuth(c.username, c.password)
	}

	return c, nil
}

// ListQueues retrieves every queue known to the broker, across all vhosts.
//
// Either the full list is returned or an error (*TransportError or
// *DecodeError), never a partial list.
//
func (c *Client) ListQueues(ctx context.Context) ([]Queue, error) {
	endpoint := c.baseURL + queuesPath

	resp, err := c.rest.R().
		SetContext(ctx).
		Get(queuesPath)
	if err != nil {
		return nil, &TransportError{URL: endpoint, Err: err}
	}

	if !resp.IsSuccess() {
		return nil, &TransportError{
			URL:        endpoint,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("status %s", resp.Status()),
		}
	}

	queues, err := decodeQueues(resp.Body())
	if err != nil {
		return nil, err
	}

	c.log.V(1).Info("listed queues",
		"url", endpoint,
		"count", len(queues),
		"took", resp.Time(),
	)

	return queues, nil
}
