// Package graph is a REST client for a HugeGraph-compatible server. It
// covers the operations the pipeline needs: gremlin traversal, neighbor
// path expansion, schema import, batch vertex/edge commit, and data clear.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// clearConfirm is the confirmation phrase the server demands before
// dropping all graph data.
const clearConfirm = "I'm sure to delete all data"

// Client talks to one named graph on a HugeGraph-compatible server.
type Client struct {
	baseURL string
	graph   string
	user    string
	pass    string
	client  *http.Client
	log     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// NewClient creates a client for the graph named graphName at baseURL
// (e.g. http://127.0.0.1:8080). Empty user disables basic auth.
func NewClient(baseURL, graphName, user, pass string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("graph base URL is required")
	}
	if graphName == "" {
		return nil, fmt.Errorf("graph name is required")
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		graph:   graphName,
		user:    user,
		pass:    pass,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GraphName returns the configured graph name.
func (c *Client) GraphName() string {
	return c.graph
}

// do sends an API request and decodes the response into out when out is
// non-nil. Non-2xx statuses become errors carrying the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.pass)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("graph server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// graphPath returns the API path for this graph plus suffix.
func (c *Client) graphPath(suffix string) string {
	return "/apis/graphs/" + url.PathEscape(c.graph) + suffix
}

type gremlinRequest struct {
	Gremlin  string                 `json:"gremlin"`
	Bindings map[string]interface{} `json:"bindings"`
	Language string                 `json:"language"`
	Aliases  map[string]string      `json:"aliases"`
}

type gremlinResponse struct {
	RequestID string `json:"requestId"`
	Status    struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Result struct {
		Data json.RawMessage `json:"data"`
	} `json:"result"`
}

// Gremlin executes a gremlin-groovy query against this graph and returns
// the raw result data array.
func (c *Client) Gremlin(ctx context.Context, query string) (json.RawMessage, error) {
	req := gremlinRequest{
		Gremlin:  query,
		Bindings: map[string]interface{}{},
		Language: "gremlin-groovy",
		Aliases: map[string]string{
			"graph": c.graph,
			"g":     "__g_" + c.graph,
		},
	}
	var resp gremlinResponse
	if err := c.do(ctx, http.MethodPost, "/apis/gremlin", req, &resp); err != nil {
		return nil, fmt.Errorf("gremlin: %w", err)
	}
	c.log.Debug("gremlin executed", zap.String("request_id", resp.RequestID))
	return resp.Result.Data, nil
}

// ClearData drops all schema and data of the graph.
func (c *Client) ClearData(ctx context.Context) error {
	path := c.graphPath("/clear?confirm_message=" + url.QueryEscape(clearConfirm))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	c.log.Info("graph data cleared", zap.String("graph", c.graph))
	return nil
}

// Ping checks the server is reachable by fetching the graph's schema.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Schema(ctx)
	return err
}

// quoteGremlin makes s safe inside a single-quoted groovy string literal.
func quoteGremlin(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// quoteGremlinList renders ids as 'a','b','c' for interpolation into g.V().
func quoteGremlinList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = quoteGremlin(id)
	}
	return strings.Join(quoted, ",")
}
