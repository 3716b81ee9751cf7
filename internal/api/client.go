package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServerCart is the authoritative cart as returned by GET /cart. Each line
// embeds the current product document, so pricing can be re-derived from
// live catalog state on every pull.
type ServerCart struct {
	Items []ServerItem `json:"items"`
}

type ServerItem struct {
	Product  ServerProduct `json:"productId"`
	Name     string        `json:"name"`
	Quantity int           `json:"quantity"`
}

type ServerProduct struct {
	ID        string          `json:"_id"`
	Price     decimal.Decimal `json:"price"`
	SalePrice decimal.Decimal `json:"salePrice"`
	OnSale    bool            `json:"onSale"`
	Images    []string        `json:"images"`
	Stock     int             `json:"stock"`
}

// TokenSource supplies the bearer token for authenticated calls.
// An empty token sends the request unauthenticated.
type TokenSource interface {
	Token() string
}

// Client talks to the remote cart API. All calls go through a circuit
// breaker so a flapping backend fails fast instead of stacking timeouts
// on every best-effort mirror.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:    "cart-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:  tokens,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// GetCart fetches the server-side cart. Used only by the one-time
// post-login pull.
func (c *Client) GetCart(ctx context.Context) (*ServerCart, error) {
	resp, err := c.do(ctx, http.MethodGet, "/cart", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cart ServerCart
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		return nil, fmt.Errorf("decode cart response: %w", err)
	}
	return &cart, nil
}

// AddItem upserts a line on the server cart.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int) error {
	body := map[string]any{"productId": productID, "quantity": quantity}
	resp, err := c.do(ctx, http.MethodPost, "/cart", body)
	if err != nil {
		return err
	}
	return drain(resp)
}

// UpdateQuantity patches one line's quantity.
func (c *Client) UpdateQuantity(ctx context.Context, productID string, quantity int) error {
	body := map[string]any{"quantity": quantity}
	resp, err := c.do(ctx, http.MethodPatch, "/cart/"+productID, body)
	if err != nil {
		return err
	}
	return drain(resp)
}

// RemoveItem deletes one line.
func (c *Client) RemoveItem(ctx context.Context, productID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/cart/"+productID, nil)
	if err != nil {
		return err
	}
	return drain(resp)
}

// ClearCart deletes the whole server cart.
func (c *Client) ClearCart(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/cart", nil)
	if err != nil {
		return err
	}
	return drain(resp)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal request body: %w", err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode}
		}
		return resp, nil
	})
}

func drain(resp *http.Response) error {
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// StatusError is a non-2xx reply from the cart API.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
}
