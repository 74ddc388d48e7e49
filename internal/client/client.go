package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
	api "github.com/fjod/cheeseshop/internal/http"
	"github.com/fjod/cheeseshop/internal/status"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected response status")
	// ErrCallFailed is returned for a call site that already failed; the
	// tracker has to be reset before it is tried again.
	ErrCallFailed = errors.New("call already failed")
)

// StatusError is a non-2xx response of the storefront API.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %d %s (%s)", ErrUnexpectedStatus, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Client talks to the storefront API on behalf of one session. It is not
// safe for concurrent use.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	tracker    *status.Tracker
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTracker(t *status.Tracker) Option {
	return func(c *Client) { c.tracker = t }
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) { c.breaker = newBreaker(st) }
}

func New(baseURL, sessionID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tracker:    status.NewTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(gobreaker.Settings{
			Name:    "storefront",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return c
}

func newBreaker(st gobreaker.Settings) *gobreaker.CircuitBreaker[[]byte] {
	if st.IsSuccessful == nil {
		// Rejections of a well-formed request say nothing about the
		// server's health.
		st.IsSuccessful = func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		}
	}
	return gobreaker.NewCircuitBreaker[[]byte](st)
}

// SessionID is the identity the client sends. It is filled in from the
// server's cookie when the client started without one.
func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) Tracker() *status.Tracker {
	return c.tracker
}

func (c *Client) FetchCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	var resp api.CatalogResponse
	if err := c.call(ctx, status.CallCatalog, c.sessionID, http.MethodGet, "/api/v1/catalog", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) Cart(ctx context.Context) (api.CartResponse, error) {
	var resp api.CartResponse
	err := c.call(ctx, status.CallCart, c.sessionID, http.MethodGet, "/api/v1/cart", nil, http.StatusOK, &resp)
	return resp, err
}

func (c *Client) AddItem(ctx context.Context, itemID int64) (api.CartResponse, error) {
	var resp api.CartResponse
	err := c.call(ctx, status.CallCart, c.sessionID, http.MethodPost, "/api/v1/cart/items", api.AddItemRequestDTO{ID: itemID}, http.StatusOK, &resp)
	return resp, err
}

func (c *Client) RemoveItem(ctx context.Context, itemID int64) (api.CartResponse, error) {
	var resp api.CartResponse
	path := "/api/v1/cart/items/" + strconv.FormatInt(itemID, 10)
	err := c.call(ctx, status.CallCart, c.sessionID, http.MethodDelete, path, nil, http.StatusOK, &resp)
	return resp, err
}

// Checkout commits the session's cart on the server.
func (c *Client) Checkout(ctx context.Context) (*domain.Purchase, error) {
	var purchase domain.Purchase
	if err := c.call(ctx, status.CallSubmit, c.sessionID, http.MethodPost, "/api/v1/checkout", nil, http.StatusCreated, &purchase); err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (c *Client) FetchPurchaseHistory(ctx context.Context, sessionID string) ([]domain.Purchase, error) {
	var resp api.PurchasesResponse
	if err := c.call(ctx, status.CallHistory, sessionID, http.MethodGet, "/api/v1/purchases", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Purchases, nil
}

func (c *Client) call(ctx context.Context, call, sessionID, method, path string, in any, want int, out any) error {
	if !c.tracker.Start(call) {
		return fmt.Errorf("%s: %w: %w", call, ErrCallFailed, c.tracker.Err(call))
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, sessionID, method, path, in, want)
	})
	if err == nil && out != nil {
		if errDecode := json.Unmarshal(body, out); errDecode != nil {
			err = fmt.Errorf("failed to decode %s response: %w", call, errDecode)
		}
	}

	c.tracker.Finish(call, err)
	return err
}

func (c *Client) do(ctx context.Context, sessionID, method, path string, in any, want int) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: sessionID})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if c.sessionID == "" {
		for _, ck := range resp.Cookies() {
			if ck.Name == api.SessionCookie {
				c.sessionID = ck.Value
			}
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		se := &StatusError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil {
			se.Code = errResp.Code
			se.Message = errResp.Details
			if se.Message == "" {
				se.Message = errResp.Error
			}
		}
		return nil, se
	}

	return data, nil
}
