// Package processor implements the payment.Processor contract over
// the processor's HTTP API.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/storefront/internal/payment"
	"github.com/sony/gobreaker/v2"
)

// Client talks to the payment processor's reservation API. Calls go
// through a circuit breaker so a struggling processor fails fast
// instead of stacking up checkout requests.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*payment.Reservation]
}

func NewClient(baseURL, apiKey string) *Client {
	breaker := gobreaker.NewCircuitBreaker[*payment.Reservation](gobreaker.Settings{
		Name:    "payment-processor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    breaker,
	}
}

type reservationRequest struct {
	Amount   int               `json:"amount"`
	Currency string            `json:"currency,omitempty"`
	Metadata *payment.Metadata `json:"metadata,omitempty"`
}

func (c *Client) Create(ctx context.Context, amount int, currency string, md payment.Metadata) (*payment.Reservation, error) {
	return c.execute(func() (*payment.Reservation, error) {
		return c.do(ctx, http.MethodPost, "/v1/reservations", &reservationRequest{
			Amount:   amount,
			Currency: currency,
			Metadata: &md,
		})
	})
}

func (c *Client) Get(ctx context.Context, id string) (*payment.Reservation, error) {
	return c.execute(func() (*payment.Reservation, error) {
		return c.do(ctx, http.MethodGet, "/v1/reservations/"+id, nil)
	})
}

func (c *Client) Update(ctx context.Context, id string, amount int, md payment.Metadata) (*payment.Reservation, error) {
	return c.execute(func() (*payment.Reservation, error) {
		return c.do(ctx, http.MethodPost, "/v1/reservations/"+id, &reservationRequest{
			Amount:   amount,
			Metadata: &md,
		})
	})
}

// execute runs fn through the breaker. An open circuit reads the
// same as a processor outage to callers.
func (c *Client) execute(fn func() (*payment.Reservation, error)) (*payment.Reservation, error) {
	res, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", payment.ErrProcessorUnavailable, err)
	}
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*payment.Reservation, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, payment.ErrReservationNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: processor returned %d", payment.ErrProcessorUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("processor rejected request (%d): %s", resp.StatusCode, respBody)
	}

	var res payment.Reservation
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode reservation: %w", err)
	}
	return &res, nil
}
