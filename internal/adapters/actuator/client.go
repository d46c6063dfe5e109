package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
)

const (
	betsPath = "/bets"

	maxRetries    = 3
	baseRetryWait = 250 * time.Millisecond
)

// betRequest es el payload que recibe el servicio de actuación.
type betRequest struct {
	PositionID  string    `json:"position_id"`
	TableID     string    `json:"table_id"`
	RoundID     string    `json:"round_id"`
	StrategyKey string    `json:"strategy_key"`
	Side        string    `json:"side"`
	Direction   string    `json:"direction"`
	Amount      float64   `json:"amount"`
	LayerIndex  int       `json:"layer_index"`
	CreatedAt   time.Time `json:"created_at"`
}

type betResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// Client envía las apuestas aprobadas al servicio de actuación (el que mueve
// el puntero y convierte el importe en fichas) por HTTP, con retries.
// El position_id viaja como Idempotency-Key para que un retry no duplique la apuesta.
type Client struct {
	http *http.Client
	base string
}

// NewClient crea un Client contra baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		base: baseURL,
	}
}

// PlaceBet implementa ports.Actuator.
func (c *Client) PlaceBet(ctx context.Context, d domain.BetDecision) error {
	req := betRequest{
		PositionID:  d.PositionID,
		TableID:     d.TableID,
		RoundID:     d.RoundID,
		StrategyKey: d.StrategyKey,
		Side:        string(d.Direction),
		Direction:   d.Direction.Name(),
		Amount:      d.Amount,
		LayerIndex:  d.LayerIndex,
		CreatedAt:   d.CreatedAt,
	}
	var resp betResponse
	if err := c.post(ctx, betsPath, d.PositionID, req, &resp); err != nil {
		return fmt.Errorf("actuator.PlaceBet: %s/%s: %w", d.TableID, d.RoundID, err)
	}
	if !resp.Accepted {
		return fmt.Errorf("actuator.PlaceBet: %s/%s: rejected: %s", d.TableID, d.RoundID, resp.Message)
	}
	return nil
}

// post hace un POST JSON con retries.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Idempotency-Key", idempotencyKey)
		return c.http.Do(req)
	}, out)
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := fn()
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("actuator: retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
