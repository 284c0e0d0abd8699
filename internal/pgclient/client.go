// Package pgclient предоставляет клиент API статусов платёжного шлюза.
package pgclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/orderpay/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с API статусов PG.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Transaction описывает ответ PG по одной транзакции.
type Transaction struct {
	PgTransactionID       string         `json:"pgTransactionId"`
	MerchantCorrelationID string         `json:"merchantCorrelationId"`
	Status                string         `json:"status"`
	Amount                int64          `json:"amount"`
	Currency              model.Currency `json:"currency"`
	Reason                string         `json:"reason,omitempty"`
}

// Статусы транзакции в ответе PG.
const (
	StatusReady     = "READY"
	StatusApproved  = "APPROVED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// NewClient создаёт HTTP-клиент для обращения к PG по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetTransaction запрашивает состояние транзакции по идентификатору платежа,
// переданному в PG. Возвращает nil без ошибки, если PG транзакцию не знает.
func (c *Client) GetTransaction(ctx context.Context, correlationID string) (*Transaction, int, time.Duration, error) {
	if c == nil || c.baseURL == "" {
		return nil, 0, 0, fmt.Errorf("pg client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	endpoint := fmt.Sprintf("%s/api/transactions/%s", base, url.PathEscape(correlationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, resp.StatusCode, retryAfter, nil
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, resp.StatusCode, 0, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Transaction
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("decode response: %w", err)
	}

	return &result, resp.StatusCode, 0, nil
}
