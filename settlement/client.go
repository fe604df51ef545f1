package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

// Status is the collaborator's view of one trade. Unwindable reports
// whether a failed trade left both parties' balances untouched, so its
// amount can safely be put back into the book.
type Status struct {
	State      types.SettlementStatus `json:"status"`
	TxRef      string                 `json:"tx_ref"`
	Unwindable bool                   `json:"unwindable"`
}

// Client is the boundary to the external settlement service. The service
// keys submissions by trade ID, so resubmitting an accepted trade is a
// no-op on its side.
type Client interface {
	SubmitTrade(ctx context.Context, trade *matching.Trade) (string, error)
	GetTradeStatus(ctx context.Context, tradeID uuid.UUID) (*Status, error)
}

// HTTPClient talks to the settlement service over HTTP with transport-level
// retries.
type HTTPClient struct {
	base string
	http *retryablehttp.Client
}

func NewHTTPClient(base string) *HTTPClient {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil

	return &HTTPClient{
		base: strings.TrimRight(base, "/"),
		http: c,
	}
}

type submitResponse struct {
	TxRef string `json:"tx_ref"`
}

func (c *HTTPClient) SubmitTrade(ctx context.Context, trade *matching.Trade) (string, error) {
	body, err := json.Marshal(trade)
	if err != nil {
		return "", err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+"/trades", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// 409 means the trade ID was already accepted: the idempotency key did
	// its job, treat it as a successful submission.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
		return "", fmt.Errorf("settlement: submit %s returned %d", trade.ID, resp.StatusCode)
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	return out.TxRef, nil
}

func (c *HTTPClient) GetTradeStatus(ctx context.Context, tradeID uuid.UUID) (*Status, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.base+"/trades/"+tradeID.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("settlement: status %s returned %d", tradeID, resp.StatusCode)
	}

	status := new(Status)
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, err
	}

	return status, nil
}
