package hubble

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"hubble-mm-bot/internal/account"
	"hubble-mm-bot/internal/exec"
	"hubble-mm-bot/internal/strategy"

	"go.uber.org/zap"
)

// Client is the maker venue's REST connector. It implements exec.Venue for
// order placement and account.Source for the margin/positions poll.
type Client struct {
	baseURL  string
	http     *http.Client
	signer   *Signer
	ammIndex int64
	log      *zap.Logger

	lastSalt atomic.Uint64
}

func NewClient(baseURL string, timeout time.Duration, signer *Signer, ammIndex int64, log *zap.Logger) (*Client, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if baseURL == "" {
		return nil, errors.New("maker base url is required")
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
		signer:   signer,
		ammIndex: ammIndex,
		log:      log,
	}, nil
}

type orderWire struct {
	AMMIndex          int64  `json:"amm_index"`
	Trader            string `json:"trader"`
	BaseAssetQuantity string `json:"base_asset_quantity"`
	Price             string `json:"price"`
	Salt              string `json:"salt"`
	ReduceOnly        bool   `json:"reduce_only"`
	Signature         string `json:"signature"`
	ClientOrderID     string `json:"client_order_id,omitempty"`
	ExpiresAt         int64  `json:"expires_at,omitempty"`
}

type placeResponse struct {
	Orders []struct {
		ClientOrderID string `json:"client_order_id"`
		OrderID       string `json:"order_id"`
		Error         string `json:"error"`
	} `json:"orders"`
}

// PlaceOrders signs and submits the batch, returning one result per input
// order in input order.
func (c *Client) PlaceOrders(ctx context.Context, orders []exec.Order) ([]exec.Result, error) {
	wires := make([]orderWire, 0, len(orders))
	for _, order := range orders {
		signed, err := c.signer.SignOrder(c.ammIndex, order.Quantity, order.Price, order.ReduceOnly, c.nextSalt())
		if err != nil {
			return nil, fmt.Errorf("sign order %s: %w", order.ClientOrderID, err)
		}
		wire := orderWire{
			AMMIndex:          signed.AMMIndex,
			Trader:            signed.Trader.Hex(),
			BaseAssetQuantity: signed.BaseAssetQuantity.String(),
			Price:             signed.Price.String(),
			Salt:              signed.Salt.String(),
			ReduceOnly:        signed.ReduceOnly,
			Signature:         signed.Signature,
			ClientOrderID:     order.ClientOrderID,
		}
		if !order.ExpiresAt.IsZero() {
			wire.ExpiresAt = order.ExpiresAt.Unix()
		}
		wires = append(wires, wire)
	}
	var resp placeResponse
	if err := c.post(ctx, "/orders", map[string]any{"orders": wires}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Orders) != len(orders) {
		return nil, fmt.Errorf("expected %d order results, got %d", len(orders), len(resp.Orders))
	}
	results := make([]exec.Result, len(orders))
	for i, entry := range resp.Orders {
		clientID := entry.ClientOrderID
		if clientID == "" {
			clientID = orders[i].ClientOrderID
		}
		results[i] = exec.Result{ClientOrderID: clientID, OrderID: entry.OrderID, Err: entry.Error}
	}
	return results, nil
}

// CancelOrders cancels by venue order id. The venue treats unknown ids as
// already gone, so expiry races are not errors.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return c.post(ctx, "/orders/cancel", map[string]any{"order_ids": orderIDs}, nil)
}

type marginAndPositionsResponse struct {
	Margin         string `json:"margin"`
	ReservedMargin string `json:"reserved_margin"`
	Positions      []struct {
		Market        string `json:"market"`
		Size          string `json:"size"`
		Notional      string `json:"notional"`
		UnrealisedPnL string `json:"unrealised_pnl"`
	} `json:"positions"`
}

// MarginAndPositions implements account.Source.
func (c *Client) MarginAndPositions(ctx context.Context) (account.Snapshot, error) {
	path := "/margin-and-positions?trader=" + url.QueryEscape(c.signer.Address().Hex())
	var resp marginAndPositionsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return account.Snapshot{}, err
	}
	margin, err := parseDecimal(resp.Margin, "margin")
	if err != nil {
		return account.Snapshot{}, err
	}
	reserved := 0.0
	if resp.ReservedMargin != "" {
		if reserved, err = parseDecimal(resp.ReservedMargin, "reserved_margin"); err != nil {
			return account.Snapshot{}, err
		}
	}
	positions := make([]strategy.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		size, err := parseDecimal(p.Size, "position size")
		if err != nil {
			return account.Snapshot{}, err
		}
		notional, err := parseDecimal(p.Notional, "position notional")
		if err != nil {
			return account.Snapshot{}, err
		}
		upnl := 0.0
		if p.UnrealisedPnL != "" {
			if upnl, err = parseDecimal(p.UnrealisedPnL, "position pnl"); err != nil {
				return account.Snapshot{}, err
			}
		}
		positions = append(positions, strategy.Position{
			Market:        p.Market,
			Size:          size,
			Notional:      notional,
			UnrealizedPnL: upnl,
		})
	}
	return account.Snapshot{
		Margin:         margin,
		ReservedMargin: reserved,
		Positions:      positions,
		Time:           time.Now(),
	}, nil
}

// nextSalt is nanosecond-based and strictly increasing, so two orders signed
// in the same instant never collide on the venue's (trader, salt) key.
func (c *Client) nextSalt() *big.Int {
	now := uint64(time.Now().UnixNano())
	for {
		prev := c.lastSalt.Load()
		next := now
		if prev >= next {
			next = prev + 1
		}
		if c.lastSalt.CompareAndSwap(prev, next) {
			return new(big.Int).SetUint64(next)
		}
	}
}

func (c *Client) post(ctx context.Context, path string, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(payload))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseDecimal(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	return v, nil
}
