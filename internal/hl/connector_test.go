package hl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hubble-mm-bot/internal/health"
	"hubble-mm-bot/internal/hl/exchange"
	"hubble-mm-bot/internal/hl/rest"
	"hubble-mm-bot/internal/retry"

	"go.uber.org/zap"
)

const testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2"

func newTestConnector(t *testing.T, handler http.HandlerFunc) (*Connector, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	signer, err := exchange.NewSigner(testKey, true)
	if err != nil {
		t.Fatalf("signer error: %v", err)
	}
	exClient, err := exchange.NewClient(server.URL, 2*time.Second, signer)
	if err != nil {
		t.Fatalf("client error: %v", err)
	}
	restClient := rest.New(server.URL, 2*time.Second, zap.NewNop())
	conn := NewConnector(restClient, exClient, nil, signer.Address().Hex(), "ETH", 5, zap.NewNop())
	return conn, server
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func metaResponse() map[string]any {
	return map[string]any{
		"universe": []any{
			map[string]any{"name": "BTC"},
			map[string]any{"name": "ETH"},
			map[string]any{"name": "SOL"},
		},
	}
}

func TestResolveAssetCachesIndex(t *testing.T) {
	calls := 0
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(t, w, metaResponse())
	})
	ctx := context.Background()
	idx, err := conn.ResolveAsset(ctx)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected asset index 1, got %d", idx)
	}
	if _, err := conn.ResolveAsset(ctx); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 meta call, got %d", calls)
	}
}

func TestResolveAssetUnknownSymbol(t *testing.T) {
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"universe": []any{map[string]any{"name": "BTC"}}})
	})
	if _, err := conn.ResolveAsset(context.Background()); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestPlaceIOCFilled(t *testing.T) {
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info":
			writeJSON(t, w, metaResponse())
		case "/exchange":
			writeJSON(t, w, map[string]any{
				"status": "ok",
				"response": map[string]any{
					"type": "order",
					"data": map[string]any{
						"statuses": []any{
							map[string]any{
								"filled": map[string]any{
									"totalSz": "2.0",
									"avgPx":   "100.1",
									"oid":     float64(77),
								},
							},
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})
	exec, err := conn.PlaceIOC(context.Background(), "ETH", -2.0, 100.123456789)
	if err != nil {
		t.Fatalf("place error: %v", err)
	}
	if exec.OrderID != "77" {
		t.Fatalf("expected order id 77, got %s", exec.OrderID)
	}
	if exec.FilledQuantity != 2.0 || exec.AvgPrice != 100.1 {
		t.Fatalf("unexpected execution: %+v", exec)
	}
	if !exec.Complete {
		t.Fatalf("expected complete execution")
	}
}

func TestPlaceIOCPartial(t *testing.T) {
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info":
			writeJSON(t, w, metaResponse())
		case "/exchange":
			writeJSON(t, w, map[string]any{
				"status": "ok",
				"response": map[string]any{
					"type": "order",
					"data": map[string]any{
						"statuses": []any{
							map[string]any{
								"filled": map[string]any{"totalSz": "1.5", "avgPx": "99.9", "oid": float64(78)},
							},
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})
	exec, err := conn.PlaceIOC(context.Background(), "ETH", 2.0, 99.9)
	if err != nil {
		t.Fatalf("place error: %v", err)
	}
	if exec.Complete {
		t.Fatalf("expected partial execution")
	}
	if exec.FilledQuantity != 1.5 {
		t.Fatalf("expected filled 1.5, got %f", exec.FilledQuantity)
	}
}

func TestPlaceIOCRejected(t *testing.T) {
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info":
			writeJSON(t, w, metaResponse())
		case "/exchange":
			writeJSON(t, w, map[string]any{
				"status": "ok",
				"response": map[string]any{
					"type": "order",
					"data": map[string]any{
						"statuses": []any{
							map[string]any{"error": "Insufficient margin"},
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	})
	if _, err := conn.PlaceIOC(context.Background(), "ETH", 1.0, 100); err == nil {
		t.Fatalf("expected rejection error")
	}
}

func TestPollStateUpdatesAccountState(t *testing.T) {
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"withdrawable": "1234.5"})
	})
	if _, ok := conn.AccountState(); ok {
		t.Fatalf("expected no state before poll")
	}
	if err := conn.PollState(context.Background()); err != nil {
		t.Fatalf("poll error: %v", err)
	}
	state, ok := conn.AccountState()
	if !ok {
		t.Fatalf("expected state after poll")
	}
	if state.AvailableMargin != 1234.5 {
		t.Fatalf("expected margin 1234.5, got %f", state.AvailableMargin)
	}
	if state.Leverage != 5 {
		t.Fatalf("expected leverage 5, got %f", state.Leverage)
	}
}

func TestRunStatePollClearsSignalOnFailure(t *testing.T) {
	fail := false
	conn, _ := newTestConnector(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		writeJSON(t, w, map[string]any{"withdrawable": "10"})
	})
	sig := health.NewSignal()
	fault := health.NewFault()
	policy := retry.Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 2}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- conn.RunStatePoll(ctx, time.Millisecond, sig, fault, policy)
	}()

	deadline := time.After(time.Second)
	for !sig.IsSet() {
		select {
		case <-deadline:
			t.Fatalf("signal never set")
		case <-time.After(time.Millisecond):
		}
	}

	fail = true
	select {
	case <-fault.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("fault never tripped")
	}
	if sig.IsSet() {
		t.Fatalf("expected signal cleared after poll failure")
	}
	if _, ok := conn.AccountState(); ok {
		t.Fatalf("expected state invalidated after poll failure")
	}
	cancel()
	<-done
}

func TestAllMidsFrameParsing(t *testing.T) {
	raw := []byte(`{"channel":"allMids","data":{"mids":{"BTC":"64000.5","ETH":"3200.25"}}}`)
	var frame allMidsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if frame.Channel != "allMids" {
		t.Fatalf("unexpected channel %q", frame.Channel)
	}
	if frame.Data.Mids["ETH"] != "3200.25" {
		t.Fatalf("unexpected mid %q", frame.Data.Mids["ETH"])
	}
}
