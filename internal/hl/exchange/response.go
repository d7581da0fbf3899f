package exchange

import (
	"errors"
	"fmt"
	"strconv"
)

// OrderStatus is the per-order outcome extracted from an exchange response.
// For IOC orders FilledSize is the immediately matched size; the unfilled
// remainder is cancelled by the venue.
type OrderStatus struct {
	OrderID    int64
	FilledSize float64
	AvgPrice   float64
	Resting    bool
	Error      string
}

// OrderStatusFromResponse extracts the first order status from a place-order
// response of the shape:
//
//	{"status":"ok","response":{"data":{"statuses":[{"filled":{"totalSz":"2.0","avgPx":"100.1","oid":77}}]}}}
//
// A status-level error string is returned in OrderStatus.Error rather than as
// an error, so callers can distinguish rejection from transport failure.
func OrderStatusFromResponse(resp map[string]any) (OrderStatus, error) {
	if resp == nil {
		return OrderStatus{}, errors.New("empty response")
	}
	if status, _ := resp["status"].(string); status != "" && status != "ok" {
		return OrderStatus{}, fmt.Errorf("exchange status %q: %v", status, resp["response"])
	}
	statuses := statusesFromResponse(resp)
	if len(statuses) == 0 {
		return OrderStatus{}, errors.New("response has no order statuses")
	}
	entry, ok := statuses[0].(map[string]any)
	if !ok {
		return OrderStatus{}, fmt.Errorf("unexpected status entry %T", statuses[0])
	}
	if msg, ok := entry["error"].(string); ok {
		return OrderStatus{Error: msg}, nil
	}
	if filled, ok := entry["filled"].(map[string]any); ok {
		return OrderStatus{
			OrderID:    intFromAny(filled["oid"]),
			FilledSize: floatFromAny(filled["totalSz"]),
			AvgPrice:   floatFromAny(filled["avgPx"]),
		}, nil
	}
	if resting, ok := entry["resting"].(map[string]any); ok {
		return OrderStatus{OrderID: intFromAny(resting["oid"]), Resting: true}, nil
	}
	return OrderStatus{}, fmt.Errorf("unrecognized order status %v", entry)
}

func statusesFromResponse(resp map[string]any) []any {
	inner, ok := resp["response"].(map[string]any)
	if !ok {
		return nil
	}
	data, ok := inner["data"].(map[string]any)
	if !ok {
		return nil
	}
	statuses, _ := data["statuses"].([]any)
	return statuses
}

func floatFromAny(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func intFromAny(v any) int64 {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case int64:
		return val
	case int:
		return int64(val)
	case string:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
