package ingress

import (
	"testing"

	"github.com/lattice-markets/matchcore/internal/types"
)

func TestEncodeDecodeNewOrderRoundTrip(t *testing.T) {
	f := NewOrderFrame{
		OrderID:   42,
		Price:     10050,
		Quantity:  7,
		AccountID: 99,
		Side:      types.Ask,
	}

	wire := EncodeNewOrder(f)
	decoded, err := DecodeFrame(wire)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	got, ok := decoded.(NewOrderFrame)
	if !ok {
		t.Fatalf("expected NewOrderFrame, got %T", decoded)
	}
	if got != f {
		t.Fatalf("expected %+v, got %+v", f, got)
	}
}

func TestEncodeDecodeCancelOrderRoundTrip(t *testing.T) {
	f := CancelOrderFrame{OrderID: 7}

	wire := EncodeCancelOrder(f)
	decoded, err := DecodeFrame(wire)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	got, ok := decoded.(CancelOrderFrame)
	if !ok {
		t.Fatalf("expected CancelOrderFrame, got %T", decoded)
	}
	if got != f {
		t.Fatalf("expected %+v, got %+v", f, got)
	}
}

func TestEncodeDecodeMarketOrderRoundTrip(t *testing.T) {
	f := MarketOrderFrame{
		OrderID:   13,
		Quantity:  60,
		AccountID: 5,
		Side:      types.Bid,
	}

	wire := EncodeMarketOrder(f)
	decoded, err := DecodeFrame(wire)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	got, ok := decoded.(MarketOrderFrame)
	if !ok {
		t.Fatalf("expected MarketOrderFrame, got %T", decoded)
	}
	if got != f {
		t.Fatalf("expected %+v, got %+v", f, got)
	}
}

func TestDecodeMarketOrderTruncatedPayload(t *testing.T) {
	wire := EncodeMarketOrder(MarketOrderFrame{OrderID: 1})
	truncated := wire[:len(wire)-3]
	if _, err := DecodeFrame(truncated); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort for truncated payload, got %v", err)
	}
}

func TestDecodeFrameTooShortHeader(t *testing.T) {
	if _, err := DecodeFrame(nil); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
}

func TestDecodeFrameUnknownType(t *testing.T) {
	if _, err := DecodeFrame([]byte{0xFF}); err != ErrUnknownMessageType {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeNewOrderTruncatedPayload(t *testing.T) {
	wire := EncodeNewOrder(NewOrderFrame{OrderID: 1})
	truncated := wire[:len(wire)-5]
	if _, err := DecodeFrame(truncated); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort for truncated payload, got %v", err)
	}
}

func TestDecodeHeartbeatReturnsNil(t *testing.T) {
	decoded, err := DecodeFrame([]byte{byte(MessageHeartbeat)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected nil payload for heartbeat, got %v", decoded)
	}
}
