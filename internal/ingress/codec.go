package ingress

import (
	"encoding/binary"
	"errors"

	"github.com/lattice-markets/matchcore/internal/types"
)

// MessageType discriminates frames on the wire, the same one-byte-tag
// pattern saiputravu-Exchange's internal/net/messages.go uses (there with a
// 2-byte BigEndian tag; one byte is enough for the four message kinds here).
type MessageType uint8

const (
	MessageHeartbeat MessageType = iota
	MessageNewOrder
	MessageCancelOrder
	MessageMarketOrder
)

const (
	frameHeaderLen = 1

	// NewOrderFrameLen is a leading order id followed by Client::Order's
	// fields from original_source/include/order.h (price, quantity,
	// account_id, side) minus its alignment padding, which has no purpose on
	// the wire.
	NewOrderFrameLen = 8 + 8 + 8 + 8 + 1

	CancelOrderFrameLen = 8

	// MarketOrderFrameLen is NewOrderFrameLen without the price field — spec.md
	// §6's order_type/side/price/quantity/account_id/order_id producer struct,
	// with price dropped since a market order never carries one.
	MarketOrderFrameLen = 8 + 8 + 8 + 1
)

var (
	ErrFrameTooShort      = errors.New("ingress: frame shorter than its header")
	ErrUnknownMessageType = errors.New("ingress: unknown message type")
)

// NewOrderFrame is the decoded form of a NewOrder wire frame.
type NewOrderFrame struct {
	OrderID   types.OrderID
	Price     types.Price
	Quantity  types.Volume
	AccountID types.AccountID
	Side      types.Side
}

// CancelOrderFrame is the decoded form of a CancelOrder wire frame.
type CancelOrderFrame struct {
	OrderID types.OrderID
}

// MarketOrderFrame is the decoded form of a MarketOrder wire frame: a
// market order has no price, just a side and a quantity to sweep.
type MarketOrderFrame struct {
	OrderID   types.OrderID
	Quantity  types.Volume
	AccountID types.AccountID
	Side      types.Side
}

// DecodeFrame reads the one-byte type tag and dispatches to the matching
// decoder. A Heartbeat frame decodes to a nil payload and a nil error.
func DecodeFrame(buf []byte) (any, error) {
	if len(buf) < frameHeaderLen {
		return nil, ErrFrameTooShort
	}
	switch MessageType(buf[0]) {
	case MessageHeartbeat:
		return nil, nil
	case MessageNewOrder:
		return decodeNewOrder(buf[frameHeaderLen:])
	case MessageCancelOrder:
		return decodeCancelOrder(buf[frameHeaderLen:])
	case MessageMarketOrder:
		return decodeMarketOrder(buf[frameHeaderLen:])
	default:
		return nil, ErrUnknownMessageType
	}
}

func decodeNewOrder(b []byte) (NewOrderFrame, error) {
	if len(b) < NewOrderFrameLen {
		return NewOrderFrame{}, ErrFrameTooShort
	}
	return NewOrderFrame{
		OrderID:   types.OrderID(binary.BigEndian.Uint64(b[0:8])),
		Price:     types.Price(binary.BigEndian.Uint64(b[8:16])),
		Quantity:  types.Volume(binary.BigEndian.Uint64(b[16:24])),
		AccountID: types.AccountID(binary.BigEndian.Uint64(b[24:32])),
		Side:      types.Side(b[32]),
	}, nil
}

func decodeCancelOrder(b []byte) (CancelOrderFrame, error) {
	if len(b) < CancelOrderFrameLen {
		return CancelOrderFrame{}, ErrFrameTooShort
	}
	return CancelOrderFrame{
		OrderID: types.OrderID(binary.BigEndian.Uint64(b[0:8])),
	}, nil
}

func decodeMarketOrder(b []byte) (MarketOrderFrame, error) {
	if len(b) < MarketOrderFrameLen {
		return MarketOrderFrame{}, ErrFrameTooShort
	}
	return MarketOrderFrame{
		OrderID:   types.OrderID(binary.BigEndian.Uint64(b[0:8])),
		Quantity:  types.Volume(binary.BigEndian.Uint64(b[8:16])),
		AccountID: types.AccountID(binary.BigEndian.Uint64(b[16:24])),
		Side:      types.Side(b[24]),
	}, nil
}

// EncodeNewOrder serializes f as a tagged wire frame.
func EncodeNewOrder(f NewOrderFrame) []byte {
	buf := make([]byte, frameHeaderLen+NewOrderFrameLen)
	buf[0] = byte(MessageNewOrder)
	binary.BigEndian.PutUint64(buf[1:9], uint64(f.OrderID))
	binary.BigEndian.PutUint64(buf[9:17], uint64(f.Price))
	binary.BigEndian.PutUint64(buf[17:25], uint64(f.Quantity))
	binary.BigEndian.PutUint64(buf[25:33], uint64(f.AccountID))
	buf[33] = byte(f.Side)
	return buf
}

// EncodeCancelOrder serializes f as a tagged wire frame.
func EncodeCancelOrder(f CancelOrderFrame) []byte {
	buf := make([]byte, frameHeaderLen+CancelOrderFrameLen)
	buf[0] = byte(MessageCancelOrder)
	binary.BigEndian.PutUint64(buf[1:9], uint64(f.OrderID))
	return buf
}

// EncodeMarketOrder serializes f as a tagged wire frame.
func EncodeMarketOrder(f MarketOrderFrame) []byte {
	buf := make([]byte, frameHeaderLen+MarketOrderFrameLen)
	buf[0] = byte(MessageMarketOrder)
	binary.BigEndian.PutUint64(buf[1:9], uint64(f.OrderID))
	binary.BigEndian.PutUint64(buf[9:17], uint64(f.Quantity))
	binary.BigEndian.PutUint64(buf[17:25], uint64(f.AccountID))
	buf[25] = byte(f.Side)
	return buf
}
