package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tejuiceB/FractionFi/internal/common"
)

// SubmitRequest is the submission shape the fronting layer hands over
// once it has authenticated the user. Monetary fields travel as base-10
// strings; the core never sees binary floating point.
type SubmitRequest struct {
	UserID      string `json:"user_id"`
	BondID      string `json:"bond_id"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	ClientNonce string `json:"client_nonce,omitempty"`
}

// SubmitResponse is the full order record plus the IDs of any trades
// the submission generated.
type SubmitResponse struct {
	Order    *common.Order `json:"order"`
	TradeIDs []string      `json:"trade_ids"`
}

// ErrorBody is the stable wire form of a failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WireError converts an error into its response body.
func WireError(err error) ErrorBody {
	return ErrorBody{Code: common.CodeOf(err), Message: err.Error()}
}

// CancelRequest asks to cancel one order on behalf of its owner.
type CancelRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// CancelResponse reports whether the cancel took effect.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// CancelWire runs a wire cancel request.
func (e *Engine) CancelWire(ctx context.Context, req CancelRequest) CancelResponse {
	return CancelResponse{Cancelled: e.Cancel(ctx, req.OrderID, req.UserID)}
}

// SnapshotQuery asks for the top levels of one bond's book.
type SnapshotQuery struct {
	BondID string `json:"bond_id"`
	Depth  int    `json:"depth"`
}

// SnapshotWire runs a wire snapshot query.
func (e *Engine) SnapshotWire(ctx context.Context, req SnapshotQuery) (*Snapshot, error) {
	return e.Snapshot(ctx, req.BondID, req.Depth)
}

// SubmitWire parses a wire request and submits it.
func (e *Engine) SubmitWire(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	side, err := common.ParseSide(req.Side)
	if err != nil {
		return nil, e.reject(err)
	}
	typ, err := common.ParseOrderType(req.Type)
	if err != nil {
		return nil, e.reject(err)
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return nil, e.reject(fmt.Errorf("quantity %q: %w", req.Quantity, common.ErrBadQuantity))
	}
	price := decimal.Zero
	if typ == common.LimitOrder {
		if price, err = decimal.NewFromString(req.Price); err != nil {
			return nil, e.reject(fmt.Errorf("price %q: %w", req.Price, common.ErrBadPrice))
		}
	}

	order, trades, err := e.Submit(ctx, req.UserID, req.BondID, side, typ, price, quantity)
	if err != nil {
		return nil, err
	}
	resp := &SubmitResponse{Order: order, TradeIDs: make([]string, 0, len(trades))}
	for _, t := range trades {
		resp.TradeIDs = append(resp.TradeIDs, t.ID)
	}
	return resp, nil
}
