package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrGeoBlocked        = errors.New("trading blocked in current region")
	ErrPositionClosed    = errors.New("position already closed")
	ErrOrderNotFilled    = errors.New("order not filled")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrInvalidSignal     = errors.New("invalid trade signal")
	ErrInsufficientFunds = errors.New("insufficient available balance")
	ErrConnectivity      = errors.New("exchange connectivity check failed")
	ErrWSDisconnect      = errors.New("websocket disconnected")
	ErrLockHeld          = errors.New("lock already held")
)

// Sizing failures carry the reason the computed size was rejected.
var (
	ErrBudgetBelowMinLot = errors.New("insufficient budget for minimum lot")
	ErrBelowMinSize      = errors.New("size below instrument minimum")
	ErrBelowMinMargin    = errors.New("margin below instrument minimum")
	ErrBelowMinNotional  = errors.New("notional below instrument minimum")
)

// ExchangeError is a non-zero business code returned by the exchange API.
// Msg preserves the exchange's message verbatim for operator diagnosis.
type ExchangeError struct {
	Code string
	Msg  string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %s: %s", e.Code, e.Msg)
}

// AsExchangeError unwraps err to an ExchangeError if one is in the chain.
func AsExchangeError(err error) (*ExchangeError, bool) {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
