// Package sizing turns admissible signals into concrete order quantities.
// A Sizer is a pure policy over (signal, account snapshot): it either
// produces an order or declines with nil. Declining is an expected outcome
// (insufficient funds, dust quantity), never an error.
package sizing

import "trade-routerv1/internal/model"

// Sizer is the position-sizing policy contract.
type Sizer interface {
	// CalculatePositionSize returns the sized order, or nil to decline.
	CalculatePositionSize(signal *model.Signal, account *model.Account) *model.Order

	// ValidateOrder runs the policy's final checks on a stamped order.
	// On failure the second return carries the reason.
	ValidateOrder(order *model.Order, account *model.Account) (bool, string)
}

// clampStrength maps signal strength to a [0,1] scaling factor.
func clampStrength(strength int) float64 {
	if strength < 0 {
		return 0
	}
	if strength > 100 {
		return 1
	}
	return float64(strength) / 100
}
