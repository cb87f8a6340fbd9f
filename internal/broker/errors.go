// Package broker implements the request/response protocol the router speaks
// to the broker gateway over the pub/sub bus: per-call correlation ids,
// ephemeral reply channels subscribed before the request is published, and
// timeout-bound completion.
package broker

import (
	"errors"
	"fmt"
)

// ErrTimeout marks a call abandoned because the gateway never answered
// within the deadline. Distinct from GatewayError so callers can tell
// "broker never answered" from "broker said no".
var ErrTimeout = errors.New("broker: response timeout")

// GatewayError is an application-level failure reported by the gateway.
type GatewayError struct {
	Op      string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("broker: %s failed: %s", e.Op, e.Message)
}

// IsTimeout reports whether err is the RPC deadline failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
