package model

import "github.com/google/uuid"

// BrokerRequestType enumerates the logical broker operations carried over
// the request channel.
type BrokerRequestType string

const (
	ReqPing         BrokerRequestType = "Ping"
	ReqGetPrice     BrokerRequestType = "GetPrice"
	ReqGetDeposit   BrokerRequestType = "GetDeposit"
	ReqGetPositions BrokerRequestType = "GetPositions"
	ReqPlaceOrder   BrokerRequestType = "PlaceOrder"
	ReqGetAccounts  BrokerRequestType = "GetAccounts"
)

// BrokerRequest is the RPC envelope published on the shared request channel.
// Transient: created per call, discarded once the call resolves or times out.
type BrokerRequest struct {
	ID              uuid.UUID         `json:"id"`
	Type            BrokerRequestType `json:"type"`
	Account         string            `json:"account"`
	Payload         string            `json:"payload,omitempty"` // operation-specific serialized argument
	ResponseChannel string            `json:"response_channel,omitempty"`
	ForceRefresh    bool              `json:"force_refresh,omitempty"`
}

// BrokerResponse is the correlated reply delivered on the request's private
// response channel.
type BrokerResponse struct {
	RequestID uuid.UUID `json:"request_id"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}
