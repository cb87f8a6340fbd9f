package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderType distinguishes limit from market orders.
type OrderType string

const (
	OrderLimit  OrderType = "Limit"
	OrderMarket OrderType = "Market"
)

// Order is a fully sized trading instruction ready for broker execution.
// Created exactly once per admissible signal by a position sizer; the
// orchestrator stamps Exchange/Currency before validation and nothing
// mutates it after publish.
type Order struct {
	ID           uuid.UUID `json:"id"`
	AccountAlias string    `json:"account_alias"`
	Ticker       string    `json:"ticker"`
	Exchange     string    `json:"exchange"`
	Currency     Currency  `json:"currency"`
	Action       Action    `json:"action"`
	Type         OrderType `json:"type"`
	Qty          int64     `json:"qty"`
	Price        float64   `json:"price,omitempty"` // limit price; advisory for market orders
	Timestamp    time.Time `json:"timestamp"`
	Reason       string    `json:"reason,omitempty"` // "Manual", "Schedule", or "Webhook:{strategy}"
}

// NewOrder stamps a fresh id and UTC timestamp.
func NewOrder(alias, ticker string, action Action, typ OrderType, qty int64, price float64) *Order {
	return &Order{
		ID:           uuid.New(),
		AccountAlias: alias,
		Ticker:       ticker,
		Action:       action,
		Type:         typ,
		Qty:          qty,
		Price:        price,
		Timestamp:    time.Now().UTC(),
	}
}

// OrderResult is the terminal outcome of a placement attempt.
type OrderResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	OrderID       string `json:"order_id,omitempty"`        // internal order id
	BrokerOrderID string `json:"broker_order_id,omitempty"` // broker-assigned id
}

// OrderSuccess builds a successful result.
func OrderSuccess(orderID, brokerOrderID, message string) *OrderResult {
	return &OrderResult{Success: true, Message: message, OrderID: orderID, BrokerOrderID: brokerOrderID}
}

// OrderFailure builds a failed result.
func OrderFailure(orderID, message string) *OrderResult {
	return &OrderResult{Success: false, Message: message, OrderID: orderID}
}
