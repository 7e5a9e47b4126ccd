package amqp

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionUpdated EventType = "transaction.updated"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventAccountCreated     EventType = "account.created"
	EventAccountUpdated     EventType = "account.updated"
	EventAccountDeleted     EventType = "account.deleted"
	EventBalanceAdjusted    EventType = "balance.adjusted"
	EventRulesApplied       EventType = "rules.applied"
)

// LedgerEvent is a lightweight notification about a committed write.
// Consumers re-read state from the store; the event only names what changed.
type LedgerEvent struct {
	Type          EventType `json:"type"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountIDs    []string  `json:"account_ids,omitempty"`
	RuleID        string    `json:"rule_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time
func NewLedgerEvent(typ EventType, transactionID string, accountIDs ...string) *LedgerEvent {
	return &LedgerEvent{
		Type:          typ,
		TransactionID: transactionID,
		AccountIDs:    accountIDs,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
