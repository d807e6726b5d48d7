package domain

import "time"

// TransactionType classifies a simulated backend transaction.
type TransactionType string

const (
	TxKYC         TransactionType = "KYC"
	TxOrder       TransactionType = "ORDER"
	TxMatch       TransactionType = "MATCH"
	TxTokenize    TransactionType = "TOKENIZE"
	TxSettlement  TransactionType = "SETTLEMENT"
	TxPriceUpdate TransactionType = "PRICE_UPDATE"
	TxUPIMandate  TransactionType = "UPI_MANDATE"
	TxFunding     TransactionType = "FUNDING"
)

// TransactionStatus is the lifecycle state of a transaction. PENDING is the
// only non-terminal state.
type TransactionStatus string

const (
	TxPending TransactionStatus = "PENDING"
	TxSuccess TransactionStatus = "SUCCESS"
	TxFailed  TransactionStatus = "FAILED"
)

// Terminal reports whether s is SUCCESS or FAILED.
func (s TransactionStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed
}

// TransactionEvent is one entry of the transaction log.
type TransactionEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      TransactionType   `json:"type"`
	Status    TransactionStatus `json:"status"`
	Details   string            `json:"details"`
	DLTHash   string            `json:"dltHash,omitempty"`
}

// AnalyticsLog is one line of the system analytics feed.
type AnalyticsLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Message   string    `json:"message"`
}
