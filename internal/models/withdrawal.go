package models

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

const WithdrawalMethodBinance = "binance"

// Withdrawal is an append-only payout request. Field names match the
// records already persisted by the mini app.
type Withdrawal struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	Amount       int64            `json:"amount"`
	Method       string           `json:"method"`
	BinanceEmail string           `json:"binanceEmail"`
	Status       WithdrawalStatus `json:"status"`
	CreatedAt    time.Time        `json:"createdAt"`
	UserName     string           `json:"userName"`
}
