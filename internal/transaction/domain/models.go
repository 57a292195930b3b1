// Package domain contains the payment transaction ledger model. The ledger
// is the audit trail behind every subscription transition: evidence, not
// authority. It never mutates subscriptions or credits on its own.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionStatus is the lifecycle of a ledger row.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusApproved  TransactionStatus = "approved"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// ProviderMercadoPago is the single recurring-payment processor Wearly
// settles through.
const ProviderMercadoPago = "mercadopago"

// Transaction records one attempted billing event. Exactly one row exists
// per (provider, provider_transaction_id); repeated deliveries of the same
// event update the row in place and rows are never deleted.
type Transaction struct {
	ID                    snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID                snowflake.ID      `json:"user_id" gorm:"not null;index"`
	Provider              string            `json:"provider" gorm:"type:text;not null;uniqueIndex:uidx_payment_tx_provider_txid"`
	ProviderTransactionID string            `json:"provider_transaction_id" gorm:"type:text;not null;uniqueIndex:uidx_payment_tx_provider_txid"`
	Amount                float64           `json:"amount" gorm:"not null"`
	Currency              string            `json:"currency" gorm:"type:text;not null"`
	Status                TransactionStatus `json:"status" gorm:"type:text;not null"`
	Metadata              datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt             time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "payment_transactions" }
