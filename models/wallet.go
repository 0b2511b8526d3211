package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	InvestorID    uint          `json:"investor_id" gorm:"uniqueIndex;not null"`
	WalletAddress *string       `json:"wallet_address" gorm:"size:100;uniqueIndex"`
	CreationBlock *uint64       `json:"creation_block"`
	Balances      []Balance     `json:"balances" gorm:"foreignKey:WalletID;constraint:OnDelete:CASCADE"`
	Transactions  []Transaction `json:"-" gorm:"foreignKey:WalletID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time     `json:"created"`
	UpdatedAt     time.Time     `json:"updated"`
}

// Balance is the last balance of one token reported by the client. The
// server never derives it from transactions.
type Balance struct {
	ID        uint            `json:"-" gorm:"primaryKey"`
	WalletID  uint            `json:"-" gorm:"not null;uniqueIndex:idx_balance_wallet_token"`
	TokenID   uint            `json:"-" gorm:"not null;uniqueIndex:idx_balance_wallet_token"`
	TokenCode string          `json:"token_code" gorm:"size:10;not null;index"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(36,18);not null"`
	UpdatedAt time.Time       `json:"updated"`
}

type TransactionType string

const (
	TxSend    TransactionType = "SEND"
	TxReceive TransactionType = "RECEIVE"
)

type AddressType string

const (
	AddressMyWallet    AddressType = "MY_WALLET"
	AddressICOContract AddressType = "ICO_CONTRACT"
	AddressOther       AddressType = "OTHER"
)

type Transaction struct {
	ID              uint            `json:"id" gorm:"primaryKey"`
	WalletID        uint            `json:"-" gorm:"not null;index"`
	Type            TransactionType `json:"type" gorm:"size:7;not null"`
	Datetime        time.Time       `json:"datetime" gorm:"not null;index"`
	FromAddress     string          `json:"from_address" gorm:"size:100;not null"`
	FromAddressType AddressType     `json:"from_address_type" gorm:"size:12;not null"`
	FromAddressNote string          `json:"from_address_note" gorm:"size:120"`
	ToAddress       string          `json:"to_address" gorm:"size:100;not null"`
	ToAddressType   AddressType     `json:"to_address_type" gorm:"size:12;not null"`
	ToAddressNote   string          `json:"to_address_note" gorm:"size:120"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:decimal(36,18);not null"`
	TokenCode       string          `json:"token_code" gorm:"size:10;not null"`
	TxHash          *string         `json:"tx_hash" gorm:"size:100;uniqueIndex"`
	CreatedAt       time.Time       `json:"created"`
}

type BalanceUpdateRequest struct {
	NewBalance map[string]decimal.Decimal `json:"new_balance" validate:"required,min=1"`
}

type TransactionRequest struct {
	Type        TransactionType `json:"type" validate:"required,oneof=SEND RECEIVE"`
	Datetime    time.Time       `json:"datetime" validate:"required"`
	FromAddress string          `json:"from_address" validate:"required"`
	ToAddress   string          `json:"to_address" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	TokenCode   string          `json:"token_code" validate:"required,max=10"`
	TxHash      *string         `json:"tx_hash" validate:"omitempty,max=100"`
}

type TransactionBatchRequest struct {
	Transactions []TransactionRequest `json:"transactions" validate:"required,min=1,dive"`
}
