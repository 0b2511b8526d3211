package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Company struct {
	ID               uint         `json:"id" gorm:"primaryKey"`
	Name             string       `json:"name" gorm:"size:100;uniqueIndex;not null"`
	ShortDescription string       `json:"short_description" gorm:"size:255"`
	Website          string       `json:"website" gorm:"size:200"`
	TokenDetailID    *uint        `json:"-" gorm:"uniqueIndex"`
	TokenDetail      *TokenDetail `json:"token_detail" gorm:"foreignKey:TokenDetailID;constraint:OnDelete:RESTRICT"`
	CreatedAt        time.Time    `json:"created"`
	UpdatedAt        time.Time    `json:"updated"`
}

// TokenDetail describes a listed token. Contract addresses are stored
// lowercased.
type TokenDetail struct {
	ID                       uint                `json:"id" gorm:"primaryKey"`
	TokenCode                string              `json:"token_code" gorm:"size:10;uniqueIndex;not null"`
	TokenName                string              `json:"token_name" gorm:"size:60"`
	CrowdSaleContractAddress *string             `json:"crowd_sale_contract_address" gorm:"size:100;index"`
	TokenAddress             *string             `json:"token_address" gorm:"size:100;index"`
	Decimals                 int                 `json:"decimals"`
	Price                    decimal.NullDecimal `json:"price" gorm:"type:decimal(36,18)"`
	StartDatetime            *time.Time          `json:"start_datetime"`
	EndDatetime              *time.Time          `json:"end_datetime"`
	IsFinished               bool                `json:"is_finished"`
	CreatedAt                time.Time           `json:"created"`
	UpdatedAt                time.Time           `json:"updated"`
}

type ListTokenRequest struct {
	CompanyName              string           `json:"company_name" validate:"required,max=100"`
	ShortDescription         string           `json:"short_description" validate:"max=255"`
	Website                  string           `json:"website" validate:"omitempty,url"`
	TokenCode                string           `json:"token_code" validate:"required,alphanum,max=10"`
	TokenName                string           `json:"token_name" validate:"max=60"`
	CrowdSaleContractAddress string           `json:"crowd_sale_contract_address" validate:"omitempty,eth_addr"`
	TokenAddress             string           `json:"token_address" validate:"omitempty,eth_addr"`
	Decimals                 int              `json:"decimals" validate:"min=0,max=36"`
	Price                    *decimal.Decimal `json:"price"`
	StartDatetime            *time.Time       `json:"start_datetime"`
	EndDatetime              *time.Time       `json:"end_datetime"`
}
