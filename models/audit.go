package models

import (
	"time"
)

const (
	ActionSignUp         = "Sign up"
	ActionLogin          = "Log in"
	ActionLoginNeeds2FA  = "Log in needs 2FA"
	Action2FASuccessful  = "2FA successful"
	Action2FALocked      = "2FA locked after failed codes"
	ActionLogout         = "Log out"
	ActionEmailVerified  = "Email verified"
	ActionPhoneSubmitted = "Phone number submitted"
	ActionPhoneVerified  = "Phone verified"
	ActionWalletBound    = "Wallet address set"
	ActionIDSubmitted    = "ID submitted"
	ActionAIVSubmitted   = "Accredited investor documents submitted"
	ActionProfileUpdated = "Profile updated"
)

// UserLog is the append-only security audit trail of a user.
type UserLog struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	UserID   uint      `json:"user_id" gorm:"index;not null"`
	Action   string    `json:"action" gorm:"size:100;not null"`
	IP       string    `json:"ip" gorm:"size:45"`
	Device   string    `json:"device" gorm:"size:255"`
	Datetime time.Time `json:"datetime" gorm:"not null;index"`
}
