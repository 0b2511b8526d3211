package models

import (
	"time"
)

type Role string

const (
	RoleInvestor Role = "investor"
	RoleCompany  Role = "company"
	RoleAnalyst  Role = "analyst"
)

// VerificationLevel encodes the cumulative trust milestones of an investor.
// It only moves up, except when an ID verification is denied.
type VerificationLevel int

const (
	LevelNotVerified   VerificationLevel = -1
	LevelEmailVerified VerificationLevel = 0
	LevelPhoneVerified VerificationLevel = 1
	LevelWalletBound   VerificationLevel = 2
	LevelIDSubmitted   VerificationLevel = 3
	LevelIDVerified    VerificationLevel = 4
	LevelAIVProcessing VerificationLevel = 5
	LevelAIVVerified   VerificationLevel = 6
)

func (l VerificationLevel) String() string {
	switch l {
	case LevelNotVerified:
		return "not_verified"
	case LevelEmailVerified:
		return "email_verified"
	case LevelPhoneVerified:
		return "phone_verified"
	case LevelWalletBound:
		return "wallet_bound"
	case LevelIDSubmitted:
		return "id_submitted"
	case LevelIDVerified:
		return "id_verified"
	case LevelAIVProcessing:
		return "aiv_processing"
	case LevelAIVVerified:
		return "aiv_verified"
	}
	return "unknown"
}

type User struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	Email            string     `json:"email" gorm:"uniqueIndex;not null"`
	PhoneCountryCode *string    `json:"phone_country_code" gorm:"size:8;uniqueIndex:idx_users_phone"`
	Phone            *string    `json:"phone" gorm:"size:30;uniqueIndex:idx_users_phone"`
	Password         string     `json:"-" gorm:"not null"`
	LastLogin        *time.Time `json:"last_login"`
	LastLoginIP      string     `json:"last_login_ip" gorm:"size:45"`
	// TOTPEnabled forces the code step on every login, known IP or not.
	TOTPEnabled      bool       `json:"totp_enabled" gorm:"column:totp_enabled"`
	Role             Role       `json:"role" gorm:"size:16;not null;index"`
	IsStaff          bool       `json:"is_staff"`
	IsActive         bool       `json:"is_active" gorm:"not null"`
	CreatedAt        time.Time  `json:"created"`
	UpdatedAt        time.Time  `json:"updated"`
}

func (u *User) IsInvestor() bool    { return u.Role == RoleInvestor }
func (u *User) IsCompanyUser() bool { return u.Role == RoleCompany }
func (u *User) IsAnalyst() bool     { return u.Role == RoleAnalyst }

// FullPhone returns the phone number in E.164 form, or "" when none is on file.
func (u *User) FullPhone() string {
	if u.Phone == nil || u.PhoneCountryCode == nil {
		return ""
	}
	return *u.PhoneCountryCode + *u.Phone
}

type InvestorUser struct {
	ID          uint                 `json:"id" gorm:"primaryKey"`
	UserID      uint                 `json:"-" gorm:"uniqueIndex;not null"`
	User        User                 `json:"user" gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	FirstName   string               `json:"first_name" gorm:"size:30"`
	LastName    string               `json:"last_name" gorm:"size:50"`
	Birthday    *time.Time           `json:"birthday"`
	Nationality string               `json:"nationality" gorm:"size:60"`
	Address     *InvestorUserAddress `json:"address" gorm:"foreignKey:InvestorID;constraint:OnDelete:RESTRICT"`

	VerificationLevel VerificationLevel `json:"verification_level" gorm:"not null"`

	// Latest submissions; older ones stay in their own tables.
	IDVerificationID                 *uint `json:"id_verification"`
	AccreditedInvestorVerificationID *uint `json:"accredited_investor_verification"`

	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

func (i *InvestorUser) FullName() string {
	return i.FirstName + " " + i.LastName
}

type InvestorUserAddress struct {
	ID         uint   `json:"-" gorm:"primaryKey"`
	InvestorID uint   `json:"-" gorm:"uniqueIndex;not null"`
	Address1   string `json:"address1" gorm:"size:200"`
	Address2   string `json:"address2" gorm:"size:200"`
	City       string `json:"city" gorm:"size:100"`
	State      string `json:"state" gorm:"size:100"`
	Zipcode    string `json:"zipcode" gorm:"size:20"`
	Country    string `json:"country" gorm:"size:60"`
}

type CompanyUser struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"-" gorm:"uniqueIndex;not null"`
	User      User      `json:"user" gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	CompanyID *uint     `json:"company" gorm:"uniqueIndex"`
	Company   *Company  `json:"-" gorm:"foreignKey:CompanyID;constraint:OnDelete:RESTRICT"`
	CreatedAt time.Time `json:"created"`
	UpdatedAt time.Time `json:"updated"`
}

type AnalystType int

const (
	AnalystProfessional AnalystType = 0
	AnalystRegular      AnalystType = 1
)

type AnalystUser struct {
	ID          uint        `json:"id" gorm:"primaryKey"`
	UserID      uint        `json:"-" gorm:"uniqueIndex;not null"`
	User        User        `json:"user" gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	FirstName   string      `json:"first_name" gorm:"size:30"`
	LastName    string      `json:"last_name" gorm:"size:50"`
	AnalystType AnalystType `json:"analyst_type" gorm:"not null"`
	CreatedAt   time.Time   `json:"created"`
	UpdatedAt   time.Time   `json:"updated"`
}

type SignUpRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=30"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	AdminCode string `json:"admin_code,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerificationCodeRequest struct {
	VerificationCode string `json:"verification_code" validate:"required,len=6,numeric"`
}

type PhoneRequest struct {
	Country string `json:"phone_country" validate:"required,country"`
	Phone   string `json:"phone" validate:"required,min=4,max=20"`
}

type ResendRequest struct {
	Channel string `json:"channel" validate:"required,oneof=email phone"`
}

type WalletAddressRequest struct {
	WalletAddress string  `json:"wallet_address" validate:"required,eth_addr"`
	CreationBlock *uint64 `json:"creation_block"`
}

type AddressRequest struct {
	Address1 string `json:"address1" validate:"required,max=200"`
	Address2 string `json:"address2" validate:"max=200"`
	City     string `json:"city" validate:"required,max=100"`
	State    string `json:"state" validate:"max=100"`
	Zipcode  string `json:"zipcode" validate:"required,max=20"`
	Country  string `json:"country" validate:"required,country"`
}

type ProfileUpdateRequest struct {
	FirstName   *string         `json:"first_name" validate:"omitempty,max=30"`
	LastName    *string         `json:"last_name" validate:"omitempty,max=50"`
	Birthday    *string         `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Nationality *string         `json:"nationality" validate:"omitempty,country"`
	Address     *AddressRequest `json:"address"`
	TOTPEnabled *bool           `json:"totp_enabled"`
}

type CreateStaffUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	Role        Role   `json:"role" validate:"required,oneof=company analyst"`
	CompanyID   *uint  `json:"company_id" validate:"required_if=Role company"`
	FirstName   string `json:"first_name" validate:"max=30"`
	LastName    string `json:"last_name" validate:"max=50"`
	AnalystType int    `json:"analyst_type" validate:"oneof=0 1"`
}

type LoginVerifyRequest struct {
	VerificationCode string `json:"verification_code" validate:"required,len=6,numeric"`
	// SessionID is optional for browser clients, which send the session cookie.
	SessionID string `json:"session_id"`
}
