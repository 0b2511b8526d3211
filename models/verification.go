package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	CodeLength = 6
	CodeTTL    = 5 * time.Minute
)

// VerificationCode is the single live one-time code of a user. It is
// reused for email, phone and login second-factor checks.
type VerificationCode struct {
	ID         uint      `json:"-" gorm:"primaryKey"`
	UserID     uint      `json:"-" gorm:"uniqueIndex;not null"`
	Code       string    `json:"-" gorm:"size:6;not null"`
	ExpireTime time.Time `json:"expire_time" gorm:"not null"`
	UpdatedAt  time.Time `json:"-"`
}

func NewVerificationCode(userID uint, now time.Time) (*VerificationCode, error) {
	vc := &VerificationCode{UserID: userID}
	if err := vc.Refresh(now); err != nil {
		return nil, err
	}
	return vc, nil
}

// Refresh draws a new code and restarts the validity window. Callers persist
// the result.
func (c *VerificationCode) Refresh(now time.Time) error {
	code, err := randomDigits(CodeLength)
	if err != nil {
		return err
	}
	c.Code = code
	c.ExpireTime = now.Add(CodeTTL)
	return nil
}

func (c *VerificationCode) Expire(now time.Time) {
	c.ExpireTime = now.Add(-time.Second)
}

func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpireTime)
}

// Check reports whether submitted matches a still valid code. It does not
// consume the code.
func (c *VerificationCode) Check(submitted string, now time.Time) bool {
	return !c.IsExpired(now) && submitted == c.Code
}

func randomDigits(n int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < n; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

type DocumentType string

const (
	DocDriverLicense DocumentType = "driver_license"
	DocPhotoID       DocumentType = "photo_id"
	DocPassport      DocumentType = "passport"
)

// Provider decision codes for an ID verification.
type ProviderState string

const (
	StatePending  ProviderState = ""
	StateAccepted ProviderState = "A"
	StateReview   ProviderState = "R"
	StateDenied   ProviderState = "D"
)

const (
	StageSubmitted      = 1
	StageSentToProvider = 4
)

// IDVerification holds one identity document submission. Image fields are
// encrypted at rest and emptied once the record is processed or handed off
// to the provider.
type IDVerification struct {
	ID         uint          `json:"id" gorm:"primaryKey"`
	InvestorID uint          `json:"investor_id" gorm:"index;not null"`
	DocType    DocumentType  `json:"official_id_type" gorm:"size:20;not null"`
	DocCountry string        `json:"nationality" gorm:"size:60"`
	FrontImage string        `json:"-" gorm:"type:text"`
	BackImage  string        `json:"-" gorm:"type:text"`
	Selfie     string        `json:"-" gorm:"type:text"`
	TID        string        `json:"tid" gorm:"size:64;uniqueIndex;not null"`
	Stage      int           `json:"stage" gorm:"not null;index"`
	State      ProviderState `json:"state" gorm:"size:1"`
	Processed  bool          `json:"processed" gorm:"not null;index"`
	Note       string        `json:"note" gorm:"type:text"`
	CreatedAt  time.Time     `json:"created"`
	UpdatedAt  time.Time     `json:"updated"`
}

func (v *IDVerification) ImagesScrubbed() bool {
	return v.FrontImage == "" && v.BackImage == "" && v.Selfie == ""
}

type AIVDocType string

const (
	AIVTaxReturn     AIVDocType = "tax_return"
	AIVBankStatement AIVDocType = "bank_statement"
)

type AIVDecision string

const (
	AIVPending  AIVDecision = "pending"
	AIVApproved AIVDecision = "approved"
	AIVRejected AIVDecision = "rejected"
)

// InvestorVerification is an accredited-investor evidence submission,
// reviewed manually by staff.
type InvestorVerification struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	InvestorID uint        `json:"investor_id" gorm:"index;not null"`
	DocType    AIVDocType  `json:"doc_type" gorm:"size:20;not null"`
	Document1  string      `json:"-" gorm:"type:text"`
	Document2  string      `json:"-" gorm:"type:text"`
	Decision   AIVDecision `json:"decision" gorm:"size:10;not null;index"`
	CreatedAt  time.Time   `json:"created"`
	UpdatedAt  time.Time   `json:"updated"`
}

type UploadIDRequest struct {
	OfficialIDType DocumentType `json:"official_id_type" validate:"required,oneof=driver_license photo_id passport"`
	Nationality    string       `json:"nationality" validate:"required,country"`
	Front          string       `json:"official_id_front_base64" validate:"required,base64"`
	Back           string       `json:"official_id_back_base64" validate:"omitempty,base64"`
	Selfie         string       `json:"user_holding_official_id_base64" validate:"required,base64"`
}

type UploadAIVRequest struct {
	DocType   AIVDocType `json:"doc_type" validate:"required,oneof=tax_return bank_statement"`
	Document1 string     `json:"doc1_base64" validate:"required,base64"`
	Document2 string     `json:"doc2_base64" validate:"omitempty,base64"`
}

type ReviewRequest struct {
	State ProviderState `json:"state" validate:"required,oneof=A R D"`
}

// IDDecisionRequest resolves a verification held for manual review.
type IDDecisionRequest struct {
	Approved bool `json:"approved"`
}

type AIVDecisionRequest struct {
	Approved bool `json:"approved"`
}
