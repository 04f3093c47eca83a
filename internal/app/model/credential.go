package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CredentialType string // 자격증명 종류

const (
	CredentialTypeLicense       CredentialType = "license"       // 영업/사업 면허
	CredentialTypeInsurance     CredentialType = "insurance"     // 보험 증서
	CredentialTypeCertification CredentialType = "certification" // 자격/인증서
	CredentialTypeOther         CredentialType = "other"
)

func (t CredentialType) IsValid() bool {
	switch t {
	case CredentialTypeLicense, CredentialTypeInsurance, CredentialTypeCertification, CredentialTypeOther:
		return true
	}
	return false
}

type VerificationStatus string // 심사 상태

const (
	VerificationStatusPending  VerificationStatus = "pending"  // 검토 대기
	VerificationStatusVerified VerificationStatus = "verified" // 승인됨
	VerificationStatusRejected VerificationStatus = "rejected" // 반려됨
)

func (s VerificationStatus) IsValid() bool {
	return s == VerificationStatusPending || s.IsDecision()
}

// IsDecision reports whether s is a terminal review outcome.
func (s VerificationStatus) IsDecision() bool {
	return s == VerificationStatusVerified || s == VerificationStatusRejected
}

var (
	ErrInvalidCredentialType     = errors.New("invalid credential type")
	ErrInvalidVerificationStatus = errors.New("invalid verification status")
	ErrPendingWithReview         = errors.New("pending credential must not carry review stamps")
	ErrDecisionWithoutReview     = errors.New("decided credential requires verified_at and verified_by")
	ErrReviewedBeforeSubmission  = errors.New("verified_at precedes created_at")
	ErrMissingBusiness           = errors.New("credential requires a business")
)

// Credential 업체가 제출한 자격증명 서류 (business_credentials)
type Credential struct {
	ID         string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	BusinessID string           `gorm:"type:varchar(36);not null;index" json:"business_id"`
	Business   *BusinessSummary `gorm:"foreignKey:BusinessID" json:"business,omitempty"`

	CredentialType   CredentialType `gorm:"type:varchar(30);not null;index" json:"credential_type"`
	CredentialNumber *string        `gorm:"type:varchar(100)" json:"credential_number"`  // 증서 번호
	IssuingAuthority *string        `gorm:"type:varchar(200)" json:"issuing_authority"`  // 발급 기관
	IssueDate        *time.Time     `json:"issue_date"`                                  // 발급일
	ExpiryDate       *time.Time     `json:"expiry_date"`                                 // 만료일 (참고용)
	DocumentURL      *string        `gorm:"type:text" json:"document_url"`               // 외부 저장소 문서 참조

	VerificationStatus VerificationStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"verification_status"`
	VerifiedAt         *time.Time         `json:"verified_at"`
	VerifiedBy         *string            `gorm:"type:varchar(64)" json:"verified_by"` // 심사자 ID

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Credential) TableName() string {
	return "business_credentials"
}

// BeforeCreate assigns an ID and defaults new submissions to pending.
func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.VerificationStatus == "" {
		c.VerificationStatus = VerificationStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return c.Validate()
}

// Validate checks the review-stamp invariants of the credential.
func (c *Credential) Validate() error {
	if c.BusinessID == "" {
		return ErrMissingBusiness
	}
	if !c.CredentialType.IsValid() {
		return ErrInvalidCredentialType
	}
	if !c.VerificationStatus.IsValid() {
		return ErrInvalidVerificationStatus
	}

	if c.VerificationStatus == VerificationStatusPending {
		if c.VerifiedAt != nil || c.VerifiedBy != nil {
			return ErrPendingWithReview
		}
		return nil
	}

	if c.VerifiedAt == nil || c.VerifiedBy == nil || *c.VerifiedBy == "" {
		return ErrDecisionWithoutReview
	}
	if !c.CreatedAt.IsZero() && c.VerifiedAt.Before(c.CreatedAt) {
		return ErrReviewedBeforeSubmission
	}
	return nil
}

// IsExpired reports whether the expiry date is strictly before now.
// Expiry is informational and never changes the verification status.
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiryDate != nil && c.ExpiryDate.Before(now)
}

// IsPending reports whether the credential still awaits review.
func (c *Credential) IsPending() bool {
	return c.VerificationStatus == VerificationStatusPending
}
