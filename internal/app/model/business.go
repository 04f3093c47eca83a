package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business 마켓플레이스 입점 업체
// is_verified 는 자격증명 심사 승인 경로에서만 true 로 설정됨
type Business struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string    `gorm:"type:varchar(200);not null;index" json:"name"` // 업체명
	Email       *string   `gorm:"type:varchar(255)" json:"email"`               // 대표 이메일
	Phone       *string   `gorm:"type:varchar(30)" json:"phone,omitempty"`      // 연락처
	IsVerified  bool      `gorm:"default:false;not null;index" json:"is_verified"`
	Rating      float64   `gorm:"default:0" json:"rating"`       // 평균 평점
	ReviewCount int       `gorm:"default:0" json:"review_count"` // 리뷰 수
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Credentials []Credential `gorm:"foreignKey:BusinessID" json:"credentials,omitempty"`
}

func (Business) TableName() string {
	return "businesses"
}

// BeforeCreate assigns a UUID when the caller did not provide an ID.
func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// BusinessSummary is the display-only projection joined onto credentials in
// the verification queue. It carries no consistency obligation.
type BusinessSummary struct {
	ID    string  `gorm:"primaryKey" json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email"`
}

func (BusinessSummary) TableName() string {
	return "businesses"
}
