package repository

import (
	"time"

	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/pkg/logger"
	"gorm.io/gorm"
)

// Filterable credential attributes.
const (
	CredentialFieldStatus           FilterField = "verification_status"
	CredentialFieldType             FilterField = "credential_type"
	CredentialFieldBusinessID       FilterField = "business_id"
	CredentialFieldNumber           FilterField = "credential_number"
	CredentialFieldIssuingAuthority FilterField = "issuing_authority"
)

// CredentialCollection is the verification queue's view of business_credentials.
var CredentialCollection = Collection{
	Name:  "business_credentials",
	Model: &model.Credential{},
	Columns: map[FilterField]string{
		CredentialFieldStatus:           "business_credentials.verification_status",
		CredentialFieldType:             "business_credentials.credential_type",
		CredentialFieldBusinessID:       "business_credentials.business_id",
		CredentialFieldNumber:           "business_credentials.credential_number",
		CredentialFieldIssuingAuthority: "business_credentials.issuing_authority",
	},
	TextFields:      []FilterField{CredentialFieldNumber, CredentialFieldIssuingAuthority},
	CreatedAtColumn: "business_credentials.created_at",
	IDColumn:        "business_credentials.id",
	DefaultPageSize: 10,
}

// Decision is the review stamp written onto a credential.
type Decision struct {
	Status     model.VerificationStatus
	VerifiedAt time.Time
	VerifiedBy string
}

type CredentialRepository interface {
	Create(credential *model.Credential) error
	FindByID(id string) (*model.Credential, error)
	List(query ListQuery) (*Page[model.Credential], error)
	CountByStatus() (map[model.VerificationStatus]int64, error)
	// ApplyDecision writes d only while the stored status still equals
	// expected. It reports false when the guard did not match.
	ApplyDecision(id string, expected model.VerificationStatus, d Decision) (bool, error)
	FindVerifiedWithUnsyncedBusiness(limit int) ([]model.Credential, error)
	FindExpiredVerified(now time.Time) ([]model.Credential, error)
}

type credentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func withBusinessSummary(db *gorm.DB) *gorm.DB {
	return db.Preload("Business")
}

func (r *credentialRepository) Create(credential *model.Credential) error {
	logger.Debug("Creating credential in database", map[string]interface{}{
		"business_id":     credential.BusinessID,
		"credential_type": credential.CredentialType,
	})

	if err := r.db.Create(credential).Error; err != nil {
		logger.Error("Failed to create credential in database", err, map[string]interface{}{
			"business_id": credential.BusinessID,
		})
		return err
	}

	logger.Debug("Credential created in database", map[string]interface{}{
		"credential_id": credential.ID,
		"business_id":   credential.BusinessID,
	})
	return nil
}

func (r *credentialRepository) FindByID(id string) (*model.Credential, error) {
	logger.Debug("Finding credential by ID", map[string]interface{}{
		"credential_id": id,
	})

	var credential model.Credential
	if err := r.db.Scopes(withBusinessSummary).Where("id = ?", id).First(&credential).Error; err != nil {
		return nil, err
	}
	return &credential, nil
}

func (r *credentialRepository) List(query ListQuery) (*Page[model.Credential], error) {
	logger.Debug("Listing credentials", map[string]interface{}{
		"filters":   len(query.Filters),
		"search":    query.Search,
		"page":      query.Page,
		"page_size": query.PageSize,
	})

	page, err := ListPage[model.Credential](r.db, CredentialCollection, query, withBusinessSummary)
	if err != nil {
		logger.Error("Failed to list credentials", err, map[string]interface{}{
			"page": query.Page,
		})
		return nil, err
	}

	logger.Debug("Credentials listed", map[string]interface{}{
		"count":       len(page.Items),
		"total_count": page.TotalCount,
	})
	return page, nil
}

func (r *credentialRepository) CountByStatus() (map[model.VerificationStatus]int64, error) {
	type statusCount struct {
		VerificationStatus model.VerificationStatus
		Count              int64
	}

	var rows []statusCount
	if err := r.db.Model(&model.Credential{}).
		Select("verification_status, COUNT(*) as count").
		Group("verification_status").
		Scan(&rows).Error; err != nil {
		logger.Error("Failed to count credentials by status", err)
		return nil, err
	}

	counts := map[model.VerificationStatus]int64{
		model.VerificationStatusPending:  0,
		model.VerificationStatusVerified: 0,
		model.VerificationStatusRejected: 0,
	}
	for _, row := range rows {
		counts[row.VerificationStatus] = row.Count
	}
	return counts, nil
}

func (r *credentialRepository) ApplyDecision(id string, expected model.VerificationStatus, d Decision) (bool, error) {
	logger.Debug("Applying credential decision", map[string]interface{}{
		"credential_id": id,
		"expected":      expected,
		"status":        d.Status,
	})

	result := r.db.Model(&model.Credential{}).
		Where("id = ? AND verification_status = ?", id, expected).
		Updates(map[string]interface{}{
			"verification_status": d.Status,
			"verified_at":         d.VerifiedAt,
			"verified_by":         d.VerifiedBy,
		})
	if result.Error != nil {
		logger.Error("Failed to apply credential decision", result.Error, map[string]interface{}{
			"credential_id": id,
		})
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// FindVerifiedWithUnsyncedBusiness returns verified credentials whose owning
// business is still unverified, oldest decision first.
func (r *credentialRepository) FindVerifiedWithUnsyncedBusiness(limit int) ([]model.Credential, error) {
	var credentials []model.Credential
	query := r.db.Model(&model.Credential{}).
		Joins("JOIN businesses ON businesses.id = business_credentials.business_id").
		Where("business_credentials.verification_status = ?", model.VerificationStatusVerified).
		Where("businesses.is_verified = ?", false).
		Order("business_credentials.verified_at ASC").
		Order("business_credentials.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&credentials).Error; err != nil {
		logger.Error("Failed to find unsynced verified credentials", err)
		return nil, err
	}
	return credentials, nil
}

func (r *credentialRepository) FindExpiredVerified(now time.Time) ([]model.Credential, error) {
	var credentials []model.Credential
	if err := r.db.Scopes(withBusinessSummary).
		Where("verification_status = ?", model.VerificationStatusVerified).
		Where("expiry_date IS NOT NULL AND expiry_date < ?", now).
		Order("expiry_date ASC").
		Find(&credentials).Error; err != nil {
		logger.Error("Failed to find expired credentials", err)
		return nil, err
	}
	return credentials, nil
}
