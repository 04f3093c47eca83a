package repository

import (
	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/pkg/logger"
	"gorm.io/gorm"
)

type BusinessRepository interface {
	Create(business *model.Business) error
	FindByID(id string) (*model.Business, error)
	// MarkVerified sets is_verified = true. Repeating it is a no-op on the
	// flag; a missing business yields gorm.ErrRecordNotFound.
	MarkVerified(id string) error
	FindVerifiedWithoutVerifiedCredential() ([]model.Business, error)
}

type businessRepository struct {
	db *gorm.DB
}

func NewBusinessRepository(db *gorm.DB) BusinessRepository {
	return &businessRepository{db: db}
}

func (r *businessRepository) Create(business *model.Business) error {
	logger.Debug("Creating business in database", map[string]interface{}{
		"name": business.Name,
	})

	if err := r.db.Create(business).Error; err != nil {
		logger.Error("Failed to create business in database", err, map[string]interface{}{
			"name": business.Name,
		})
		return err
	}
	return nil
}

func (r *businessRepository) FindByID(id string) (*model.Business, error) {
	var business model.Business
	if err := r.db.Where("id = ?", id).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func (r *businessRepository) MarkVerified(id string) error {
	logger.Debug("Marking business verified", map[string]interface{}{
		"business_id": id,
	})

	result := r.db.Model(&model.Business{}).
		Where("id = ?", id).
		Update("is_verified", true)
	if result.Error != nil {
		logger.Error("Failed to mark business verified", result.Error, map[string]interface{}{
			"business_id": id,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindVerifiedWithoutVerifiedCredential returns businesses whose flag is no
// longer backed by any verified credential.
func (r *businessRepository) FindVerifiedWithoutVerifiedCredential() ([]model.Business, error) {
	var businesses []model.Business
	if err := r.db.
		Where("is_verified = ?", true).
		Where(
			"NOT EXISTS (SELECT 1 FROM business_credentials c WHERE c.business_id = businesses.id AND c.verification_status = ?)",
			model.VerificationStatusVerified,
		).
		Order("id ASC").
		Find(&businesses).Error; err != nil {
		logger.Error("Failed to find unbacked verified businesses", err)
		return nil, err
	}
	return businesses, nil
}
