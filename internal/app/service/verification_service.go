package service

import (
	"errors"
	"strings"
	"time"

	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/internal/app/repository"
	"github.com/ikkim/marketplace-admin/internal/metrics"
	"github.com/ikkim/marketplace-admin/internal/websocket"
	"github.com/ikkim/marketplace-admin/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrCredentialNotFound    = errors.New("credential not found")
	ErrBusinessNotFound      = errors.New("business not found")
	ErrReviewerRequired      = errors.New("reviewer identity required")
	ErrInvalidOutcome        = errors.New("outcome must be verified or rejected")
	ErrAlreadyDecided        = errors.New("credential already decided with a different outcome")
	ErrDecisionConflict      = errors.New("credential status changed concurrently")
	ErrCredentialWriteFailed = errors.New("credential write failed")
	ErrBusinessSyncFailed    = errors.New("business sync failed")
	ErrCredentialNotVerified = errors.New("credential is not verified")
	ErrInvalidStatusFilter   = errors.New("invalid verification status filter")
)

// CredentialWriteError reports a failure before or during the credential
// write. Nothing was persisted, so the call is safe to retry.
type CredentialWriteError struct {
	Op           string
	CredentialID string
	Err          error
}

func (e *CredentialWriteError) Error() string {
	return "credential write failed (" + e.Op + " " + e.CredentialID + "): " + e.Err.Error()
}

func (e *CredentialWriteError) Unwrap() []error {
	return []error{ErrCredentialWriteFailed, e.Err}
}

// BusinessSyncError reports that the credential decision was persisted but the
// owning business could not be marked verified. Credential holds the stored
// credential; the business needs a re-sync.
type BusinessSyncError struct {
	CredentialID string
	BusinessID   string
	Credential   *model.Credential
	Err          error
}

func (e *BusinessSyncError) Error() string {
	return "business sync failed (business " + e.BusinessID + ", credential " + e.CredentialID + "): " + e.Err.Error()
}

func (e *BusinessSyncError) Unwrap() []error {
	return []error{ErrBusinessSyncFailed, e.Err}
}

// DecisionResult is the outcome of a successful Decide or SyncBusiness call.
type DecisionResult struct {
	Credential       *model.Credential
	BusinessVerified bool
	// Replayed is true when the credential already carried the outcome and
	// no credential write happened.
	Replayed bool
}

// CredentialListOptions is the reviewer-facing filter for the verification queue.
type CredentialListOptions struct {
	Status         string // "", "all" or a verification status
	CredentialType string
	BusinessID     string
	Search         string
	Page           int
}

type VerificationConfig struct {
	PageSize      int
	AllowRedecide bool
	Now           func() time.Time
	Hub           *websocket.Hub
	Metrics       *metrics.Metrics
}

type VerificationService interface {
	List(opts CredentialListOptions) (*repository.Page[model.Credential], error)
	GetCredential(id string) (*model.Credential, error)
	Decide(credentialID string, outcome model.VerificationStatus, reviewerID string) (*DecisionResult, error)
	SyncBusiness(credentialID string) (*DecisionResult, error)
	CountByStatus() (map[model.VerificationStatus]int64, error)
	IsExpired(credential *model.Credential) bool
	FindExpiredVerified() ([]model.Credential, error)
}

type verificationService struct {
	credentialRepo repository.CredentialRepository
	businessRepo   repository.BusinessRepository
	cfg            VerificationConfig
}

func NewVerificationService(
	credentialRepo repository.CredentialRepository,
	businessRepo repository.BusinessRepository,
	cfg VerificationConfig,
) VerificationService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = repository.CredentialCollection.DefaultPageSize
	}
	return &verificationService{
		credentialRepo: credentialRepo,
		businessRepo:   businessRepo,
		cfg:            cfg,
	}
}

func (s *verificationService) List(opts CredentialListOptions) (*repository.Page[model.Credential], error) {
	query := repository.ListQuery{
		Search:   opts.Search,
		Page:     opts.Page,
		PageSize: s.cfg.PageSize,
	}

	status := strings.TrimSpace(opts.Status)
	if status != "" && status != "all" {
		if !model.VerificationStatus(status).IsValid() {
			return nil, ErrInvalidStatusFilter
		}
		query.Filters = append(query.Filters, repository.FieldFilter{
			Field: repository.CredentialFieldStatus, Operator: repository.OpEquals, Value: status,
		})
	}
	if opts.CredentialType != "" {
		if !model.CredentialType(opts.CredentialType).IsValid() {
			return nil, model.ErrInvalidCredentialType
		}
		query.Filters = append(query.Filters, repository.FieldFilter{
			Field: repository.CredentialFieldType, Operator: repository.OpEquals, Value: opts.CredentialType,
		})
	}
	if opts.BusinessID != "" {
		query.Filters = append(query.Filters, repository.FieldFilter{
			Field: repository.CredentialFieldBusinessID, Operator: repository.OpEquals, Value: opts.BusinessID,
		})
	}

	started := time.Now()
	page, err := s.credentialRepo.List(query)
	s.cfg.Metrics.ObserveListLatency(repository.CredentialCollection.Name, time.Since(started))
	if err != nil {
		logger.Error("Failed to list credentials", err, map[string]interface{}{
			"status": status,
			"page":   opts.Page,
		})
		return nil, err
	}

	logger.Info("Verification queue listed", map[string]interface{}{
		"status":      status,
		"page":        page.Page,
		"count":       len(page.Items),
		"total_count": page.TotalCount,
	})
	return page, nil
}

func (s *verificationService) GetCredential(id string) (*model.Credential, error) {
	credential, err := s.credentialRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		logger.Error("Failed to fetch credential", err, map[string]interface{}{
			"credential_id": id,
		})
		return nil, err
	}
	return credential, nil
}

// Decide records a reviewer decision on a credential. The credential write
// always completes before the business is touched; an approval then marks the
// owning business verified. A rejection never changes the business.
func (s *verificationService) Decide(credentialID string, outcome model.VerificationStatus, reviewerID string) (*DecisionResult, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		logger.Warn("Decision blocked: no reviewer identity", map[string]interface{}{
			"credential_id": credentialID,
		})
		return nil, ErrReviewerRequired
	}
	if !outcome.IsDecision() {
		return nil, ErrInvalidOutcome
	}

	logger.Info("Deciding credential", map[string]interface{}{
		"credential_id": credentialID,
		"outcome":       outcome,
		"reviewer_id":   reviewerID,
	})

	credential, err := s.credentialRepo.FindByID(credentialID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, s.credentialWriteFailed("load", credentialID, outcome, err)
	}

	business, err := s.businessRepo.FindByID(credential.BusinessID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Decision blocked: owning business missing", map[string]interface{}{
				"credential_id": credentialID,
				"business_id":   credential.BusinessID,
			})
			return nil, ErrBusinessNotFound
		}
		return nil, s.credentialWriteFailed("load_business", credentialID, outcome, err)
	}

	result := &DecisionResult{Credential: credential}

	switch {
	case credential.VerificationStatus == outcome:
		result.Replayed = true
	case credential.VerificationStatus.IsDecision() && !s.cfg.AllowRedecide:
		s.cfg.Metrics.IncrementDecision(string(outcome), "already_decided")
		logger.Warn("Credential already decided", map[string]interface{}{
			"credential_id": credentialID,
			"current":       credential.VerificationStatus,
			"outcome":       outcome,
		})
		return nil, ErrAlreadyDecided
	default:
		if err := s.applyDecision(result, outcome, reviewerID); err != nil {
			return nil, err
		}
	}

	if result.Replayed {
		s.cfg.Metrics.IncrementDecision(string(outcome), "replayed")
	} else {
		s.cfg.Metrics.IncrementDecision(string(outcome), "applied")
	}

	if result.Credential.VerificationStatus == model.VerificationStatusVerified {
		if err := s.syncBusiness(result, business); err != nil {
			return nil, err
		}
	} else {
		result.BusinessVerified = business.IsVerified
	}

	s.publishDecision(result)

	logger.Info("Credential decided", map[string]interface{}{
		"credential_id":     credentialID,
		"business_id":       business.ID,
		"outcome":           outcome,
		"replayed":          result.Replayed,
		"business_verified": result.BusinessVerified,
	})
	return result, nil
}

// applyDecision performs the guarded credential write and, on a lost race,
// decides between a concurrent identical decision and a conflict.
func (s *verificationService) applyDecision(result *DecisionResult, outcome model.VerificationStatus, reviewerID string) error {
	credential := result.Credential

	now := s.cfg.Now()
	if now.Before(credential.CreatedAt) {
		now = credential.CreatedAt
	}

	applied, err := s.credentialRepo.ApplyDecision(credential.ID, credential.VerificationStatus, repository.Decision{
		Status:     outcome,
		VerifiedAt: now,
		VerifiedBy: reviewerID,
	})
	if err != nil {
		return s.credentialWriteFailed("apply", credential.ID, outcome, err)
	}

	if applied {
		credential.VerificationStatus = outcome
		credential.VerifiedAt = &now
		credential.VerifiedBy = &reviewerID
		return nil
	}

	current, err := s.credentialRepo.FindByID(credential.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCredentialNotFound
		}
		return s.credentialWriteFailed("reload", credential.ID, outcome, err)
	}
	if current.VerificationStatus == outcome {
		result.Credential = current
		result.Replayed = true
		return nil
	}

	s.cfg.Metrics.IncrementDecision(string(outcome), "conflict")
	logger.Warn("Credential decision lost a concurrent update", map[string]interface{}{
		"credential_id": credential.ID,
		"expected":      credential.VerificationStatus,
		"current":       current.VerificationStatus,
		"outcome":       outcome,
	})
	return ErrDecisionConflict
}

// SyncBusiness re-runs the business leg for an already verified credential.
// It is the recovery path for a BusinessSyncError.
func (s *verificationService) SyncBusiness(credentialID string) (*DecisionResult, error) {
	logger.Info("Re-syncing business for credential", map[string]interface{}{
		"credential_id": credentialID,
	})

	credential, err := s.GetCredential(credentialID)
	if err != nil {
		return nil, err
	}
	if credential.VerificationStatus != model.VerificationStatusVerified {
		return nil, ErrCredentialNotVerified
	}

	business, err := s.businessRepo.FindByID(credential.BusinessID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBusinessNotFound
		}
		return nil, &BusinessSyncError{
			CredentialID: credential.ID,
			BusinessID:   credential.BusinessID,
			Credential:   credential,
			Err:          err,
		}
	}

	result := &DecisionResult{Credential: credential, Replayed: true}
	if err := s.syncBusiness(result, business); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *verificationService) syncBusiness(result *DecisionResult, business *model.Business) error {
	if business.IsVerified {
		s.cfg.Metrics.IncrementBusinessSync("already_verified")
		result.BusinessVerified = true
		return nil
	}

	if err := s.businessRepo.MarkVerified(business.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrBusinessNotFound
		}
		s.cfg.Metrics.IncrementBusinessSync("failed")
		logger.Error("Failed to sync business after credential decision", err, map[string]interface{}{
			"credential_id": result.Credential.ID,
			"business_id":   business.ID,
		})
		return &BusinessSyncError{
			CredentialID: result.Credential.ID,
			BusinessID:   business.ID,
			Credential:   result.Credential,
			Err:          err,
		}
	}

	s.cfg.Metrics.IncrementBusinessSync("updated")
	result.BusinessVerified = true
	s.cfg.Hub.Publish(websocket.Event{
		Type:             websocket.EventBusinessVerified,
		CredentialID:     result.Credential.ID,
		BusinessID:       business.ID,
		BusinessVerified: true,
	})
	return nil
}

func (s *verificationService) credentialWriteFailed(op, credentialID string, outcome model.VerificationStatus, err error) error {
	s.cfg.Metrics.IncrementDecision(string(outcome), "write_failed")
	logger.Error("Credential decision failed before commit", err, map[string]interface{}{
		"credential_id": credentialID,
		"op":            op,
	})
	return &CredentialWriteError{Op: op, CredentialID: credentialID, Err: err}
}

func (s *verificationService) publishDecision(result *DecisionResult) {
	credential := result.Credential
	event := websocket.Event{
		Type:             websocket.EventCredentialDecided,
		CredentialID:     credential.ID,
		BusinessID:       credential.BusinessID,
		Status:           string(credential.VerificationStatus),
		VerifiedAt:       credential.VerifiedAt,
		BusinessVerified: result.BusinessVerified,
	}
	if credential.VerifiedBy != nil {
		event.VerifiedBy = *credential.VerifiedBy
	}
	s.cfg.Hub.Publish(event)
}

func (s *verificationService) CountByStatus() (map[model.VerificationStatus]int64, error) {
	counts, err := s.credentialRepo.CountByStatus()
	if err != nil {
		logger.Error("Failed to count credentials by status", err)
		return nil, err
	}
	return counts, nil
}

// IsExpired is informational; it never affects the verification status.
func (s *verificationService) IsExpired(credential *model.Credential) bool {
	return credential.IsExpired(s.cfg.Now())
}

func (s *verificationService) FindExpiredVerified() ([]model.Credential, error) {
	return s.credentialRepo.FindExpiredVerified(s.cfg.Now())
}
