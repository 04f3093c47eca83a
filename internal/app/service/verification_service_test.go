package service

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/internal/app/repository"
	"github.com/ikkim/marketplace-admin/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

var (
	submittedAt = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	reviewedAt  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

// failingBusinessRepo fails MarkVerified while delegating everything else.
type failingBusinessRepo struct {
	repository.BusinessRepository
	err   error
	calls int
}

func (r *failingBusinessRepo) MarkVerified(id string) error {
	r.calls++
	return r.err
}

type verificationFixture struct {
	db           *gorm.DB
	service      VerificationService
	credRepo     repository.CredentialRepository
	businessRepo repository.BusinessRepository
}

func setupVerificationServiceTest(t *testing.T, opts ...func(*VerificationConfig)) *verificationFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	cfg := VerificationConfig{
		PageSize: 10,
		Now:      func() time.Time { return reviewedAt },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	credRepo := repository.NewCredentialRepository(testDB)
	businessRepo := repository.NewBusinessRepository(testDB)

	return &verificationFixture{
		db:           testDB,
		service:      NewVerificationService(credRepo, businessRepo, cfg),
		credRepo:     credRepo,
		businessRepo: businessRepo,
	}
}

func strPtr(s string) *string { return &s }

func (f *verificationFixture) seedBusiness(t *testing.T, id string) {
	business := &model.Business{ID: id, Name: "Business " + id, Email: strPtr(id + "@example.com")}
	require.NoError(t, f.businessRepo.Create(business))
}

func (f *verificationFixture) seedPending(t *testing.T, id, businessID string, createdAt time.Time) *model.Credential {
	credential := &model.Credential{
		ID:               id,
		BusinessID:       businessID,
		CredentialType:   model.CredentialTypeLicense,
		CredentialNumber: strPtr("LIC-" + id),
		CreatedAt:        createdAt,
	}
	require.NoError(t, f.credRepo.Create(credential))
	return credential
}

func (f *verificationFixture) business(t *testing.T, id string) *model.Business {
	business, err := f.businessRepo.FindByID(id)
	require.NoError(t, err)
	return business
}

func (f *verificationFixture) credential(t *testing.T, id string) *model.Credential {
	credential, err := f.credRepo.FindByID(id)
	require.NoError(t, err)
	return credential
}

func TestVerificationService_Decide_ExpiredButApproved(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	credential := f.seedPending(t, "cred-1", "biz-1", submittedAt)

	expiry := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Model(credential).Update("expiry_date", expiry).Error)

	result, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.True(t, result.BusinessVerified)

	stored := f.credential(t, "cred-1")
	assert.Equal(t, model.VerificationStatusVerified, stored.VerificationStatus)
	require.NotNil(t, stored.VerifiedAt)
	assert.True(t, stored.VerifiedAt.Equal(reviewedAt))
	assert.Equal(t, "rev-1", *stored.VerifiedBy)
	assert.NoError(t, stored.Validate())

	assert.True(t, f.business(t, "biz-1").IsVerified)
	assert.True(t, f.service.IsExpired(stored), "expiry is reported but does not block approval")
}

func TestVerificationService_Decide_Idempotent(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)

	first, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	require.NoError(t, err)
	firstStored := f.credential(t, "cred-1")

	second, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-2")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.True(t, second.BusinessVerified)

	secondStored := f.credential(t, "cred-1")
	assert.Equal(t, firstStored.VerificationStatus, secondStored.VerificationStatus)
	assert.True(t, firstStored.VerifiedAt.Equal(*secondStored.VerifiedAt))
	assert.Equal(t, "rev-1", *secondStored.VerifiedBy, "replay keeps the original reviewer stamp")
	assert.Equal(t, first.Credential.ID, second.Credential.ID)
	assert.True(t, f.business(t, "biz-1").IsVerified)
}

func TestVerificationService_Decide_BusinessSyncFailure(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)

	syncErr := errors.New("connection reset")
	failing := &failingBusinessRepo{BusinessRepository: f.businessRepo, err: syncErr}
	svc := NewVerificationService(f.credRepo, failing, VerificationConfig{
		PageSize: 10,
		Now:      func() time.Time { return reviewedAt },
	})

	result, err := svc.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBusinessSyncFailed)
	assert.ErrorIs(t, err, syncErr)
	assert.NotErrorIs(t, err, ErrCredentialWriteFailed)

	var syncFailure *BusinessSyncError
	require.ErrorAs(t, err, &syncFailure)
	assert.Equal(t, "biz-1", syncFailure.BusinessID)
	require.NotNil(t, syncFailure.Credential)
	assert.Equal(t, model.VerificationStatusVerified, syncFailure.Credential.VerificationStatus)

	// The credential write happened first and stays persisted.
	assert.Equal(t, model.VerificationStatusVerified, f.credential(t, "cred-1").VerificationStatus)
	assert.False(t, f.business(t, "biz-1").IsVerified)
	assert.Equal(t, 1, failing.calls)

	// Re-syncing through the healthy repository completes the business leg.
	recovered, err := f.service.SyncBusiness("cred-1")
	require.NoError(t, err)
	assert.True(t, recovered.BusinessVerified)
	assert.True(t, f.business(t, "biz-1").IsVerified)

	// A replayed decision after recovery is a no-op on both records.
	replay, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
}

func TestVerificationService_Decide_ReplayResyncsBusiness(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)

	failing := &failingBusinessRepo{BusinessRepository: f.businessRepo, err: errors.New("timeout")}
	broken := NewVerificationService(f.credRepo, failing, VerificationConfig{Now: func() time.Time { return reviewedAt }})
	_, err := broken.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	require.ErrorIs(t, err, ErrBusinessSyncFailed)

	result, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	require.NoError(t, err)
	assert.True(t, result.Replayed)
	assert.True(t, f.business(t, "biz-1").IsVerified)
}

func TestVerificationService_Decide_RejectionNeverDemotes(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)
	f.seedPending(t, "cred-2", "biz-1", submittedAt.Add(time.Hour))

	_, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	require.NoError(t, err)

	result, err := f.service.Decide("cred-2", model.VerificationStatusRejected, "rev-1")
	require.NoError(t, err)
	assert.True(t, result.BusinessVerified)
	assert.Equal(t, model.VerificationStatusRejected, f.credential(t, "cred-2").VerificationStatus)
	assert.True(t, f.business(t, "biz-1").IsVerified)
}

func TestVerificationService_Decide_RejectionLeavesBusinessUntouched(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)

	failing := &failingBusinessRepo{BusinessRepository: f.businessRepo, err: errors.New("must not be called")}
	svc := NewVerificationService(f.credRepo, failing, VerificationConfig{Now: func() time.Time { return reviewedAt }})

	result, err := svc.Decide("cred-1", model.VerificationStatusRejected, "rev-1")
	require.NoError(t, err)
	assert.False(t, result.BusinessVerified)
	assert.Equal(t, 0, failing.calls)
	assert.False(t, f.business(t, "biz-1").IsVerified)
}

func TestVerificationService_Decide_Errors(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)
	f.seedPending(t, "orphan", "biz-missing", submittedAt)
	f.seedPending(t, "decided", "biz-1", submittedAt)
	_, err := f.service.Decide("decided", model.VerificationStatusRejected, "rev-1")
	require.NoError(t, err)

	tests := []struct {
		name       string
		credential string
		outcome    model.VerificationStatus
		reviewer   string
		wantErr    error
	}{
		{"Missing reviewer", "cred-1", model.VerificationStatusVerified, "  ", ErrReviewerRequired},
		{"Pending is not an outcome", "cred-1", model.VerificationStatusPending, "rev-1", ErrInvalidOutcome},
		{"Unknown outcome", "cred-1", "approved", "rev-1", ErrInvalidOutcome},
		{"Unknown credential", "nope", model.VerificationStatusVerified, "rev-1", ErrCredentialNotFound},
		{"Owning business missing", "orphan", model.VerificationStatusVerified, "rev-1", ErrBusinessNotFound},
		{"Different outcome on decided credential", "decided", model.VerificationStatusVerified, "rev-2", ErrAlreadyDecided},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.service.Decide(tt.credential, tt.outcome, tt.reviewer)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Nothing was written by the failed calls.
	assert.True(t, f.credential(t, "cred-1").IsPending())
	assert.True(t, f.credential(t, "orphan").IsPending())
	assert.Equal(t, model.VerificationStatusRejected, f.credential(t, "decided").VerificationStatus)
	assert.False(t, f.business(t, "biz-1").IsVerified)
}

func TestVerificationService_Decide_RedecideWhenAllowed(t *testing.T) {
	f := setupVerificationServiceTest(t, func(cfg *VerificationConfig) {
		cfg.AllowRedecide = true
	})
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)

	_, err := f.service.Decide("cred-1", model.VerificationStatusRejected, "rev-1")
	require.NoError(t, err)

	result, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-2")
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, "rev-2", *f.credential(t, "cred-1").VerifiedBy)
	assert.True(t, f.business(t, "biz-1").IsVerified)
}

// racingCredentialRepo simulates another reviewer landing a decision between
// the read and the guarded write.
type racingCredentialRepo struct {
	repository.CredentialRepository
	db      *gorm.DB
	outcome model.VerificationStatus
}

func (r *racingCredentialRepo) ApplyDecision(id string, expected model.VerificationStatus, d repository.Decision) (bool, error) {
	if err := r.db.Model(&model.Credential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"verification_status": r.outcome,
		"verified_at":         d.VerifiedAt,
		"verified_by":         "rev-other",
	}).Error; err != nil {
		return false, err
	}
	return r.CredentialRepository.ApplyDecision(id, expected, d)
}

func TestVerificationService_Decide_ConcurrentWriters(t *testing.T) {
	tests := []struct {
		name        string
		concurrent  model.VerificationStatus
		outcome     model.VerificationStatus
		wantErr     error
		wantRevisor string
	}{
		{"Different outcome wins the race", model.VerificationStatusRejected, model.VerificationStatusVerified, ErrDecisionConflict, "rev-other"},
		{"Same outcome wins the race", model.VerificationStatusVerified, model.VerificationStatusVerified, nil, "rev-other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupVerificationServiceTest(t)
			f.seedBusiness(t, "biz-1")
			f.seedPending(t, "cred-1", "biz-1", submittedAt)

			racing := &racingCredentialRepo{CredentialRepository: f.credRepo, db: f.db, outcome: tt.concurrent}
			svc := NewVerificationService(racing, f.businessRepo, VerificationConfig{Now: func() time.Time { return reviewedAt }})

			result, err := svc.Decide("cred-1", tt.outcome, "rev-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				assert.False(t, f.business(t, "biz-1").IsVerified)
			} else {
				require.NoError(t, err)
				assert.True(t, result.Replayed)
				assert.True(t, f.business(t, "biz-1").IsVerified)
			}
			assert.Equal(t, tt.wantRevisor, *f.credential(t, "cred-1").VerifiedBy)
		})
	}
}

func TestVerificationService_Decide_ClockBehindSubmission(t *testing.T) {
	f := setupVerificationServiceTest(t, func(cfg *VerificationConfig) {
		cfg.Now = func() time.Time { return submittedAt.Add(-time.Minute) }
	})
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)

	_, err := f.service.Decide("cred-1", model.VerificationStatusVerified, "rev-1")
	require.NoError(t, err)

	stored := f.credential(t, "cred-1")
	assert.False(t, stored.VerifiedAt.Before(stored.CreatedAt))
	assert.NoError(t, stored.Validate())
}

func TestVerificationService_SyncBusiness_RequiresVerifiedCredential(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "cred-1", "biz-1", submittedAt)

	_, err := f.service.SyncBusiness("cred-1")
	assert.ErrorIs(t, err, ErrCredentialNotVerified)

	_, err = f.service.SyncBusiness("missing")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestVerificationService_List(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	for i := 0; i < 15; i++ {
		f.seedPending(t, fmt.Sprintf("p-%02d", i), "biz-1", submittedAt.Add(time.Duration(i)*time.Minute))
	}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("v-%02d", i)
		f.seedPending(t, id, "biz-1", submittedAt.Add(time.Duration(i)*time.Minute))
		_, err := f.service.Decide(id, model.VerificationStatusVerified, "rev-1")
		require.NoError(t, err)
	}

	wantLens := []int{10, 5, 0}
	for i, want := range wantLens {
		page, err := f.service.List(CredentialListOptions{Status: "pending", Page: i + 1})
		require.NoError(t, err)
		assert.Len(t, page.Items, want, "page %d", i+1)
		assert.Equal(t, int64(15), page.TotalCount)
	}

	all, err := f.service.List(CredentialListOptions{Status: "all", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(20), all.TotalCount)
	require.NotNil(t, all.Items[0].Business)
	assert.Equal(t, "Business biz-1", all.Items[0].Business.Name)

	_, err = f.service.List(CredentialListOptions{Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidStatusFilter)

	_, err = f.service.List(CredentialListOptions{CredentialType: "passport"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentialType)
}

func TestVerificationService_CountByStatus(t *testing.T) {
	f := setupVerificationServiceTest(t)
	f.seedBusiness(t, "biz-1")
	f.seedPending(t, "a", "biz-1", submittedAt)
	f.seedPending(t, "b", "biz-1", submittedAt)
	_, err := f.service.Decide("b", model.VerificationStatusRejected, "rev-1")
	require.NoError(t, err)

	counts, err := f.service.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.VerificationStatusPending])
	assert.Equal(t, int64(1), counts[model.VerificationStatusRejected])
	assert.Equal(t, int64(0), counts[model.VerificationStatusVerified])
}

func TestExportCredentials(t *testing.T) {
	f := setupVerificationServiceTest(t, func(cfg *VerificationConfig) {
		cfg.PageSize = 2
	})
	f.seedBusiness(t, "biz-1")
	for i := 0; i < 5; i++ {
		f.seedPending(t, fmt.Sprintf("c-%d", i), "biz-1", submittedAt.Add(time.Duration(i)*time.Minute))
	}

	var buf bytes.Buffer
	n, err := ExportCredentials(f.service, CredentialListOptions{Status: "pending"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "c-4", rows[1][0])
	assert.Equal(t, "c-0", rows[5][0])
	assert.Equal(t, "Business biz-1", rows[1][2])
}
