package scheduler

import (
	"context"
	"time"

	"github.com/ikkim/marketplace-admin/internal/app/repository"
	"github.com/ikkim/marketplace-admin/internal/app/service"
	"github.com/ikkim/marketplace-admin/internal/metrics"
	"github.com/ikkim/marketplace-admin/pkg/logger"
	"github.com/robfig/cron/v3"
)

const (
	jobReconcile = "reconcile"
	jobExpiry    = "expiry_report"

	lockTTL = 5 * time.Minute
)

// Locker 다중 인스턴스 환경에서 작업 중복 실행 방지
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Options 스케줄 설정
type Options struct {
	ReconcileSpec  string // cron 표현식: 업체 인증 플래그 재동기화
	ExpiryScanSpec string // cron 표현식: 만료 자격증명 리포트
	ReconcileBatch int
}

// ReconcileReport 재동기화 실행 결과
type ReconcileReport struct {
	Scanned  int
	Synced   int
	Failed   int
	Unbacked []string // 승인 자격증명 없이 인증 상태인 업체 IDs (보고만 함)
	Skipped  bool     // 다른 인스턴스가 실행 중
}

// VerificationScheduler 업체 인증 정합성 점검 스케줄러
type VerificationScheduler struct {
	cron                *cron.Cron
	verificationService service.VerificationService
	credentialRepo      repository.CredentialRepository
	businessRepo        repository.BusinessRepository
	locker              Locker
	metrics             *metrics.Metrics
	opts                Options
}

// NewVerificationScheduler 스케줄러 생성. locker가 nil이면 잠금 없이 실행한다.
func NewVerificationScheduler(
	verificationService service.VerificationService,
	credentialRepo repository.CredentialRepository,
	businessRepo repository.BusinessRepository,
	locker Locker,
	m *metrics.Metrics,
	opts Options,
) *VerificationScheduler {
	if opts.ReconcileBatch <= 0 {
		opts.ReconcileBatch = 100
	}
	return &VerificationScheduler{
		cron:                cron.New(),
		verificationService: verificationService,
		credentialRepo:      credentialRepo,
		businessRepo:        businessRepo,
		locker:              locker,
		metrics:             m,
		opts:                opts,
	}
}

// Start 스케줄러 시작
func (s *VerificationScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.opts.ReconcileSpec, func() {
		if _, err := s.ReconcileBusinesses(context.Background()); err != nil {
			logger.Error("Scheduled business reconcile failed", err)
		}
	}); err != nil {
		logger.Error("Failed to add cron job for business reconcile", err, map[string]interface{}{
			"spec": s.opts.ReconcileSpec,
		})
		return err
	}

	if _, err := s.cron.AddFunc(s.opts.ExpiryScanSpec, func() {
		if _, err := s.ReportExpired(context.Background()); err != nil {
			logger.Error("Scheduled expiry report failed", err)
		}
	}); err != nil {
		logger.Error("Failed to add cron job for expiry report", err, map[string]interface{}{
			"spec": s.opts.ExpiryScanSpec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Verification scheduler started", map[string]interface{}{
		"reconcile_spec": s.opts.ReconcileSpec,
		"expiry_spec":    s.opts.ExpiryScanSpec,
	})
	return nil
}

// Stop 스케줄러 중지. 실행 중인 작업이 끝날 때까지 기다린다.
func (s *VerificationScheduler) Stop() {
	logger.Info("Stopping verification scheduler...")
	<-s.cron.Stop().Done()
	logger.Info("Verification scheduler stopped")
}

// ReconcileBusinesses re-runs the business sync for verified credentials whose
// business never got flagged, then reports flagged businesses that have no
// verified credential. The latter are never changed.
func (s *VerificationScheduler) ReconcileBusinesses(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	release, ok, err := s.lock(ctx, jobReconcile)
	if err != nil {
		s.metrics.IncrementSchedulerRun(jobReconcile, "lock_error")
		return nil, err
	}
	if !ok {
		s.metrics.IncrementSchedulerRun(jobReconcile, "skipped")
		report.Skipped = true
		return report, nil
	}
	defer release()

	logger.Info("Starting business verification reconcile")

	credentials, err := s.credentialRepo.FindVerifiedWithUnsyncedBusiness(s.opts.ReconcileBatch)
	if err != nil {
		s.metrics.IncrementSchedulerRun(jobReconcile, "error")
		return nil, err
	}
	report.Scanned = len(credentials)

	seen := make(map[string]bool)
	for _, credential := range credentials {
		// 같은 업체의 다른 자격증명으로 이미 반영됨
		if seen[credential.BusinessID] {
			continue
		}
		seen[credential.BusinessID] = true

		if _, err := s.verificationService.SyncBusiness(credential.ID); err != nil {
			report.Failed++
			logger.Warn("Business re-sync failed", map[string]interface{}{
				"credential_id": credential.ID,
				"business_id":   credential.BusinessID,
				"error":         err.Error(),
			})
			continue
		}
		report.Synced++
	}

	unbacked, err := s.businessRepo.FindVerifiedWithoutVerifiedCredential()
	if err != nil {
		s.metrics.IncrementSchedulerRun(jobReconcile, "error")
		return nil, err
	}
	for _, business := range unbacked {
		report.Unbacked = append(report.Unbacked, business.ID)
		logger.Warn("Business verified without a verified credential", map[string]interface{}{
			"business_id": business.ID,
			"name":        business.Name,
		})
	}

	result := "ok"
	if report.Failed > 0 {
		result = "partial"
	}
	s.metrics.IncrementSchedulerRun(jobReconcile, result)

	logger.Info("Business verification reconcile finished", map[string]interface{}{
		"scanned":  report.Scanned,
		"synced":   report.Synced,
		"failed":   report.Failed,
		"unbacked": len(report.Unbacked),
	})
	return report, nil
}

// ReportExpired logs verified credentials whose expiry date has passed.
// Expiry is informational and the status stays verified.
func (s *VerificationScheduler) ReportExpired(ctx context.Context) (int, error) {
	release, ok, err := s.lock(ctx, jobExpiry)
	if err != nil {
		s.metrics.IncrementSchedulerRun(jobExpiry, "lock_error")
		return 0, err
	}
	if !ok {
		s.metrics.IncrementSchedulerRun(jobExpiry, "skipped")
		return 0, nil
	}
	defer release()

	expired, err := s.verificationService.FindExpiredVerified()
	if err != nil {
		s.metrics.IncrementSchedulerRun(jobExpiry, "error")
		return 0, err
	}

	for _, credential := range expired {
		fields := map[string]interface{}{
			"credential_id":   credential.ID,
			"business_id":     credential.BusinessID,
			"credential_type": credential.CredentialType,
			"expiry_date":     credential.ExpiryDate,
		}
		if credential.Business != nil {
			fields["business_name"] = credential.Business.Name
		}
		logger.Warn("Verified credential has expired", fields)
	}

	s.metrics.IncrementSchedulerRun(jobExpiry, "ok")
	logger.Info("Expiry report finished", map[string]interface{}{
		"expired": len(expired),
	})
	return len(expired), nil
}

func (s *VerificationScheduler) lock(ctx context.Context, job string) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	return s.locker.TryLock(ctx, job, lockTTL)
}
