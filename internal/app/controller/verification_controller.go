package controller

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/internal/app/service"
	"github.com/ikkim/marketplace-admin/internal/errors"
	"github.com/ikkim/marketplace-admin/internal/middleware"
	"github.com/ikkim/marketplace-admin/internal/storage"
	ws "github.com/ikkim/marketplace-admin/internal/websocket"
)

// DocumentSigner resolves a credential's document reference to a readable link.
type DocumentSigner interface {
	PresignDocument(ctx context.Context, ref string) (*storage.DocumentLink, error)
}

type VerificationController struct {
	verificationService service.VerificationService
	documents           DocumentSigner
	hub                 *ws.Hub
	upgrader            gorillaws.Upgrader
}

func NewVerificationController(
	verificationService service.VerificationService,
	documents DocumentSigner,
	hub *ws.Hub,
	allowedOrigins []string,
) *VerificationController {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}

	return &VerificationController{
		verificationService: verificationService,
		documents:           documents,
		hub:                 hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// DecisionRequest 심사 결정 요청
type DecisionRequest struct {
	Outcome model.VerificationStatus `json:"outcome" binding:"required"` // verified | rejected
}

// CredentialDetail 상세 응답 (만료 여부 포함)
type CredentialDetail struct {
	*model.Credential
	IsExpired bool `json:"is_expired"`
}

func (ctrl *VerificationController) listOptions(c *gin.Context) (service.CredentialListOptions, bool) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			errors.BadRequest(c, errors.ValidationInvalidRange, "페이지 번호가 올바르지 않습니다")
			return service.CredentialListOptions{}, false
		}
		page = parsed
	}

	return service.CredentialListOptions{
		Status:         c.DefaultQuery("status", string(model.VerificationStatusPending)),
		CredentialType: c.Query("credential_type"),
		BusinessID:     c.Query("business_id"),
		Search:         c.Query("search"),
		Page:           page,
	}, true
}

// ListCredentials 심사 대기열 조회
// GET /api/v1/admin/verifications
func (ctrl *VerificationController) ListCredentials(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	opts, ok := ctrl.listOptions(c)
	if !ok {
		return
	}

	page, err := ctrl.verificationService.List(opts)
	if err != nil {
		if stderrors.Is(err, service.ErrInvalidStatusFilter) || stderrors.Is(err, model.ErrInvalidCredentialType) {
			errors.BadRequest(c, errors.VerificationInvalidFilter, "목록 필터가 올바르지 않습니다")
			return
		}
		log.Error("Failed to list credentials", err, map[string]interface{}{
			"status": opts.Status,
			"page":   opts.Page,
		})
		errors.ParseAndRespond(c, http.StatusInternalServerError, err, "list credentials")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credentials": page.Items,
		"total_count": page.TotalCount,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
		"has_next":    page.HasNext(),
	})
}

// GetCredential 자격증명 상세 조회
// GET /api/v1/admin/verifications/:id
func (ctrl *VerificationController) GetCredential(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id := c.Param("id")

	credential, err := ctrl.verificationService.GetCredential(id)
	if err != nil {
		if stderrors.Is(err, service.ErrCredentialNotFound) {
			errors.NotFound(c, errors.VerificationCredentialNotFound, "자격증명을 찾을 수 없습니다")
			return
		}
		log.Error("Failed to fetch credential", err, map[string]interface{}{
			"credential_id": id,
		})
		errors.ParseAndRespond(c, http.StatusInternalServerError, err, "credential")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credential": CredentialDetail{
			Credential: credential,
			IsExpired:  ctrl.verificationService.IsExpired(credential),
		},
	})
}

// DecideCredential 심사 결정 (승인/반려)
// POST /api/v1/admin/verifications/:id/decision
func (ctrl *VerificationController) DecideCredential(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id := c.Param("id")

	reviewerID, ok := middleware.GetUserID(c)
	if !ok {
		log.Warn("Decision without reviewer identity", map[string]interface{}{
			"credential_id": id,
		})
		errors.RespondWithError(c, http.StatusUnauthorized, errors.VerificationReviewerRequired, "심사자 정보를 확인할 수 없습니다")
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, errors.ValidationInvalidInput, "심사 결과(outcome)가 필요합니다")
		return
	}

	result, err := ctrl.verificationService.Decide(id, req.Outcome, reviewerID)
	if err != nil {
		ctrl.respondDecisionError(c, id, err)
		return
	}

	// 감사 로그: 누가 어떤 권한으로 결정했는지 기록
	role, _ := middleware.GetUserRole(c)
	email, _ := middleware.GetUserEmail(c)
	log.Info("Reviewer decision recorded", map[string]interface{}{
		"credential_id":  id,
		"outcome":        req.Outcome,
		"reviewer_id":    reviewerID,
		"reviewer_role":  role,
		"reviewer_email": email,
		"replayed":       result.Replayed,
	})

	c.JSON(http.StatusOK, gin.H{
		"credential":        result.Credential,
		"business_synced":   true,
		"business_verified": result.BusinessVerified,
		"replayed":          result.Replayed,
	})
}

// SyncBusiness 업체 인증 플래그 재동기화 (207 응답 후 재시도)
// POST /api/v1/admin/verifications/:id/sync-business
func (ctrl *VerificationController) SyncBusiness(c *gin.Context) {
	id := c.Param("id")

	result, err := ctrl.verificationService.SyncBusiness(id)
	if err != nil {
		if stderrors.Is(err, service.ErrCredentialNotVerified) {
			errors.Conflict(c, errors.VerificationNotVerified, "승인된 자격증명만 업체에 반영할 수 있습니다")
			return
		}
		ctrl.respondDecisionError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credential":        result.Credential,
		"business_synced":   true,
		"business_verified": result.BusinessVerified,
	})
}

func (ctrl *VerificationController) respondDecisionError(c *gin.Context, id string, err error) {
	log := middleware.GetLoggerFromContext(c)

	var syncErr *service.BusinessSyncError
	switch {
	case stderrors.As(err, &syncErr):
		log.Error("Credential decided but business sync failed", err, map[string]interface{}{
			"credential_id": id,
			"business_id":   syncErr.BusinessID,
		})
		errors.MultiStatus(c, errors.VerificationBusinessSyncFailed, "심사 결과는 저장되었으나 업체 인증 반영에 실패했습니다. 재동기화가 필요합니다", gin.H{
			"credential":      syncErr.Credential,
			"business_synced": false,
		})
	case stderrors.Is(err, service.ErrReviewerRequired):
		errors.RespondWithError(c, http.StatusUnauthorized, errors.VerificationReviewerRequired, "심사자 정보를 확인할 수 없습니다")
	case stderrors.Is(err, service.ErrInvalidOutcome):
		errors.BadRequest(c, errors.VerificationInvalidOutcome, "심사 결과는 verified 또는 rejected 이어야 합니다")
	case stderrors.Is(err, service.ErrCredentialNotFound):
		errors.NotFound(c, errors.VerificationCredentialNotFound, "자격증명을 찾을 수 없습니다")
	case stderrors.Is(err, service.ErrBusinessNotFound):
		errors.NotFound(c, errors.VerificationBusinessNotFound, "자격증명의 소속 업체를 찾을 수 없습니다")
	case stderrors.Is(err, service.ErrAlreadyDecided):
		errors.Conflict(c, errors.VerificationAlreadyDecided, "이미 다른 결과로 심사된 자격증명입니다")
	case stderrors.Is(err, service.ErrDecisionConflict):
		errors.Conflict(c, errors.VerificationConflict, "다른 심사자가 먼저 처리했습니다. 새로고침 후 다시 시도해주세요")
	case stderrors.Is(err, service.ErrCredentialWriteFailed):
		log.Error("Credential decision write failed", err, map[string]interface{}{
			"credential_id": id,
		})
		errors.RespondWithError(c, http.StatusInternalServerError, errors.VerificationWriteFailed, "심사 결과 저장에 실패했습니다. 다시 시도해주세요")
	default:
		log.Error("Unexpected decision failure", err, map[string]interface{}{
			"credential_id": id,
		})
		errors.ParseAndRespond(c, http.StatusInternalServerError, err, "decide")
	}
}

// GetStats 상태별 건수 (대기 배지)
// GET /api/v1/admin/verifications/stats
func (ctrl *VerificationController) GetStats(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	counts, err := ctrl.verificationService.CountByStatus()
	if err != nil {
		log.Error("Failed to count credentials", err)
		errors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pending":  counts[model.VerificationStatusPending],
		"verified": counts[model.VerificationStatusVerified],
		"rejected": counts[model.VerificationStatusRejected],
	})
}

// GetDocument 첨부 문서 열람 링크
// GET /api/v1/admin/verifications/:id/document
func (ctrl *VerificationController) GetDocument(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	id := c.Param("id")

	credential, err := ctrl.verificationService.GetCredential(id)
	if err != nil {
		if stderrors.Is(err, service.ErrCredentialNotFound) {
			errors.NotFound(c, errors.VerificationCredentialNotFound, "자격증명을 찾을 수 없습니다")
			return
		}
		errors.ParseAndRespond(c, http.StatusInternalServerError, err, "credential")
		return
	}

	if credential.DocumentURL == nil || ctrl.documents == nil {
		errors.NotFound(c, errors.VerificationDocumentMissing, "첨부된 문서가 없습니다")
		return
	}

	link, err := ctrl.documents.PresignDocument(c.Request.Context(), *credential.DocumentURL)
	if err != nil {
		if stderrors.Is(err, storage.ErrNoDocument) {
			errors.NotFound(c, errors.VerificationDocumentMissing, "첨부된 문서가 없습니다")
			return
		}
		log.Error("Failed to presign credential document", err, map[string]interface{}{
			"credential_id": id,
		})
		errors.RespondWithError(c, http.StatusBadGateway, errors.VerificationDocumentFailed, "문서 링크를 생성하지 못했습니다")
		return
	}

	c.JSON(http.StatusOK, gin.H{"document": link})
}

// ExportCredentials 필터된 대기열 xlsx 내보내기
// GET /api/v1/admin/verifications/export
func (ctrl *VerificationController) ExportCredentials(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	opts, ok := ctrl.listOptions(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	rows, err := service.ExportCredentials(ctrl.verificationService, opts, &buf)
	if err != nil {
		if stderrors.Is(err, service.ErrInvalidStatusFilter) || stderrors.Is(err, model.ErrInvalidCredentialType) {
			errors.BadRequest(c, errors.VerificationInvalidFilter, "목록 필터가 올바르지 않습니다")
			return
		}
		log.Error("Failed to export credentials", err)
		errors.ParseAndRespond(c, http.StatusInternalServerError, err, "export")
		return
	}

	filename := fmt.Sprintf("credentials-%s-%s.xlsx", opts.Status, time.Now().Format("20060102"))
	log.Info("Credentials exported", map[string]interface{}{
		"rows": rows,
	})
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// HandleWebSocket 실시간 심사 알림 연결
// GET /ws/verifications?token=...
func (ctrl *VerificationController) HandleWebSocket(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		errors.Unauthorized(c, "로그인이 필요합니다")
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket", err)
		return
	}

	ctrl.hub.Attach(conn, userID)

	log.Info("WebSocket connection established", map[string]interface{}{
		"user_id": userID,
	})
}
