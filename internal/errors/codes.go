package errors

// 에러 코드 상수 정의
// 형식: CATEGORY_SPECIFIC_DETAIL
// 관리자 콘솔에서 이 코드를 기반으로 메시지를 매핑함

const (
	// ==================== 인증 (AUTH_) ====================
	AuthUnauthorized = "AUTH_UNAUTHORIZED"  // 로그인 필요
	AuthTokenExpired = "AUTH_TOKEN_EXPIRED" // 토큰 만료
	AuthTokenInvalid = "AUTH_TOKEN_INVALID" // 잘못된 토큰

	// ==================== 인가/권한 (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"      // 접근 권한 없음
	AuthzRoleNotFound = "AUTHZ_ROLE_NOT_FOUND" // 권한 정보 없음
	AuthzAdminOnly    = "AUTHZ_ADMIN_ONLY"     // 관리자만 가능

	// ==================== 검증 (VALIDATION_) ====================
	ValidationInvalidInput  = "VALIDATION_INVALID_INPUT"  // 잘못된 입력
	ValidationInvalidID     = "VALIDATION_INVALID_ID"     // 잘못된 ID
	ValidationInvalidFormat = "VALIDATION_INVALID_FORMAT" // 잘못된 형식
	ValidationInvalidRange  = "VALIDATION_INVALID_RANGE"  // 범위 초과
	ValidationRequired      = "VALIDATION_REQUIRED"       // 필수 항목

	// ==================== 리소스 (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"      // 리소스 없음
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS" // 이미 존재
	ResourceConflict      = "RESOURCE_CONFLICT"       // 충돌

	// ==================== 자격증명 심사 (VERIFICATION_) ====================
	VerificationCredentialNotFound = "VERIFICATION_CREDENTIAL_NOT_FOUND" // 자격증명 없음
	VerificationBusinessNotFound   = "VERIFICATION_BUSINESS_NOT_FOUND"   // 소속 업체 없음
	VerificationReviewerRequired   = "VERIFICATION_REVIEWER_REQUIRED"    // 심사자 식별 불가
	VerificationInvalidOutcome     = "VERIFICATION_INVALID_OUTCOME"      // 잘못된 심사 결과
	VerificationInvalidFilter      = "VERIFICATION_INVALID_FILTER"       // 잘못된 목록 필터
	VerificationAlreadyDecided     = "VERIFICATION_ALREADY_DECIDED"      // 이미 다른 결과로 심사됨
	VerificationConflict           = "VERIFICATION_CONFLICT"             // 동시 심사 충돌
	VerificationWriteFailed        = "VERIFICATION_WRITE_FAILED"         // 자격증명 저장 실패 (재시도 가능)
	VerificationBusinessSyncFailed = "VERIFICATION_BUSINESS_SYNC_FAILED" // 업체 인증 반영 실패 (재동기화 필요)
	VerificationNotVerified        = "VERIFICATION_NOT_VERIFIED"         // 승인되지 않은 자격증명
	VerificationDocumentMissing    = "VERIFICATION_DOCUMENT_MISSING"     // 첨부 문서 없음
	VerificationDocumentFailed     = "VERIFICATION_DOCUMENT_FAILED"      // 문서 링크 생성 실패

	// ==================== 내부 오류 (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"   // 서버 오류
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR" // DB 오류
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"   // 외부 API 오류
)
