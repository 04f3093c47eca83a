package model

type UserRole string // 관리 콘솔 사용자 권한

const (
	RoleStaff UserRole = "staff" // 조회 전용 직원
	RoleAdmin UserRole = "admin" // 심사 권한 관리자
)
