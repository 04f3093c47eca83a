package main

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ikkim/marketplace-admin/config"
	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/internal/db"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// 입력 시트 컬럼 순서
const (
	colBusinessName = iota // 업체명
	colEmail               // 대표 이메일
	colPhone               // 연락처
	colCredentialType      // license | insurance | certification | other
	colCredentialNumber    // 증서 번호
	colIssuingAuthority    // 발급 기관
	colIssueDate           // 발급일 (YYYY-MM-DD)
	colExpiryDate          // 만료일 (YYYY-MM-DD)
	colDocumentRef         // 문서 참조 (S3 키 또는 URL)
	columnCount
)

const dateLayout = "2006-01-02"

// importSummary 파싱 결과 요약
type importSummary struct {
	Rows        int
	Businesses  int
	Credentials int
	Skipped     int
}

func main() {
	// 명령줄 인자 확인
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run cmd/seed/main.go <xlsx_file_path>")
	}

	filePath := os.Args[1]

	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// DB 연결
	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// XLSX 파일 읽기
	fmt.Printf("Reading XLSX file: %s\n", filePath)
	businesses, summary, err := readBusinessesFromXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Total rows: %d\n", summary.Rows)
	fmt.Printf("  Businesses: %d\n", summary.Businesses)
	fmt.Printf("  Pending credentials: %d\n", summary.Credentials)
	fmt.Printf("  Skipped rows: %d\n", summary.Skipped)

	// 사용자 확인
	fmt.Print("Do you want to proceed with the import? (yes/no): ")
	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "yes" && confirm != "y" {
		fmt.Println("Import cancelled.")
		return
	}

	// 배치로 저장
	batchSize := 500
	fmt.Printf("Starting bulk import with batch size: %d\n", batchSize)
	if err := importBusinesses(db.GetDB(), businesses, batchSize); err != nil {
		log.Fatal("Failed to import businesses:", err)
	}

	fmt.Println("Import completed successfully!")
}

// importBusinesses 업체와 대기 자격증명을 하나의 트랜잭션으로 저장
func importBusinesses(conn *gorm.DB, businesses []model.Business, batchSize int) error {
	if len(businesses) == 0 {
		return nil
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(businesses, batchSize).Error
	})
}

func readBusinessesFromXLSX(filePath string) ([]model.Business, importSummary, error) {
	var summary importSummary

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, summary, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	// 첫 번째 시트 이름 가져오기
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, summary, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, summary, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, summary, fmt.Errorf("no data found in XLSX file")
	}

	var businesses []model.Business
	index := make(map[string]int) // 업체 중복 제거용 (업체명|이메일 -> businesses 인덱스)

	// 첫 행은 헤더이므로 스킵
	for _, row := range rows[1:] {
		summary.Rows++

		// 뒤쪽 빈 셀은 GetRows 결과에서 잘려 나온다
		for len(row) < columnCount {
			row = append(row, "")
		}

		name := strings.TrimSpace(row[colBusinessName])
		if !isValidBusinessName(name) {
			summary.Skipped++
			continue
		}

		credential, ok := parseCredential(row)
		if !ok {
			summary.Skipped++
			continue
		}

		email := optional(row[colEmail])
		key := strings.ToLower(name) + "|"
		if email != nil {
			key += strings.ToLower(*email)
		}

		i, seen := index[key]
		if !seen {
			businesses = append(businesses, model.Business{
				Name:  name,
				Email: email,
				Phone: optional(row[colPhone]),
			})
			i = len(businesses) - 1
			index[key] = i
			summary.Businesses++
		}

		if credential != nil {
			businesses[i].Credentials = append(businesses[i].Credentials, *credential)
			summary.Credentials++
		}
	}

	return businesses, summary, nil
}

// parseCredential 행에서 대기 자격증명 추출. 자격 종류가 비어 있으면 업체만 등록한다.
func parseCredential(row []string) (*model.Credential, bool) {
	if strings.TrimSpace(row[colCredentialType]) == "" {
		return nil, true
	}

	credentialType, ok := normalizeCredentialType(row[colCredentialType])
	if !ok {
		return nil, false
	}

	issueDate, ok := parseDate(row[colIssueDate])
	if !ok {
		return nil, false
	}
	expiryDate, ok := parseDate(row[colExpiryDate])
	if !ok {
		return nil, false
	}

	return &model.Credential{
		CredentialType:     credentialType,
		CredentialNumber:   optional(row[colCredentialNumber]),
		IssuingAuthority:   optional(row[colIssuingAuthority]),
		IssueDate:          issueDate,
		ExpiryDate:         expiryDate,
		DocumentURL:        optional(row[colDocumentRef]),
		VerificationStatus: model.VerificationStatusPending,
	}, true
}

// 기존 관리 콘솔 데이터는 business_license 처럼 세부 종류를 저장한다
var credentialTypeSuffixes = []struct {
	suffix string
	typ    model.CredentialType
}{
	{"license", model.CredentialTypeLicense},
	{"licence", model.CredentialTypeLicense},
	{"insurance", model.CredentialTypeInsurance},
	{"certification", model.CredentialTypeCertification},
	{"certificate", model.CredentialTypeCertification},
}

// normalizeCredentialType maps legacy detailed types (business_license,
// "Liability Insurance", professional-certification) onto the stored enum.
func normalizeCredentialType(raw string) (model.CredentialType, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.NewReplacer(" ", "_", "-", "_").Replace(value)

	if t := model.CredentialType(value); t.IsValid() {
		return t, true
	}
	for _, candidate := range credentialTypeSuffixes {
		if strings.HasSuffix(value, "_"+candidate.suffix) || strings.HasPrefix(value, candidate.suffix+"_") {
			return candidate.typ, true
		}
	}
	return "", false
}

func parseDate(s string) (*time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

var (
	numOnlyReg     = regexp.MustCompile(`^[0-9]+$`)
	specialOnlyReg = regexp.MustCompile(`^[\p{P}\p{S}\s]+$`)
)

// isValidBusinessName은 업체명이 유효한지 검증합니다
func isValidBusinessName(name string) bool {
	// 1. 최소 길이 체크 (2글자 미만 제외)
	if len([]rune(name)) < 2 {
		return false
	}

	// 2. 숫자만 있는 경우 제외
	if numOnlyReg.MatchString(name) {
		return false
	}

	// 3. 특수문자만 있는 경우 제외 (공백, 구두점, 기호만)
	return !specialOnlyReg.MatchString(name)
}
