package main

import (
	"path/filepath"
	"testing"

	"github.com/ikkim/marketplace-admin/internal/app/model"
	"github.com/ikkim/marketplace-admin/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeSeedFile(t *testing.T, rows [][]interface{}) string {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []interface{}{"업체명", "이메일", "연락처", "자격 종류", "증서 번호", "발급 기관", "발급일", "만료일", "문서"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "seed.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadBusinessesFromXLSX(t *testing.T) {
	path := writeSeedFile(t, [][]interface{}{
		{"금빛 공방", "gold@example.com", "010-1111-2222", "license", "LIC-1", "서울시", "2024-01-01", "2026-01-01", "credentials/gold/license.pdf"},
		{"금빛 공방", "gold@example.com", "", "insurance", "INS-9"},
		{"은빛 상회", "", "", ""},
		{"123", "", "", "license", "LIC-2"},
		{"잘못된 종류", "", "", "passport", "P-1"},
		{"날짜 오류", "", "", "license", "LIC-3", "", "01/02/2024"},
	})

	businesses, summary, err := readBusinessesFromXLSX(path)
	require.NoError(t, err)

	assert.Equal(t, importSummary{Rows: 6, Businesses: 2, Credentials: 2, Skipped: 3}, summary)
	require.Len(t, businesses, 2)

	gold := businesses[0]
	assert.Equal(t, "금빛 공방", gold.Name)
	require.NotNil(t, gold.Phone)
	assert.Equal(t, "010-1111-2222", *gold.Phone)
	require.Len(t, gold.Credentials, 2)
	assert.Equal(t, model.CredentialTypeLicense, gold.Credentials[0].CredentialType)
	require.NotNil(t, gold.Credentials[0].ExpiryDate)
	assert.Equal(t, 2026, gold.Credentials[0].ExpiryDate.Year())
	assert.Nil(t, gold.Credentials[1].ExpiryDate)

	assert.Equal(t, "은빛 상회", businesses[1].Name)
	assert.Empty(t, businesses[1].Credentials)
}

func TestNormalizeCredentialType(t *testing.T) {
	tests := []struct {
		raw      string
		expected model.CredentialType
		ok       bool
	}{
		{"license", model.CredentialTypeLicense, true},
		{" Insurance ", model.CredentialTypeInsurance, true},
		{"business_license", model.CredentialTypeLicense, true},
		{"Contractor License", model.CredentialTypeLicense, true},
		{"liability_insurance", model.CredentialTypeInsurance, true},
		{"insurance_certificate", model.CredentialTypeInsurance, true},
		{"professional-certification", model.CredentialTypeCertification, true},
		{"safety_certificate", model.CredentialTypeCertification, true},
		{"other", model.CredentialTypeOther, true},
		{"passport", "", false},
		{"licensed", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := normalizeCredentialType(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestImportBusinesses(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	path := writeSeedFile(t, [][]interface{}{
		{"금빛 공방", "gold@example.com", "", "license", "LIC-1"},
		{"금빛 공방", "gold@example.com", "", "insurance", "INS-1"},
		{"은빛 상회", "silver@example.com", "", "professional_certification", "CERT-1"},
	})
	businesses, _, err := readBusinessesFromXLSX(path)
	require.NoError(t, err)

	require.NoError(t, importBusinesses(testDB, businesses, 1))

	var businessCount, pendingCount int64
	require.NoError(t, testDB.Model(&model.Business{}).Count(&businessCount).Error)
	require.NoError(t, testDB.Model(&model.Credential{}).
		Where("verification_status = ?", model.VerificationStatusPending).
		Count(&pendingCount).Error)
	assert.Equal(t, int64(2), businessCount)
	assert.Equal(t, int64(3), pendingCount)

	var unverified int64
	require.NoError(t, testDB.Model(&model.Business{}).Where("is_verified = ?", false).Count(&unverified).Error)
	assert.Equal(t, int64(2), unverified)

	// Re-running the import against a cleared store produces the same rows.
	require.NoError(t, db.TruncateAllTables(testDB))
	require.NoError(t, testDB.Model(&model.Business{}).Count(&businessCount).Error)
	assert.Zero(t, businessCount)

	businesses, _, err = readBusinessesFromXLSX(path)
	require.NoError(t, err)
	require.NoError(t, importBusinesses(testDB, businesses, 500))
	require.NoError(t, testDB.Model(&model.Credential{}).Count(&pendingCount).Error)
	assert.Equal(t, int64(3), pendingCount)
}
