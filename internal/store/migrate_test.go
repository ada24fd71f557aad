package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// TestMigrationFromPreviousSlot exercises spec §4.3: a previous/ slot with
// the old User/Participant shapes is converted into current/ on first
// Initialise, with email lowercased and age/BMI recomputed rather than
// trusted from the legacy shape.
func TestMigrationFromPreviousSlot(t *testing.T) {
	root := t.TempDir()
	previous := filepath.Join(root, "previous")
	require.NoError(t, os.MkdirAll(previous, 0o755))

	writeJSON(t, filepath.Join(previous, "User.json"), `[
		{"email": "Mixed.Case@Example.com", "access_group": "Site:melbourne", "kind": "Manual"}
	]`)
	writeJSON(t, filepath.Join(previous, "Participant.json"), `[
		{"pid": "MEL-001", "site": "melbourne", "date_screening": "2026-01-01", "date_birth": "1990-01-01",
		 "height_cm": 170, "weight_kg": 70}
	]`)
	for _, name := range []string{
		"Token", "VaccinationHistory", "Schedule", "WeeklySurvey", "Withdrawn",
		"Virus", "Serology", "Consent", "YearChange", "Bleed",
	} {
		writeJSON(t, filepath.Join(previous, name+".json"), "[]")
	}

	s, err := store.Initialise(root, "admin@example.com")
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(root, "current"))
	require.NoError(t, err, "current/ must exist after migration")
	_, err = os.Stat(previous)
	require.NoError(t, err, "previous/ must still exist and be untouched after migration")

	report := s.FindTableIssues(types.NewUser("admin@example.com", types.AdminAccess(), types.UserManual, false))
	assert.Empty(t, report.DuplicateUserEmails)
}
