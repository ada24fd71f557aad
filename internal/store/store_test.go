package store_test

import (
	"testing"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Initialise(dir, "admin@example.com")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInitialiseSeedsDefaultAdmin(t *testing.T) {
	s := openTestStore(t)

	issued, err := s.InsertToken("admin@example.com", types.TokenApi, nil, 32)
	require.NoError(t, err)

	user, err := s.TokenVerify(issued.Secret)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.True(t, user.AccessGroup.IsAdmin())
}

func TestInsertUserRejectsDuplicateEmailCaseInsensitively(t *testing.T) {
	s := openTestStore(t)

	_, err := s.InsertUser("Researcher@Example.com", types.SiteAccess("melbourne"), false)
	require.NoError(t, err)

	_, err = s.InsertUser("researcher@example.com", types.UnrestrictedAccess(), false)
	require.Error(t, err)
	var e *errs.Error
	require.True(t, errs.As(err, &e))
	assert.Equal(t, errs.KindConflict, e.Kind)
	assert.Equal(t, errs.VariantPrimaryKey, e.Variant)
}

func TestTokenHappyPathAndExpiry(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertUser("user@example.com", types.UnrestrictedAccess(), false)
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	live, err := s.InsertToken("user@example.com", types.TokenSession, &future, 32)
	require.NoError(t, err)
	user, err := s.TokenVerify(live.Secret)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)

	past := time.Now().UTC().Add(-time.Hour)
	issued, err := s.InsertToken("user@example.com", types.TokenSession, &past, 32)
	require.NoError(t, err)

	_, err = s.TokenVerify(issued.Secret)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnauthorized, errs.VariantTokenExpired))
}

func TestTokenVerifyRejectsUnknownSecret(t *testing.T) {
	s := openTestStore(t)
	_, err := s.TokenVerify("not-a-real-secret")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnauthorized, errs.VariantNoSuchToken))
}

func TestTokenRefreshEnforcesSessionKind(t *testing.T) {
	s := openTestStore(t)
	_, err := s.InsertUser("user@example.com", types.UnrestrictedAccess(), false)
	require.NoError(t, err)

	apiToken, err := s.InsertToken("user@example.com", types.TokenApi, nil, 32)
	require.NoError(t, err)

	_, err = s.TokenRefresh(apiToken.Secret, time.Now().UTC().Add(time.Hour), 32)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindConflict, errs.VariantWrongTokenKind))

	expires := time.Now().UTC().Add(time.Hour)
	sessionToken, err := s.InsertToken("user@example.com", types.TokenSession, &expires, 32)
	require.NoError(t, err)

	refreshed, err := s.TokenRefresh(sessionToken.Secret, time.Now().UTC().Add(2*time.Hour), 32)
	require.NoError(t, err)
	assert.NotEqual(t, sessionToken.Secret, refreshed.Secret)

	_, err = s.TokenVerify(sessionToken.Secret)
	require.Error(t, err, "the old secret must no longer verify once refreshed")
}

func TestSyncRedcapUsersCascadesTokenPurge(t *testing.T) {
	s := openTestStore(t)

	redcapUser := types.NewUser("redcap@example.com", types.SiteAccess("sydney"), types.UserRedcap, false)
	require.NoError(t, s.SyncRedcapUsers([]types.User{redcapUser}))

	issued, err := s.InsertToken("redcap@example.com", types.TokenApi, nil, 32)
	require.NoError(t, err)

	// A second sync that drops redcap@example.com must purge its token too.
	require.NoError(t, s.SyncRedcapUsers(nil))

	_, err = s.TokenVerify(issued.Secret)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnauthorized, errs.VariantNoSuchToken))
}

func TestFindTableIssuesScopesBySite(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SyncRedcapParticipants([]types.Participant{
		{Pid: "MEL-001", Site: "melbourne"},
		{Pid: "SYD-001", Site: "sydney"},
	}))
	require.NoError(t, s.SyncRedcapSchedule([]types.Schedule{
		{Pid: "MEL-001", Year: 2026, Day: 0},
		{Pid: "SYD-001", Year: 2026, Day: 0},
		{Pid: "GHOST-001", Year: 2026, Day: 0}, // dangling: no matching participant
	}))

	admin := types.NewUser("admin@example.com", types.AdminAccess(), types.UserManual, false)
	adminReport := s.FindTableIssues(admin)
	assert.Len(t, adminReport.DanglingSchedule, 1)
	assert.Equal(t, "GHOST-001", adminReport.DanglingSchedule[0].Rows[0].Pid)

	melbourneUser := types.NewUser("site@example.com", types.SiteAccess("melbourne"), types.UserManual, false)
	siteReport := s.FindTableIssues(melbourneUser)
	assert.Empty(t, siteReport.DanglingSchedule, "a site-scoped requester never sees another site's dangling rows")
}

func TestFindTableIssuesDetectsConsentGroupConflict(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SyncRedcapParticipants([]types.Participant{{Pid: "MEL-001", Site: "melbourne"}}))

	groupA, groupB := "A", "B"
	require.NoError(t, s.SyncRedcapConsent([]types.Consent{
		{Pid: "MEL-001", Year: 2026, Disease: "influenza", Form: "initial", Group: &groupA},
		{Pid: "MEL-001", Year: 2026, Disease: "influenza", Form: "followup", Group: &groupB},
	}))

	admin := types.NewUser("admin@example.com", types.AdminAccess(), types.UserManual, false)
	report := s.FindTableIssues(admin)
	require.Len(t, report.ConflictingConsentGroups, 1)
	assert.Equal(t, []string{"A", "B"}, report.ConflictingConsentGroups[0].Groups)
}

func TestExportParticipantsAppliesDeidentificationAndSiteScope(t *testing.T) {
	s := openTestStore(t)
	email := "participant@example.com"
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SyncRedcapParticipants([]types.Participant{
		{Pid: "MEL-001", Site: "melbourne", Email: &email, DateBirth: &dob},
		{Pid: "SYD-001", Site: "sydney"},
	}))

	identifiedAdmin := types.NewUser("admin@example.com", types.AdminAccess(), types.UserManual, false)
	rows := s.ExportParticipants(identifiedAdmin)
	require.Len(t, rows, 2)

	deidentifiedAdmin := types.NewUser("deid@example.com", types.AdminAccess(), types.UserManual, true)
	rows = s.ExportParticipants(deidentifiedAdmin)
	for _, p := range rows {
		assert.Nil(t, p.Email)
		assert.Nil(t, p.DateBirth)
	}

	melbourneUser := types.NewUser("site@example.com", types.SiteAccess("melbourne"), types.UserManual, false)
	rows = s.ExportParticipants(melbourneUser)
	require.Len(t, rows, 1)
	assert.Equal(t, "MEL-001", rows[0].Pid)
}

func TestFindTableIssuesDetectsYearChangeDuplicates(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SyncRedcapParticipants([]types.Participant{{Pid: "MEL-001", Site: "melbourne"}}))

	pid := "MEL-001"
	require.NoError(t, s.SyncRedcapYearChange([]types.YearChange{
		{RecordID: "101", Year: 2026, Pid: &pid},
		{RecordID: "202", Year: 2026, Pid: &pid}, // same (pid, year) under a different record_id
		{RecordID: "303", Year: 2026, Pid: nil},  // no pid: never counted, per spec §9's open question
	}))

	admin := types.NewUser("admin@example.com", types.AdminAccess(), types.UserManual, false)
	report := s.FindTableIssues(admin)
	require.Len(t, report.DuplicateYearChanges, 1)
	assert.ElementsMatch(t, []string{"101", "202"},
		[]string{report.DuplicateYearChanges[0].Rows[0].RecordID, report.DuplicateYearChanges[0].Rows[1].RecordID})
}
