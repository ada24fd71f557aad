package types_test

import (
	"testing"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNewUserLowercasesEmail(t *testing.T) {
	u := types.NewUser("MIXED.Case@Example.COM", types.AdminAccess(), types.UserManual, false)
	assert.Equal(t, "mixed.case@example.com", u.Email)
}

func TestTokenIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	apiToken := types.Token{Kind: types.TokenApi, Expires: nil}
	assert.False(t, apiToken.IsExpired(now), "api tokens never expire")

	expiredSession := types.Token{Kind: types.TokenSession, Expires: &past}
	assert.True(t, expiredSession.IsExpired(now))

	liveSession := types.Token{Kind: types.TokenSession, Expires: &future}
	assert.False(t, liveSession.IsExpired(now))
}

func TestDeriveFieldsComputesAgeAndBmi(t *testing.T) {
	birth := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	screening := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	height, weight := 170.0, 70.0

	p := types.Participant{DateBirth: &birth, DateScreening: &screening, HeightCm: &height, WeightKg: &weight}
	p.DeriveFields()

	require_ := assert.New(t)
	require_.NotNil(p.AgeAtRecruitment)
	require_.InDelta(36.0, *p.AgeAtRecruitment, 0.1)
	require_.NotNil(p.Bmi)
	require_.InDelta(24.22, *p.Bmi, 0.01)
}

func TestDeriveFieldsNilWithoutSourceData(t *testing.T) {
	p := types.Participant{}
	p.DeriveFields()
	assert.Nil(t, p.AgeAtRecruitment)
	assert.Nil(t, p.Bmi)
}

func TestYearChangePidOrEmpty(t *testing.T) {
	pid := "MEL-001"
	withPid := types.YearChange{RecordID: "1", Year: 2026, Pid: &pid}
	withoutPid := types.YearChange{RecordID: "2", Year: 2026, Pid: nil}

	assert.Equal(t, "MEL-001", withPid.PidOrEmpty())
	assert.Equal(t, "", withoutPid.PidOrEmpty())
}
