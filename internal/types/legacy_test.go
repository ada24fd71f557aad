package types_test

import (
	"testing"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertUserPreservesPkIdentityAfterLowercasing(t *testing.T) {
	legacy := types.LegacyUser{Email: "Mixed@Example.COM", AccessGroup: "Admin", Kind: "Manual"}
	current := types.ConvertUser(legacy)
	assert.Equal(t, "mixed@example.com", current.Email)
	assert.True(t, current.AccessGroup.IsAdmin())
}

func TestConvertUserParsesSitePrefixedAccessGroup(t *testing.T) {
	legacy := types.LegacyUser{Email: "site@example.com", AccessGroup: "Site:melbourne", Kind: "Redcap"}
	current := types.ConvertUser(legacy)
	site, ok := current.AccessGroup.Site()
	require.True(t, ok)
	assert.Equal(t, "melbourne", site)
	assert.Equal(t, types.UserRedcap, current.Kind)
}

func TestConvertParticipantRecomputesDerivedFields(t *testing.T) {
	height, weight := 170.0, 70.0
	legacy := types.LegacyParticipant{
		Pid:           "MEL-001",
		Site:          "melbourne",
		DateScreening: strPtr("2026-01-01"),
		DateBirth:     strPtr("1990-01-01"),
		HeightCm:      &height,
		WeightKg:      &weight,
	}
	parseDate := func(s string) *time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		d = d.UTC()
		return &d
	}

	current := types.ConvertParticipant(legacy, parseDate)
	assert.Equal(t, "MEL-001", current.Pid)
	require.NotNil(t, current.AgeAtRecruitment)
	assert.InDelta(t, 36.0, *current.AgeAtRecruitment, 0.1)
	require.NotNil(t, current.Bmi)
	assert.InDelta(t, 24.22, *current.Bmi, 0.01)
}

func strPtr(s string) *string { return &s }
