package redcap_test

import (
	"testing"

	"github.com/khvorov45/hcwstudyapp/internal/redcap"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalisePid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "already canonical", raw: "MEL-001", want: "MEL-001"},
		{name: "lowercase no separator", raw: "mel1", want: "MEL-001"},
		{name: "underscore separator", raw: "syd_042", want: "SYD-042"},
		{name: "trailing group suffix ignored", raw: "mel001b", want: "MEL-001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := redcap.NormalisePid(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalisePidRejectsUnrecognisedShape(t *testing.T) {
	_, err := redcap.NormalisePid("???")
	assert.Error(t, err)
}

func TestToUserDeidentifiedExportOnlyOnCodeTwo(t *testing.T) {
	rec := redcap.Record{
		"email":           "Researcher@Example.COM",
		"data_access_group": "melbourne",
		"data_export":     "2",
	}
	u, err := redcap.ToUser(rec)
	require.NoError(t, err)
	assert.Equal(t, "researcher@example.com", u.Email)
	assert.True(t, u.DeidentifiedExport)
	assert.True(t, u.AccessGroup.IsSite())

	rec["data_export"] = "1"
	u, err = redcap.ToUser(rec)
	require.NoError(t, err)
	assert.False(t, u.DeidentifiedExport)
}

func TestToUserUnrestrictedWhenDataAccessGroupEmpty(t *testing.T) {
	rec := redcap.Record{
		"email":             "admin@example.com",
		"data_access_group": "",
		"data_export":       "1",
	}
	u, err := redcap.ToUser(rec)
	require.NoError(t, err)
	assert.True(t, u.AccessGroup.IsUnrestricted())
}

func TestToParticipantDerivesBmi(t *testing.T) {
	rec := redcap.Record{
		"pid":                       "mel001",
		"redcap_data_access_group":  "melbourne",
		"email":                     "",
		"date_screening":            "2026-01-01",
		"a2_dob":                    "1990-01-01",
		"a5_height":                 "170",
		"a6_weight":                 "70",
	}
	p, err := redcap.ToParticipant(rec)
	require.NoError(t, err)
	assert.Equal(t, "MEL-001", p.Pid)
	require.NotNil(t, p.Bmi)
	assert.InDelta(t, 70/(1.7*1.7), *p.Bmi, 0.001)
}

func TestBuildPidIndexSkipsUnreconciledRecords(t *testing.T) {
	idx, err := redcap.BuildPidIndex([]redcap.Record{
		{"record_id": "1", "pid": "mel001"},
		{"record_id": "2", "pid": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, "MEL-001", idx["1"])
	_, ok := idx["2"]
	assert.False(t, ok)
}

func TestToSerologySkipsUnassayedSample(t *testing.T) {
	rec := redcap.Record{"pid": "mel001", "titre_h3n2_0": nil}
	_, err := redcap.ToSerology(rec, 2020, 0, "h3n2")
	assert.ErrorIs(t, err, redcap.ErrRowNotApplicable)

	rec["titre_h3n2_0"] = "40"
	s, err := redcap.ToSerology(rec, 2020, 0, "h3n2")
	require.NoError(t, err)
	assert.Equal(t, "MEL-001", s.Pid)
	assert.Equal(t, 40.0, s.Titre)
}

func TestToConsentSkipsWhenNotGiven(t *testing.T) {
	rec := redcap.Record{"pid": "mel001", "consent_influenza_main_given": "0"}
	_, err := redcap.ToConsent(rec, 2020, "influenza", "main")
	assert.ErrorIs(t, err, redcap.ErrRowNotApplicable)

	rec["consent_influenza_main_given"] = "1"
	rec["consent_influenza_main_group"] = "A"
	c, err := redcap.ToConsent(rec, 2020, "influenza", "main")
	require.NoError(t, err)
	require.NotNil(t, c.Group)
	assert.Equal(t, "A", *c.Group)
}

func TestToBleedSkipsWhenNotCollected(t *testing.T) {
	rec := redcap.Record{"pid": "mel001", "bleed_0_collected": nil}
	_, err := redcap.ToBleed(rec, 2020, 0)
	assert.ErrorIs(t, err, redcap.ErrRowNotApplicable)

	rec["bleed_0_collected"] = "1"
	b, err := redcap.ToBleed(rec, 2020, 0)
	require.NoError(t, err)
	assert.Equal(t, "MEL-001", b.Pid)
}

func TestToYearChangeResolvesPidFromIndex(t *testing.T) {
	idx := redcap.PidIndex{"7": "MEL-001"}

	yc, err := redcap.ToYearChange(redcap.Record{"record_id": "7"}, 2021, idx)
	require.NoError(t, err)
	require.NotNil(t, yc.Pid)
	assert.Equal(t, "MEL-001", *yc.Pid)

	yc, err = redcap.ToYearChange(redcap.Record{"record_id": "unknown"}, 2021, idx)
	require.NoError(t, err)
	assert.Nil(t, yc.Pid)
}

func TestPidFromTreatsEmptyPidAsNotApplicable(t *testing.T) {
	_, err := redcap.ToParticipant(redcap.Record{
		"pid":                      "",
		"redcap_data_access_group": "melbourne",
		"email":                    nil,
		"date_screening":           nil,
		"a2_dob":                   nil,
		"a5_height":                nil,
		"a6_weight":                nil,
	})
	assert.ErrorIs(t, err, redcap.ErrRowNotApplicable)
}

func TestToSwabResultsPreservesHistoricalAh1DoubleMapping(t *testing.T) {
	rec := redcap.Record{
		"swab_res___1": "1", "swab_res___2": "0", "swab_res___3": "1", "swab_res___4": "0",
		"swab_res___5": "0", "swab_res___6": "0", "swab_res___7": "0", "swab_res___8": "0",
		"swab_res___9": "0", "swab_res___10": "0", "swab_res___11": "0", "swab_res___12": "0",
		"swab_res___13": "0", "swab_res___14": "0", "swab_res___15": "0",
	}
	results, err := redcap.ToSwabResults(rec)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, types.SwabInfluenzaAh1, results[0].Kind)
	assert.Equal(t, types.SwabInfluenzaAh1, results[1].Kind)
}

func TestToSwabResultsOtherCarriesFreeText(t *testing.T) {
	rec := redcap.Record{
		"swab_res___1": "0", "swab_res___2": "0", "swab_res___3": "0", "swab_res___4": "0",
		"swab_res___5": "0", "swab_res___6": "0", "swab_res___7": "0", "swab_res___8": "0",
		"swab_res___9": "0", "swab_res___10": "0", "swab_res___11": "0", "swab_res___12": "0",
		"swab_res___13": "0", "swab_res___14": "0", "swab_res___15": "1",
		"swab_res_other": "parainfluenza unspecified",
	}
	results, err := redcap.ToSwabResults(rec)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.SwabOther, results[0].Kind)
	assert.Equal(t, "parainfluenza unspecified", results[0].Text)
}
