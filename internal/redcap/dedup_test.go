package redcap_test

import (
	"testing"

	"github.com/khvorov45/hcwstudyapp/internal/redcap"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeYearsKeepsFirstYearOnKeyCollision(t *testing.T) {
	emailFirst, emailSecond := "first-year@example.com", "second-year@example.com"
	first := []types.Participant{
		{Pid: "MEL-001", Site: "melbourne", Email: &emailFirst},
		{Pid: "MEL-003", Site: "melbourne"},
	}
	second := []types.Participant{
		{Pid: "MEL-001", Site: "melbourne", Email: &emailSecond}, // collides with first year
		{Pid: "MEL-002", Site: "melbourne"},                      // new in the second year
	}

	merged := redcap.MergeYears(first, second)
	require.Len(t, merged, 3)

	byPid := make(map[string]types.Participant, len(merged))
	for _, p := range merged {
		byPid[p.Pid] = p
	}

	require.Contains(t, byPid, "MEL-001")
	require.NotNil(t, byPid["MEL-001"].Email)
	assert.Equal(t, emailFirst, *byPid["MEL-001"].Email, "first year's row wins a key collision")
	assert.Contains(t, byPid, "MEL-002")
	assert.Contains(t, byPid, "MEL-003")

	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i-1].PK().Less(merged[i].PK()), "merged sequence stays sorted by primary key")
	}
}

func TestMergeYearsHandlesEmptyFirstYear(t *testing.T) {
	second := []types.Participant{{Pid: "SYD-001", Site: "sydney"}}
	merged := redcap.MergeYears([]types.Participant(nil), second)
	require.Len(t, merged, 1)
	assert.Equal(t, "SYD-001", merged[0].Pid)
}
