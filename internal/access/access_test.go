package access_test

import (
	"testing"

	"github.com/khvorov45/hcwstudyapp/internal/access"
	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAtLeast(t *testing.T) {
	admin := types.NewUser("admin@example.com", types.AdminAccess(), types.UserManual, false)
	unrestricted := types.NewUser("unrestricted@example.com", types.UnrestrictedAccess(), types.UserManual, false)
	siteMel := types.NewUser("site@example.com", types.SiteAccess("melbourne"), types.UserManual, false)

	assert.NoError(t, access.RequireAtLeast(admin, types.AdminAccess()))
	assert.NoError(t, access.RequireAtLeast(admin, types.UnrestrictedAccess()))
	assert.NoError(t, access.RequireAtLeast(unrestricted, types.UnrestrictedAccess()))

	err := access.RequireAtLeast(unrestricted, types.AdminAccess())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnauthorized, errs.VariantInsufficientScope))

	err = access.RequireAtLeast(siteMel, types.UnrestrictedAccess())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindUnauthorized, errs.VariantInsufficientScope))
}

type row struct {
	Pid string
}

func TestSiteFilterPassesAdminAndUnrestrictedUnchanged(t *testing.T) {
	rows := []row{{Pid: "MEL-001"}, {Pid: "SYD-001"}}
	siteOf := func(pid string) (string, bool) {
		if pid == "MEL-001" {
			return "melbourne", true
		}
		return "sydney", true
	}

	admin := types.NewUser("admin@example.com", types.AdminAccess(), types.UserManual, false)
	out := access.SiteFilter(rows, admin, func(r row) string { return r.Pid }, siteOf)
	assert.Equal(t, rows, out)
}

func TestSiteFilterRestrictsToMatchingSite(t *testing.T) {
	rows := []row{{Pid: "MEL-001"}, {Pid: "SYD-001"}}
	siteOf := func(pid string) (string, bool) {
		if pid == "MEL-001" {
			return "melbourne", true
		}
		return "sydney", true
	}

	melbourneUser := types.NewUser("site@example.com", types.SiteAccess("melbourne"), types.UserManual, false)
	out := access.SiteFilter(rows, melbourneUser, func(r row) string { return r.Pid }, siteOf)
	require.Len(t, out, 1)
	assert.Equal(t, "MEL-001", out[0].Pid)
}

func TestSiteFilterDropsRowsWithNoPid(t *testing.T) {
	rows := []row{{Pid: ""}}
	siteOf := func(string) (string, bool) { return "", false }

	melbourneUser := types.NewUser("site@example.com", types.SiteAccess("melbourne"), types.UserManual, false)
	out := access.SiteFilter(rows, melbourneUser, func(r row) string { return r.Pid }, siteOf)
	assert.Empty(t, out)
}

func TestNoFilterIsIdentity(t *testing.T) {
	rows := []row{{Pid: "MEL-001"}}
	melbourneUser := types.NewUser("site@example.com", types.SiteAccess("melbourne"), types.UserManual, false)
	assert.Equal(t, rows, access.NoFilter(rows, melbourneUser))
}
