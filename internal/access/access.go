// Package access implements the per-request gating primitives described
// in spec §4.4. It knows nothing about how a user is resolved from a
// bearer secret (that's internal/store's token_verify) or how a row's
// pid maps to a participant's site (the caller supplies that as a
// callback) — it only knows the AccessGroup ordering and the shape of
// the two gates handlers compose: RequireAtLeast and SiteFilter.
package access

import (
	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// RequireAtLeast returns nil when user.AccessGroup is at or above level
// in the total order (Site(_) < Unrestricted < Admin), and
// Unauthorized(InsufficientAccess) otherwise. Per spec §7, a request
// below the required level returns 401, not 403 — intentional, to avoid
// distinguishing "exists but forbidden" from "doesn't exist" for an
// unprivileged caller.
func RequireAtLeast(user types.User, level types.AccessGroup) error {
	if user.AccessGroup.AtLeast(level) {
		return nil
	}
	return errs.Unauthorized(errs.VariantInsufficientScope, "insufficient access")
}

// SiteFilter restricts rows to those belonging to the requester's site
// when the requester is Site(s)-scoped; any other access group passes
// rows through unchanged. pidOf projects a row to the pid it concerns
// ("" for rows with no pid, e.g. a YearChange row whose pid is absent —
// such rows are silently dropped for a Site requester, matching the
// design-notes caveat that this is intended behaviour, not a bug).
// siteOf resolves a pid to its participant's site; a pid with no
// resolvable site is excluded.
func SiteFilter[R any](rows []R, user types.User, pidOf func(R) string, siteOf func(pid string) (string, bool)) []R {
	site, scoped := user.AccessGroup.Site()
	if !scoped {
		return rows
	}
	out := make([]R, 0, len(rows))
	for _, r := range rows {
		pid := pidOf(r)
		if pid == "" {
			continue
		}
		rowSite, ok := siteOf(pid)
		if ok && rowSite == site {
			out = append(out, r)
		}
	}
	return out
}

// NoFilter is the identity row filter for row types that carry no pid at all
// (e.g. Virus), documenting spec §4.4's "filtering is a no-op" case
// explicitly rather than leaving callers to notice it implicitly.
func NoFilter[R any](rows []R, _ types.User) []R { return rows }
