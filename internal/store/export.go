package store

import (
	"github.com/khvorov45/hcwstudyapp/internal/access"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// ExportParticipants returns the Participant rows visible to requester,
// site-filtered the same way FindTableIssues scopes its dangling-row
// checks, with one further projection layered on top: when requester's
// User.DeidentifiedExport is set, direct-identifying fields (email, date
// of birth, date of screening) are dropped from every returned row. This
// is the "deidentified data export" the User.deidentified_export flag
// gates — a column projection applied at read time, never persisted.
func (s *Store) ExportParticipants(requester types.User) []types.Participant {
	s.mu.Lock()
	rows := make([]types.Participant, s.participants.Len())
	copy(rows, s.participants.Rows())
	s.mu.Unlock()

	siteOf := make(map[string]string, len(rows))
	for _, p := range rows {
		siteOf[p.Pid] = p.Site
	}
	scoped := access.SiteFilter(rows, requester, func(p types.Participant) string { return p.Pid },
		func(pid string) (string, bool) { site, ok := siteOf[pid]; return site, ok })

	if !requester.DeidentifiedExport {
		return scoped
	}
	out := make([]types.Participant, len(scoped))
	for i, p := range scoped {
		p.Email = nil
		p.DateBirth = nil
		p.DateScreening = nil
		out[i] = p
	}
	return out
}
