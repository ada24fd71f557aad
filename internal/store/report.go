package store

import (
	"sort"

	"github.com/khvorov45/hcwstudyapp/internal/table"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// Report is the data-quality report described in spec §4.7: every
// primary-key duplication and foreign-key dangle currently present in
// the store, scoped to the rows the requester is allowed to see.
type Report struct {
	DuplicateParticipantEmails []table.KeyIssue[types.Participant]
	DuplicateUserEmails        []table.KeyIssue[types.User]

	DanglingVaccinationHistory []table.KeyIssue[types.VaccinationHistory]
	DanglingSchedule           []table.KeyIssue[types.Schedule]
	DanglingWeeklySurvey       []table.KeyIssue[types.WeeklySurvey]
	DanglingWithdrawn          []table.KeyIssue[types.Withdrawn]
	DanglingSerologyPid        []table.KeyIssue[types.Serology]
	DanglingSerologyVirus      []table.KeyIssue[types.Serology]
	DanglingConsent            []table.KeyIssue[types.Consent]
	DanglingBleed              []table.KeyIssue[types.Bleed]

	ConflictingConsentGroups []ConsentGroupConflict
	DuplicateYearChanges     []table.KeyIssue[types.YearChange]
}

// ConsentGroupConflict reports a (pid, year, disease) triple for which
// more than one distinct, non-nil Group value is on file across its
// Form rows — the cross-form conflict spec §4.7 calls out separately
// from plain key duplication, since (pid, year, disease, form) is
// already the Consent primary key and two Form rows are not a PK clash.
type ConsentGroupConflict struct {
	Pid     string
	Year    int
	Disease string
	Groups  []string
}

// siteIndex maps every known pid to its participant's site, for the
// purposes of Site(_)-scoping a report.
func (s *Store) siteIndex() map[string]string {
	idx := make(map[string]string, s.participants.Len())
	for _, p := range s.participants.Rows() {
		idx[p.Pid] = p.Site
	}
	return idx
}

// scopedSubset returns a predicate over rows carrying a pid, true when
// that pid is visible to requester: always true for Unrestricted/Admin,
// and site-matching for a Site(_) requester (a pid with no resolvable
// site is excluded, matching access.SiteFilter's rule).
func scopedSubset[R any](requester types.User, pidOf func(R) string, siteOf map[string]string) func(R) bool {
	site, scoped := requester.AccessGroup.Site()
	if !scoped {
		return func(R) bool { return true }
	}
	return func(r R) bool {
		pid := pidOf(r)
		if pid == "" {
			return false
		}
		rowSite, ok := siteOf[pid]
		return ok && rowSite == site
	}
}

// FindTableIssues computes the full data-quality report, scoped to
// requester's access group.
func (s *Store) FindTableIssues(requester types.User) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	siteOf := s.siteIndex()
	participantKeys := keysOf(s.participants.Rows(), func(p types.Participant) types.Key { return p.PK() })
	virusKeys := keysOf(s.virus.Rows(), func(v types.Virus) types.Key { return v.PK() })

	r := Report{
		DuplicateParticipantEmails: participantEmailDuplicates(s.participants.Rows(), requester, siteOf),
		DuplicateUserEmails:        s.users.FindPkIssues(nil),

		DanglingVaccinationHistory: s.vaccinationHistory.FindFkIssues(
			scopedSubset(requester, func(v types.VaccinationHistory) string { return v.Pid }, siteOf),
			participantKeys, func(v types.VaccinationHistory) types.Key { return v.FK() }),
		DanglingSchedule: s.schedule.FindFkIssues(
			scopedSubset(requester, func(v types.Schedule) string { return v.Pid }, siteOf),
			participantKeys, func(v types.Schedule) types.Key { return v.FK() }),
		DanglingWeeklySurvey: s.weeklySurvey.FindFkIssues(
			scopedSubset(requester, func(v types.WeeklySurvey) string { return v.Pid }, siteOf),
			participantKeys, func(v types.WeeklySurvey) types.Key { return v.FK() }),
		DanglingWithdrawn: s.withdrawn.FindFkIssues(
			scopedSubset(requester, func(v types.Withdrawn) string { return v.Pid }, siteOf),
			participantKeys, func(v types.Withdrawn) types.Key { return v.FK() }),
		DanglingSerologyPid: s.serology.FindFkIssues(
			scopedSubset(requester, func(v types.Serology) string { return v.Pid }, siteOf),
			participantKeys, func(v types.Serology) types.Key { return v.FKPid() }),
		DanglingSerologyVirus: s.serology.FindFkIssues(
			scopedSubset(requester, func(v types.Serology) string { return v.Pid }, siteOf),
			virusKeys, func(v types.Serology) types.Key { return v.FKVirus() }),
		DanglingConsent: s.consent.FindFkIssues(
			scopedSubset(requester, func(v types.Consent) string { return v.Pid }, siteOf),
			participantKeys, func(v types.Consent) types.Key { return v.FK() }),
		DanglingBleed: s.bleed.FindFkIssues(
			scopedSubset(requester, func(v types.Bleed) string { return v.Pid }, siteOf),
			participantKeys, func(v types.Bleed) types.Key { return v.FK() }),

		ConflictingConsentGroups: consentGroupConflicts(s.consent.Rows(), requester, siteOf),
		DuplicateYearChanges: yearChangeDuplicates(s.yearChange.Rows(),
			scopedSubset(requester, types.YearChange.PidOrEmpty, siteOf)),
	}
	return r
}

// yearChangeDuplicates groups YearChange rows sharing (pid, year) — a
// distinct key from the table's own primary key (record_id, year), since
// two reconciliation records from different record_ids can point at the
// same participant-year (spec §4.7: "reported by record_id").
func yearChangeDuplicates(rows []types.YearChange, subset func(types.YearChange) bool) []table.KeyIssue[types.YearChange] {
	var filtered []types.YearChange
	for _, r := range rows {
		if r.Pid == nil || *r.Pid == "" {
			continue
		}
		if !subset(r) {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		ki, kj := types.PidYearKey{Pid: *filtered[i].Pid, Year: filtered[i].Year}, types.PidYearKey{Pid: *filtered[j].Pid, Year: filtered[j].Year}
		return ki.Less(kj)
	})

	var issues []table.KeyIssue[types.YearChange]
	i := 0
	for i < len(filtered) {
		j := i + 1
		for j < len(filtered) && *filtered[j].Pid == *filtered[i].Pid && filtered[j].Year == filtered[i].Year {
			j++
		}
		if j-i > 1 {
			group := make([]types.YearChange, j-i)
			copy(group, filtered[i:j])
			issues = append(issues, table.KeyIssue[types.YearChange]{
				Value: types.PidYearKey{Pid: *filtered[i].Pid, Year: filtered[i].Year},
				Rows:  group,
			})
		}
		i = j
	}
	return issues
}

func keysOf[R any](rows []R, pk func(R) types.Key) []types.Key {
	out := make([]types.Key, len(rows))
	for i, r := range rows {
		out[i] = pk(r)
	}
	return out
}

// participantEmailDuplicates finds Participant rows sharing a non-empty
// email, a different issue from PK duplication since Participant's PK is
// pid, not email.
func participantEmailDuplicates(rows []types.Participant, requester types.User, siteOf map[string]string) []table.KeyIssue[types.Participant] {
	subset := scopedSubset(requester, func(p types.Participant) string { return p.Pid }, siteOf)
	byEmail := make(map[string][]types.Participant)
	var order []string
	for _, p := range rows {
		if !subset(p) || p.Email == nil || *p.Email == "" {
			continue
		}
		key := *p.Email
		if _, seen := byEmail[key]; !seen {
			order = append(order, key)
		}
		byEmail[key] = append(byEmail[key], p)
	}
	sort.Strings(order)

	var issues []table.KeyIssue[types.Participant]
	for _, email := range order {
		group := byEmail[email]
		if len(group) > 1 {
			issues = append(issues, table.KeyIssue[types.Participant]{
				Value: types.StringKey(email),
				Rows:  group,
			})
		}
	}
	return issues
}

// consentGroupConflicts groups Consent rows by (pid, year, disease) and
// reports any group whose non-nil Group values are not all identical.
func consentGroupConflicts(rows []types.Consent, requester types.User, siteOf map[string]string) []ConsentGroupConflict {
	subset := scopedSubset(requester, func(c types.Consent) string { return c.Pid }, siteOf)

	type triple struct {
		pid     string
		year    int
		disease string
	}
	groups := make(map[triple][]string)
	var order []triple
	for _, c := range rows {
		if !subset(c) || c.Group == nil {
			continue
		}
		t := triple{pid: c.Pid, year: c.Year, disease: c.Disease}
		if _, seen := groups[t]; !seen {
			order = append(order, t)
		}
		groups[t] = append(groups[t], *c.Group)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].pid != order[j].pid {
			return order[i].pid < order[j].pid
		}
		if order[i].year != order[j].year {
			return order[i].year < order[j].year
		}
		return order[i].disease < order[j].disease
	})

	var out []ConsentGroupConflict
	for _, t := range order {
		values := groups[t]
		distinct := map[string]bool{}
		for _, v := range values {
			distinct[v] = true
		}
		if len(distinct) > 1 {
			uniq := make([]string, 0, len(distinct))
			for v := range distinct {
				uniq = append(uniq, v)
			}
			sort.Strings(uniq)
			out = append(out, ConsentGroupConflict{Pid: t.pid, Year: t.year, Disease: t.disease, Groups: uniq})
		}
	}
	return out
}
