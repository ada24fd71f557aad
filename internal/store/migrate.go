package store

import (
	"os"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/table"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// parseLegacyDate parses the previous generation's plain YYYY-MM-DD date
// encoding. A malformed or empty string yields nil rather than an error:
// the previous slot's own writers already validated these on the way in.
func parseLegacyDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// migrateFromPrevious implements spec §4.3's migration branch: every
// table is read from the previous slot first, and current/ is only
// created on disk once all twelve reads have succeeded, so a failed read
// leaves no current/ behind. The conversions, which cannot fail, run
// after current/ and its empty table files exist; a crash during the
// final writes can leave current/ with some tables still empty.
func (s *Store) migrateFromPrevious(previousDir, currentDir string) error {
	legacyUsers, err := table.ReadLegacy[types.LegacyUser](previousDir, TableUser)
	if err != nil {
		return err
	}
	legacyParticipants, err := table.ReadLegacy[types.LegacyParticipant](previousDir, TableParticipant)
	if err != nil {
		return err
	}
	legacyTokens, err := table.ReadLegacy[types.Token](previousDir, TableToken)
	if err != nil {
		return err
	}
	legacyVaccinationHistory, err := table.ReadLegacy[types.VaccinationHistory](previousDir, TableVaccinationHistory)
	if err != nil {
		return err
	}
	legacySchedule, err := table.ReadLegacy[types.Schedule](previousDir, TableSchedule)
	if err != nil {
		return err
	}
	legacyWeeklySurvey, err := table.ReadLegacy[types.WeeklySurvey](previousDir, TableWeeklySurvey)
	if err != nil {
		return err
	}
	legacyWithdrawn, err := table.ReadLegacy[types.Withdrawn](previousDir, TableWithdrawn)
	if err != nil {
		return err
	}
	legacyVirus, err := table.ReadLegacy[types.Virus](previousDir, TableVirus)
	if err != nil {
		return err
	}
	legacySerology, err := table.ReadLegacy[types.Serology](previousDir, TableSerology)
	if err != nil {
		return err
	}
	legacyConsent, err := table.ReadLegacy[types.Consent](previousDir, TableConsent)
	if err != nil {
		return err
	}
	legacyYearChange, err := table.ReadLegacy[types.YearChange](previousDir, TableYearChange)
	if err != nil {
		return err
	}
	legacyBleed, err := table.ReadLegacy[types.Bleed](previousDir, TableBleed)
	if err != nil {
		return err
	}

	// All reads succeeded; only now do we create current/ and open fresh,
	// empty handles onto it, then overwrite their in-memory rows with the
	// converted previous-slot data.
	if err := os.MkdirAll(currentDir, 0o755); err != nil {
		return errs.IO("store.migrate mkdir current", err)
	}
	if err := s.openCurrent(currentDir); err != nil {
		return err
	}

	table.Convert(s.users, legacyUsers, types.ConvertUser)
	table.Convert(s.participants, legacyParticipants, func(l types.LegacyParticipant) types.Participant {
		return types.ConvertParticipant(l, parseLegacyDate)
	})
	table.Convert(s.tokens, legacyTokens, table.Identity[types.Token])
	table.Convert(s.vaccinationHistory, legacyVaccinationHistory, table.Identity[types.VaccinationHistory])
	table.Convert(s.schedule, legacySchedule, table.Identity[types.Schedule])
	table.Convert(s.weeklySurvey, legacyWeeklySurvey, table.Identity[types.WeeklySurvey])
	table.Convert(s.withdrawn, legacyWithdrawn, table.Identity[types.Withdrawn])
	table.Convert(s.virus, legacyVirus, table.Identity[types.Virus])
	table.Convert(s.serology, legacySerology, table.Identity[types.Serology])
	table.Convert(s.consent, legacyConsent, table.Identity[types.Consent])
	table.Convert(s.yearChange, legacyYearChange, table.Identity[types.YearChange])
	table.Convert(s.bleed, legacyBleed, table.Identity[types.Bleed])

	if err := s.writeAll(); err != nil {
		return err
	}

	return nil
}
