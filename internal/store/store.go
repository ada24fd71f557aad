// Package store implements the Db described in spec §4.2: the sole
// mutator of the table set, the root-directory lifecycle, the
// cross-table invariants (token purge cascading from a user sync), and
// the public operations every request handler composes.
package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/lockdir"
	"github.com/khvorov45/hcwstudyapp/internal/table"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// Table name constants, in the fixed persistence order spec §5 requires
// across a single locked section: User, Token, Participant,
// VaccinationHistory, Schedule, WeeklySurvey, Withdrawn, Virus,
// Serology, Consent, YearChange, Bleed.
const (
	TableUser               = "User"
	TableToken              = "Token"
	TableParticipant        = "Participant"
	TableVaccinationHistory = "VaccinationHistory"
	TableSchedule           = "Schedule"
	TableWeeklySurvey       = "WeeklySurvey"
	TableWithdrawn          = "Withdrawn"
	TableVirus              = "Virus"
	TableSerology           = "Serology"
	TableConsent            = "Consent"
	TableYearChange         = "YearChange"
	TableBleed              = "Bleed"
)

// Store is the sole mutator of the table set. Every exported method
// takes the store-wide mutex for its whole critical section, per spec
// §5's coarse-lock design.
type Store struct {
	mu              sync.Mutex
	root            string
	logger          *slog.Logger
	lock            *lockdir.Lock
	instrumentation Instrumentation

	users              *table.Table[types.User]
	tokens             *table.Table[types.Token]
	participants       *table.Table[types.Participant]
	vaccinationHistory *table.Table[types.VaccinationHistory]
	schedule           *table.Table[types.Schedule]
	weeklySurvey       *table.Table[types.WeeklySurvey]
	withdrawn          *table.Table[types.Withdrawn]
	virus              *table.Table[types.Virus]
	serology           *table.Table[types.Serology]
	consent            *table.Table[types.Consent]
	yearChange         *table.Table[types.YearChange]
	bleed              *table.Table[types.Bleed]
}

// Instrumentation receives mutation and sync counts as the Store applies
// them. A nil Instrumentation (the default) means no metrics are
// recorded; callers that want telemetry supply one built over the
// application's configured meter (see internal/telemetry) via WithInstrumentation.
type Instrumentation interface {
	IncMutation(table string)
	IncRowsSynced(table string, n int)
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithInstrumentation wires a metrics sink into every subsequent mutation.
func WithInstrumentation(i Instrumentation) Option {
	return func(s *Store) { s.instrumentation = i }
}

func (s *Store) recordMutation(table string) {
	if s.instrumentation != nil {
		s.instrumentation.IncMutation(table)
	}
}

func (s *Store) recordSync(table string, n int) {
	if s.instrumentation != nil {
		s.instrumentation.IncRowsSynced(table, n)
	}
}

// Initialise resolves the directory state under root, opens every table
// handle, migrates a Previous-state store to Current, and seeds the
// default admin user when the User table is empty after load (spec §4.2).
func Initialise(root, defaultAdminEmail string, opts ...Option) (*Store, error) {
	s := &Store{root: root, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errs.IO("store.initialise mkdir root", err)
	}

	lock, err := lockdir.Acquire(filepath.Join(root, ".lock"))
	if err != nil {
		return nil, errs.IO("store.initialise acquire directory lock", err)
	}
	s.lock = lock

	state, err := resolveDirState(root)
	if err != nil {
		return nil, errs.IO("store.initialise resolve state", err)
	}

	switch state {
	case stateCurrent:
		s.logger.Info("store state resolved", slog.String("state", "current"))
		if err := s.openCurrent(filepath.Join(root, currentDirName)); err != nil {
			return nil, err
		}
		if err := s.readAll(); err != nil {
			return nil, err
		}
	case statePrevious:
		s.logger.Info("store state resolved", slog.String("state", "previous"))
		if err := s.migrateFromPrevious(filepath.Join(root, previousDirName), filepath.Join(root, currentDirName)); err != nil {
			return nil, err
		}
	case stateNone:
		s.logger.Info("store state resolved", slog.String("state", "none"))
		currentDir := filepath.Join(root, currentDirName)
		if err := os.MkdirAll(currentDir, 0o755); err != nil {
			return nil, errs.IO("store.initialise mkdir current", err)
		}
		if err := s.openCurrent(currentDir); err != nil {
			return nil, err
		}
	}

	if s.users.Len() == 0 {
		admin := types.NewUser(defaultAdminEmail, types.AdminAccess(), types.UserManual, false)
		s.users.Append(admin)
		if err := s.users.Write(); err != nil {
			return nil, err
		}
		s.logger.Info("seeded default admin", slog.String("email", admin.Email))
	}

	return s, nil
}

// Close releases the store's exclusive hold on its root directory. It
// does not flush anything: every mutation already persists before
// returning.
func (s *Store) Close() error {
	return s.lock.Release()
}

func (s *Store) openCurrent(dir string) (err error) {
	if s.users, err = table.Open[types.User](TableUser, dir); err != nil {
		return err
	}
	if s.tokens, err = table.Open[types.Token](TableToken, dir); err != nil {
		return err
	}
	if s.participants, err = table.Open[types.Participant](TableParticipant, dir); err != nil {
		return err
	}
	if s.vaccinationHistory, err = table.Open[types.VaccinationHistory](TableVaccinationHistory, dir); err != nil {
		return err
	}
	if s.schedule, err = table.Open[types.Schedule](TableSchedule, dir); err != nil {
		return err
	}
	if s.weeklySurvey, err = table.Open[types.WeeklySurvey](TableWeeklySurvey, dir); err != nil {
		return err
	}
	if s.withdrawn, err = table.Open[types.Withdrawn](TableWithdrawn, dir); err != nil {
		return err
	}
	if s.virus, err = table.Open[types.Virus](TableVirus, dir); err != nil {
		return err
	}
	if s.serology, err = table.Open[types.Serology](TableSerology, dir); err != nil {
		return err
	}
	if s.consent, err = table.Open[types.Consent](TableConsent, dir); err != nil {
		return err
	}
	if s.yearChange, err = table.Open[types.YearChange](TableYearChange, dir); err != nil {
		return err
	}
	if s.bleed, err = table.Open[types.Bleed](TableBleed, dir); err != nil {
		return err
	}
	return nil
}

func (s *Store) readAll() error {
	for _, r := range []interface{ Read() error }{
		s.users, s.tokens, s.participants, s.vaccinationHistory, s.schedule,
		s.weeklySurvey, s.withdrawn, s.virus, s.serology, s.consent, s.yearChange, s.bleed,
	} {
		if err := r.Read(); err != nil {
			return err
		}
	}
	return nil
}

// writeAll persists every table in the fixed order spec §5 mandates.
func (s *Store) writeAll() error {
	for _, w := range []interface{ Write() error }{
		s.users, s.tokens, s.participants, s.vaccinationHistory, s.schedule,
		s.weeklySurvey, s.withdrawn, s.virus, s.serology, s.consent, s.yearChange, s.bleed,
	} {
		if err := w.Write(); err != nil {
			return err
		}
	}
	return nil
}

// now is overridable in tests so expiry logic can be exercised without
// sleeping.
var now = func() time.Time { return time.Now().UTC() }
