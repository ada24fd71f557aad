package store

import (
	"strings"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/authtoken"
	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// LookupUser resolves email (case-insensitively) to its User row,
// failing Unauthorized(NoUserWithToken) if none exists — the same
// variant a vanished token's user resolves to, since both describe "no
// user at this email" to a caller.
func (s *Store) LookupUser(email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users.Lookup(types.StringKey(userEmailLower(email)))
	if !ok {
		return types.User{}, errs.Unauthorized(errs.VariantNoUserWithToken, "no such user")
	}
	return user, nil
}

// InsertUser adds a manually-created user, failing Conflict(PrimaryKey)
// if the (lowercased) email is already present.
func (s *Store) InsertUser(email string, group types.AccessGroup, deidentified bool) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := types.NewUser(email, group, types.UserManual, deidentified)
	if err := s.users.PkAbsent(user); err != nil {
		return types.User{}, err
	}
	s.users.Append(user)
	if err := s.users.Write(); err != nil {
		return types.User{}, err
	}
	s.recordMutation(TableUser)
	return user, nil
}

// IssuedToken is the one-time return value of InsertToken: the cleartext
// secret (never persisted) alongside the row that was written.
type IssuedToken struct {
	Secret string
	Row    types.Token
}

// InsertToken mints a new token for user, failing Unauthorized if the
// user does not exist, or Conflict if by some vanishing-probability
// collision the generated secret's hash is already present. length is
// the cleartext secret's length (spec §4.5's "length-N alphanumeric",
// sourced from config's auth_token_length).
func (s *Store) InsertToken(userEmail string, kind types.TokenKind, expires *time.Time, length int) (IssuedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users.Lookup(types.StringKey(userEmailLower(userEmail))); !ok {
		return IssuedToken{}, errs.Unauthorized(errs.VariantNoUserWithToken, "no such user")
	}

	secret, err := authtoken.GenerateSecret(length)
	if err != nil {
		return IssuedToken{}, errs.IO("store.insertToken generate secret", err)
	}
	row := types.Token{
		Hash:    authtoken.Hash(secret),
		User:    userEmailLower(userEmail),
		Kind:    kind,
		Expires: expires,
	}
	if err := s.tokens.PkAbsent(row); err != nil {
		return IssuedToken{}, err
	}
	s.tokens.Append(row)
	if err := s.tokens.Write(); err != nil {
		return IssuedToken{}, err
	}
	s.recordMutation(TableToken)
	return IssuedToken{Secret: secret, Row: row}, nil
}

// TokenVerify resolves a cleartext bearer secret to the User it
// authenticates, per spec §4.5's closed failure taxonomy: NoSuchToken
// when the hash isn't present, TokenExpired for a lapsed Session token,
// NoUserWithToken for the (should-be-impossible-but-checked) case of a
// token whose user row has vanished.
func (s *Store) TokenVerify(secret string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := authtoken.Hash(secret)
	tok, ok := s.tokens.Lookup(types.StringKey(hash))
	if !ok {
		return types.User{}, errs.Unauthorized(errs.VariantNoSuchToken, "no such token")
	}
	if tok.IsExpired(now()) {
		return types.User{}, errs.Unauthorized(errs.VariantTokenExpired, "token expired")
	}
	user, ok := s.users.Lookup(types.StringKey(tok.User))
	if !ok {
		return types.User{}, errs.Unauthorized(errs.VariantNoUserWithToken, "token's user no longer exists")
	}
	return user, nil
}

// TokenRefresh replaces a Session token with a freshly-expiring one of
// the same kind, rejecting an Api token outright: refreshing a
// non-expiring token is a caller error, not routine use (spec §4.5).
// length is the new cleartext secret's length, matching
// token_refresh(secret, len, days) in spec §4.2.
func (s *Store) TokenRefresh(secret string, newExpiry time.Time, length int) (IssuedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := authtoken.Hash(secret)
	tok, ok := s.tokens.Lookup(types.StringKey(hash))
	if !ok {
		return IssuedToken{}, errs.Unauthorized(errs.VariantNoSuchToken, "no such token")
	}
	if tok.Kind != types.TokenSession {
		return IssuedToken{}, errs.Conflict(errs.VariantWrongTokenKind, "only a session token may be refreshed")
	}
	if tok.IsExpired(now()) {
		return IssuedToken{}, errs.Unauthorized(errs.VariantTokenExpired, "token expired")
	}

	newSecret, err := authtoken.GenerateSecret(length)
	if err != nil {
		return IssuedToken{}, errs.IO("store.tokenRefresh generate secret", err)
	}
	newRow := types.Token{
		Hash:    authtoken.Hash(newSecret),
		User:    tok.User,
		Kind:    types.TokenSession,
		Expires: &newExpiry,
	}
	s.tokens.RemoveWhere(func(t types.Token) bool { return t.Hash != tok.Hash })
	s.tokens.Append(newRow)
	if err := s.tokens.Write(); err != nil {
		return IssuedToken{}, err
	}
	s.recordMutation(TableToken)
	return IssuedToken{Secret: newSecret, Row: newRow}, nil
}

// SyncRedcapUsers retains only the surviving Manual users from the
// current User table, drops any incoming user whose lowercased email
// clashes with one of those survivors, and appends the remainder (spec
// §4.2: "filters remote to drop any whose email clashes with a
// surviving Manual email; appends the remainder"). A clash is not an
// error: a Manual user (e.g. the bootstrap admin) always wins the email
// over a same-addressed REDCap row, preserving the email-uniqueness
// invariant (spec §3). Finally purges every token belonging to a user
// email that no longer exists after the replacement (spec §4.6's
// sync-cascades-to-tokens invariant).
func (s *Store) SyncRedcapUsers(incoming []types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []types.User
	survivingManual := make(map[string]bool)
	for _, u := range s.users.Rows() {
		if u.Kind != types.UserRedcap {
			kept = append(kept, u)
			survivingManual[u.Email] = true
		}
	}
	for _, u := range incoming {
		if survivingManual[userEmailLower(u.Email)] {
			continue
		}
		kept = append(kept, u)
	}
	s.users.SetRows(kept)
	if err := s.users.Write(); err != nil {
		return err
	}

	live := make(map[string]bool, len(kept))
	for _, u := range kept {
		live[u.Email] = true
	}
	s.tokens.RemoveWhere(func(t types.Token) bool { return live[t.User] })
	if err := s.tokens.Write(); err != nil {
		return err
	}
	s.recordSync(TableUser, len(incoming))
	return nil
}

// SyncRedcapParticipants replaces the full Participant table with the
// incoming rows from ingestion.
func (s *Store) SyncRedcapParticipants(incoming []types.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants.SetRows(incoming)
	if err := s.participants.Write(); err != nil {
		return err
	}
	s.recordSync(TableParticipant, len(incoming))
	return nil
}

// SyncRedcapVaccinationHistory replaces the full VaccinationHistory table.
func (s *Store) SyncRedcapVaccinationHistory(incoming []types.VaccinationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vaccinationHistory.SetRows(incoming)
	if err := s.vaccinationHistory.Write(); err != nil {
		return err
	}
	s.recordSync(TableVaccinationHistory, len(incoming))
	return nil
}

// SyncRedcapSchedule replaces the full Schedule table.
func (s *Store) SyncRedcapSchedule(incoming []types.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule.SetRows(incoming)
	if err := s.schedule.Write(); err != nil {
		return err
	}
	s.recordSync(TableSchedule, len(incoming))
	return nil
}

// SyncRedcapWeeklySurvey replaces the full WeeklySurvey table.
func (s *Store) SyncRedcapWeeklySurvey(incoming []types.WeeklySurvey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weeklySurvey.SetRows(incoming)
	if err := s.weeklySurvey.Write(); err != nil {
		return err
	}
	s.recordSync(TableWeeklySurvey, len(incoming))
	return nil
}

// SyncRedcapWithdrawn replaces the full Withdrawn table.
func (s *Store) SyncRedcapWithdrawn(incoming []types.Withdrawn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.withdrawn.SetRows(incoming)
	if err := s.withdrawn.Write(); err != nil {
		return err
	}
	s.recordSync(TableWithdrawn, len(incoming))
	return nil
}

// SyncRedcapSerology replaces the full Serology table.
func (s *Store) SyncRedcapSerology(incoming []types.Serology) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serology.SetRows(incoming)
	if err := s.serology.Write(); err != nil {
		return err
	}
	s.recordSync(TableSerology, len(incoming))
	return nil
}

// SyncRedcapConsent replaces the full Consent table.
func (s *Store) SyncRedcapConsent(incoming []types.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consent.SetRows(incoming)
	if err := s.consent.Write(); err != nil {
		return err
	}
	s.recordSync(TableConsent, len(incoming))
	return nil
}

// SyncRedcapYearChange replaces the full YearChange table.
func (s *Store) SyncRedcapYearChange(incoming []types.YearChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yearChange.SetRows(incoming)
	if err := s.yearChange.Write(); err != nil {
		return err
	}
	s.recordSync(TableYearChange, len(incoming))
	return nil
}

// SyncRedcapBleed replaces the full Bleed table.
func (s *Store) SyncRedcapBleed(incoming []types.Bleed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bleed.SetRows(incoming)
	if err := s.bleed.Write(); err != nil {
		return err
	}
	s.recordSync(TableBleed, len(incoming))
	return nil
}

// InsertVirus adds a single virus row, failing Conflict(PrimaryKey) on a
// duplicate name; virus rows are curated by an admin, not synced wholesale.
func (s *Store) InsertVirus(v types.Virus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.virus.PkAbsent(v); err != nil {
		return err
	}
	s.virus.Append(v)
	if err := s.virus.Write(); err != nil {
		return err
	}
	s.recordMutation(TableVirus)
	return nil
}

// ListViruses returns the admin-curated virus catalogue, read-only. Used
// by serology ingestion to know which viruses to request titres for.
func (s *Store) ListViruses() ([]types.Virus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.virus.Rows()
	out := make([]types.Virus, len(rows))
	copy(out, rows)
	return out, nil
}

func userEmailLower(email string) string {
	return strings.ToLower(email)
}
