package types

import (
	"strings"
	"time"
)

// This file holds the legacy ("previous" slot) row shapes and their
// converters to the current shape (spec §4.3). Only row types whose
// shape actually changed across the schema generation this rewrite
// targets carry a legacy predecessor; the rest convert as the identity
// function over an unchanged shape (see table.Identity in
// internal/table, used by the migration driver in internal/store).

// LegacyUser is the previous-generation User shape: access_group was a
// bare string tag without the Site(_) payload encoding used today, and
// deidentified_export did not exist yet (absent fields default false).
type LegacyUser struct {
	Email       string `json:"email"`
	AccessGroup string `json:"access_group"`
	Kind        string `json:"kind"`
}

// ConvertUser preserves primary-key identity (post email-lowercasing) as
// required by the converter contract in spec §4.3.
func ConvertUser(l LegacyUser) User {
	var group AccessGroup
	switch {
	case l.AccessGroup == "Admin":
		group = AdminAccess()
	case l.AccessGroup == "Unrestricted":
		group = UnrestrictedAccess()
	case strings.HasPrefix(l.AccessGroup, "Site:"):
		group = SiteAccess(strings.TrimPrefix(l.AccessGroup, "Site:"))
	default:
		group = SiteAccess(l.AccessGroup)
	}
	kind := UserManual
	if l.Kind == string(UserRedcap) {
		kind = UserRedcap
	}
	return NewUser(l.Email, group, kind, false)
}

// LegacyParticipant is the previous-generation Participant shape: it
// carried height/weight but never persisted the derived age or BMI, so
// those are recomputed by ConvertParticipant rather than copied.
type LegacyParticipant struct {
	Pid           string     `json:"pid"`
	Site          string     `json:"site"`
	Email         *string    `json:"email,omitempty"`
	DateScreening *string    `json:"date_screening,omitempty"`
	DateBirth     *string    `json:"date_birth,omitempty"`
	HeightCm      *float64   `json:"height_cm,omitempty"`
	WeightKg      *float64   `json:"weight_kg,omitempty"`
}

// ConvertParticipant recomputes derived fields rather than trusting any
// prior-generation value for them (there was none to trust).
func ConvertParticipant(l LegacyParticipant, parseDate func(string) *time.Time) Participant {
	p := Participant{
		Pid:      l.Pid,
		Site:     l.Site,
		Email:    l.Email,
		HeightCm: l.HeightCm,
		WeightKg: l.WeightKg,
	}
	if l.DateScreening != nil {
		p.DateScreening = parseDate(*l.DateScreening)
	}
	if l.DateBirth != nil {
		p.DateBirth = parseDate(*l.DateBirth)
	}
	p.DeriveFields()
	return p
}
