package redcap

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// ErrRowNotApplicable signals that a record carries no data for the
// instrument a converter was asked to extract (e.g. no blood draw on a
// study day a participant never reached), as opposed to a malformed
// value for data that should be present. convertAll (internal/redcap
// client.go) treats this distinctly from a RedcapExtraction error: it is
// dropped silently, not logged as a warning.
var ErrRowNotApplicable = errors.New("redcap: row not applicable to this instrument")

// ToUser converts a REDCap user-export record. A REDCap record's
// data_export code of 2 ("full data set, de-identified") is the only
// value that grants deidentified export; anything else (1 = full
// identified, 0 = no access) does not.
func ToUser(r Record) (types.User, error) {
	email, err := r.AsString("email")
	if err != nil {
		return types.User{}, err
	}
	group, err := r.AsAccessGroup("data_access_group")
	if err != nil {
		return types.User{}, err
	}
	exportCode, err := r.AsInteger("data_export")
	if err != nil {
		return types.User{}, err
	}
	return types.NewUser(email, group, types.UserRedcap, exportCode == 2), nil
}

// pidPattern matches the normalised PID shape this study uses:
// uppercase site prefix letters followed by a zero-padded numeric
// participant index, e.g. "MEL-001". REDCap's raw pid field spells the
// same identity inconsistently (case, padding, and occasionally a
// trailing sub-group suffix); NormalisePid canonicalises it.
var pidPattern = regexp.MustCompile(`^([A-Za-z]+)[-_ ]?0*([0-9]+)`)

// NormalisePid canonicalises a raw REDCap pid field to "LLL-NNN" form:
// uppercase letters, a literal hyphen, and the numeric index left-padded
// to three digits. Any trailing group suffix past the numeric index
// (REDCap occasionally appends one, e.g. "mel001b") is ignored, matching
// the historical behaviour this rewrite preserves rather than "fixes".
func NormalisePid(raw string) (string, error) {
	m := pidPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", errs.UnexpectedJSONValue("pid", "LLL-NNN pid", raw)
	}
	letters := strings.ToUpper(m[1])
	return fmt.Sprintf("%s-%03s", letters, padLeft(m[2], 3)), nil
}

func padLeft(s string, width int) string {
	for len(s) < width {
		s = "0" + s
	}
	return s
}

// pidFrom extracts and normalises the pid field shared by almost every
// per-participant instrument, treating the empty string (REDCap's usual
// "no pid assigned yet" encoding) as ErrRowNotApplicable rather than a
// malformed value — spec §4.6: "Rows whose pid is the empty string are
// counted but not errors."
func pidFrom(r Record) (string, error) {
	raw, err := r.AsString("pid")
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", ErrRowNotApplicable
	}
	return NormalisePid(raw)
}

// ToParticipant converts a REDCap baseline-event record, normalising pid
// and recomputing the derived age/BMI fields rather than trusting any
// value REDCap itself might supply for them.
func ToParticipant(r Record) (types.Participant, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.Participant{}, err
	}
	site, err := r.AsSite("redcap_data_access_group")
	if err != nil {
		return types.Participant{}, err
	}
	email, err := r.AsOptionalString("email")
	if err != nil {
		return types.Participant{}, err
	}
	dateScreening, err := r.AsOptionalDate("date_screening")
	if err != nil {
		return types.Participant{}, err
	}
	dateBirth, err := r.AsOptionalDate("a2_dob")
	if err != nil {
		return types.Participant{}, err
	}
	heightCm, err := r.AsOptionalReal("a5_height")
	if err != nil {
		return types.Participant{}, err
	}
	weightKg, err := r.AsOptionalReal("a6_weight")
	if err != nil {
		return types.Participant{}, err
	}

	p := types.Participant{
		Pid:           pid,
		Site:          site,
		Email:         email,
		DateScreening: dateScreening,
		DateBirth:     dateBirth,
		HeightCm:      heightCm,
		WeightKg:      weightKg,
	}
	p.DeriveFields()
	return p, nil
}

// vaccinationStatusByCode is REDCap's fixed radio-button encoding for
// the prior-year vaccination question.
var vaccinationStatusByCode = map[string]types.VaccinationStatus{
	"1": types.VaccinationAustralia,
	"2": types.VaccinationOverseas,
	"3": types.VaccinationUnknown,
	"4": types.VaccinationNo,
}

// ToVaccinationHistory converts one yearly vaccination-history record.
func ToVaccinationHistory(r Record, year int) (types.VaccinationHistory, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.VaccinationHistory{}, err
	}
	code, err := r.AsOptionalString("vac_history")
	if err != nil {
		return types.VaccinationHistory{}, err
	}
	var status *types.VaccinationStatus
	if code != nil {
		s, ok := vaccinationStatusByCode[*code]
		if !ok {
			return types.VaccinationHistory{}, errs.UnexpectedJSONValue("vac_history", "VaccinationStatus code", *code)
		}
		status = &s
	}
	return types.VaccinationHistory{Pid: pid, Year: year, Status: status}, nil
}

// swabResultFields is the fixed, ordered multi-hot field list for a
// weekly survey's swab-result checkbox group, index-aligned with
// swabResultKinds. Index 14 ("swab_res___15") is the free-text "other"
// escape.
var swabResultFields = []string{
	"swab_res___1", "swab_res___2", "swab_res___3", "swab_res___4",
	"swab_res___5", "swab_res___6", "swab_res___7", "swab_res___8",
	"swab_res___9", "swab_res___10", "swab_res___11", "swab_res___12",
	"swab_res___13", "swab_res___14", "swab_res___15",
}

// swabResultKinds maps each swabResultFields index onto its
// SwabResultKind. swab_res___1 and swab_res___3 both map onto
// SwabInfluenzaAh1: a historical double-mapping in the source this was
// distilled from, preserved here rather than silently fixed.
var swabResultKinds = []types.SwabResultKind{
	types.SwabInfluenzaAh1, // swab_res___1
	types.SwabInfluenzaAh3, // swab_res___2
	types.SwabInfluenzaAh1, // swab_res___3
	types.SwabInfluenzaB,   // swab_res___4
	types.SwabRsv,
	types.SwabRhinovirus,
	types.SwabAdenovirus,
	types.SwabParainfluenza1,
	types.SwabParainfluenza2,
	types.SwabParainfluenza3,
	types.SwabParainfluenza4,
	types.SwabCoronavirus,
	types.SwabHumanMetapneumovirus,
	types.SwabBocavirus,
	types.SwabOther, // swab_res___15
}

// ToSwabResults reads the multi-hot swab-result checkbox group,
// collecting every checked box as a SwabResult and the accompanying
// free-text field when the "other" box (index 14) is checked.
func ToSwabResults(r Record) ([]types.SwabResult, error) {
	var out []types.SwabResult
	for i, field := range swabResultFields {
		checked, err := r.AsBoolean(field)
		if err != nil {
			return nil, err
		}
		if !checked {
			continue
		}
		kind := swabResultKinds[i]
		if kind == types.SwabOther {
			text, err := r.AsOptionalString("swab_res_other")
			if err != nil {
				return nil, err
			}
			t := ""
			if text != nil {
				t = *text
			}
			out = append(out, types.SwabResult{Kind: kind, Text: t})
			continue
		}
		out = append(out, types.SwabResult{Kind: kind})
	}
	return out, nil
}

// ToWeeklySurvey converts one weekly-survey-index record.
func ToWeeklySurvey(r Record, year, index int) (types.WeeklySurvey, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.WeeklySurvey{}, err
	}
	ari, err := r.AsBoolean("ari_definition")
	if err != nil {
		return types.WeeklySurvey{}, err
	}
	swabCollection, err := r.AsBoolean("swab_collection")
	if err != nil {
		return types.WeeklySurvey{}, err
	}
	swabResults, err := ToSwabResults(r)
	if err != nil {
		return types.WeeklySurvey{}, err
	}
	return types.WeeklySurvey{
		Pid: pid, Year: year, Index: index,
		Ari: ari, SwabCollection: swabCollection, SwabResults: swabResults,
	}, nil
}

// ToSchedule converts one scheduled-visit record for a fixed study day.
func ToSchedule(r Record, year, day int) (types.Schedule, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.Schedule{}, err
	}
	date, err := r.AsOptionalDate(fmt.Sprintf("visit_%d_date", day))
	if err != nil {
		return types.Schedule{}, err
	}
	return types.Schedule{Pid: pid, Year: year, Day: day, Date: date}, nil
}

// ToSerology converts one serology-assay record for a fixed study day and
// virus. A sample not run against this particular virus on this day (the
// titre field present but empty) is ErrRowNotApplicable, not a malformed
// value — most participant-day-virus combinations are never assayed.
func ToSerology(r Record, year, day int, virus string) (types.Serology, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.Serology{}, err
	}
	titre, err := r.AsOptionalReal(fmt.Sprintf("titre_%s_%d", virus, day))
	if err != nil {
		return types.Serology{}, err
	}
	if titre == nil {
		return types.Serology{}, ErrRowNotApplicable
	}
	return types.Serology{Pid: pid, Year: year, Day: day, Virus: virus, Titre: *titre}, nil
}

// ToConsent converts one consent record for a fixed disease/form pair. A
// participant never asked to consent to this disease/form pair (the
// "given" checkbox absent or unchecked) is ErrRowNotApplicable.
func ToConsent(r Record, year int, disease, form string) (types.Consent, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.Consent{}, err
	}
	given, err := r.AsOptionalBoolean(fmt.Sprintf("consent_%s_%s_given", disease, form))
	if err != nil {
		return types.Consent{}, err
	}
	if given == nil || !*given {
		return types.Consent{}, ErrRowNotApplicable
	}
	group, err := r.AsOptionalString(fmt.Sprintf("consent_%s_%s_group", disease, form))
	if err != nil {
		return types.Consent{}, err
	}
	return types.Consent{Pid: pid, Year: year, Disease: disease, Form: form, Group: group}, nil
}

// ToBleed converts one blood-draw record for a fixed study day. A day on
// which no blood was drawn (the "collected" checkbox absent or
// unchecked) is ErrRowNotApplicable.
func ToBleed(r Record, year, day int) (types.Bleed, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.Bleed{}, err
	}
	collected, err := r.AsOptionalBoolean(fmt.Sprintf("bleed_%d_collected", day))
	if err != nil {
		return types.Bleed{}, err
	}
	if collected == nil || !*collected {
		return types.Bleed{}, ErrRowNotApplicable
	}
	return types.Bleed{Pid: pid, Year: year, Day: day}, nil
}

// ToYearChange converts one year-change reconciliation record. REDCap
// only ever keys these by record_id; idx (built by BuildPidIndex over the
// baseline responses, spec §4.6's "record-id → pid map") resolves the pid
// when one is known. A record_id this study has not yet reconciled to a
// participant yields a YearChange row with a nil pid, per spec §3's
// "the pid may be absent" — that is not an extraction failure.
func ToYearChange(r Record, year int, idx PidIndex) (types.YearChange, error) {
	recordID, err := r.AsString("record_id")
	if err != nil {
		return types.YearChange{}, err
	}
	var pid *string
	if p, ok := idx[recordID]; ok {
		pid = &p
	}
	return types.YearChange{RecordID: recordID, Year: year, Pid: pid}, nil
}

// ToWithdrawn converts one withdrawal record.
func ToWithdrawn(r Record, year int) (types.Withdrawn, error) {
	pid, err := pidFrom(r)
	if err != nil {
		return types.Withdrawn{}, err
	}
	date, err := r.AsOptionalDate("withdrawal_date")
	if err != nil {
		return types.Withdrawn{}, err
	}
	reason, err := r.AsOptionalString("withdrawal_reason")
	if err != nil {
		return types.Withdrawn{}, err
	}
	return types.Withdrawn{Pid: pid, Year: year, Date: date, Reason: reason}, nil
}

// PidIndex is the record_id → pid side map ingestion builds while
// walking a yearly project's records, used to resolve YearChange rows
// (which REDCap only ever keys by record_id) back onto a pid.
type PidIndex map[string]string
