// Package redcap implements ingestion from the REDCap data-capture
// system (spec §6): a tolerant JSON coercion layer over the untyped
// records the REDCap API returns, domain-specific row converters built
// on that layer, and the two-yearly-project fetch/dedup/merge driver.
package redcap

import (
	"strconv"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/types"
)

// Record is one REDCap row: an untyped string-keyed map, exactly as the
// REDCap API returns it (every field value arrives as a string or null,
// regardless of the field's REDCap type).
type Record map[string]any

// field fetches a named value, failing FieldNotFound if absent — the
// same distinction the store's closed error taxonomy gives a missing
// field versus one present with the wrong shape.
func (r Record) field(name string) (any, error) {
	v, ok := r[name]
	if !ok {
		return nil, errs.FieldNotFound(name)
	}
	return v, nil
}

// AsString requires a non-null string field.
func (r Record) AsString(name string) (string, error) {
	v, err := r.field(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.UnexpectedJSONValue(name, "string", v)
	}
	return s, nil
}

// AsOptionalString accepts a string, null, or the empty string (REDCap's
// usual encoding of "not answered") as absence.
func (r Record) AsOptionalString(name string) (*string, error) {
	v, err := r.field(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, errs.UnexpectedJSONValue(name, "string | null", v)
	}
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// AsInteger requires a field holding a base-10 integer, REDCap's
// universal string encoding for numeric fields.
func (r Record) AsInteger(name string) (int, error) {
	s, err := r.AsString(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errs.UnexpectedJSONValue(name, "integer", s)
	}
	return n, nil
}

// AsReal requires a field holding a base-10 floating-point number.
func (r Record) AsReal(name string) (float64, error) {
	s, err := r.AsString(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errs.UnexpectedJSONValue(name, "real", s)
	}
	return n, nil
}

// AsOptionalReal treats the empty string as absence, REDCap's usual
// encoding for an unanswered numeric field.
func (r Record) AsOptionalReal(name string) (*float64, error) {
	s, err := r.AsOptionalString(name)
	if err != nil || s == nil {
		return nil, err
	}
	n, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil, errs.UnexpectedJSONValue(name, "real | \"\"", *s)
	}
	return &n, nil
}

// AsBoolean requires a "1"/"0" checkbox-style field.
func (r Record) AsBoolean(name string) (bool, error) {
	s, err := r.AsString(name)
	if err != nil {
		return false, err
	}
	switch s {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, errs.UnexpectedJSONValue(name, "\"0\" | \"1\"", s)
	}
}

// AsOptionalBoolean treats the empty string as absence.
func (r Record) AsOptionalBoolean(name string) (*bool, error) {
	s, err := r.AsOptionalString(name)
	if err != nil || s == nil {
		return nil, err
	}
	b, err := r.AsBoolean(name)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// dateLayout is REDCap's universal date-field encoding.
const dateLayout = "2006-01-02"

// AsDate requires a YYYY-MM-DD date field.
func (r Record) AsDate(name string) (time.Time, error) {
	s, err := r.AsString(name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, errs.UnexpectedJSONValue(name, "date", s)
	}
	return t.UTC(), nil
}

// AsOptionalDate treats the empty string as absence.
func (r Record) AsOptionalDate(name string) (*time.Time, error) {
	s, err := r.AsOptionalString(name)
	if err != nil || s == nil {
		return nil, err
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, errs.UnexpectedJSONValue(name, "date | \"\"", *s)
	}
	t = t.UTC()
	return &t, nil
}

// knownSites is the closed vocabulary a redcap_data_access_group field
// may take. A value outside this set is an UnexpectedJsonValue, not a
// silently accepted free-text site.
var knownSites = map[string]bool{
	"sydney": true, "melbourne": true, "adelaide": true,
	"perth": true, "newcastle": true, "brisbane": true,
}

// AsSite requires one of the fixed site tags.
func (r Record) AsSite(name string) (string, error) {
	s, err := r.AsString(name)
	if err != nil {
		return "", err
	}
	if !knownSites[s] {
		return "", errs.UnexpectedJSONValue(name, "site", s)
	}
	return s, nil
}

// AsAccessGroup maps REDCap's data_access_group convention (empty string
// means Unrestricted, anything else must be a known site) onto
// AccessGroup. A REDCap-sourced user is never Admin — that tier is only
// ever assigned manually.
func (r Record) AsAccessGroup(name string) (types.AccessGroup, error) {
	s, err := r.AsString(name)
	if err != nil {
		return types.AccessGroup{}, err
	}
	if s == "" {
		return types.UnrestrictedAccess(), nil
	}
	if !knownSites[s] {
		return types.AccessGroup{}, errs.UnexpectedJSONValue(name, "AccessGroup", s)
	}
	return types.SiteAccess(s), nil
}
