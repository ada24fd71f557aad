package redcap

import (
	"github.com/BurntSushi/toml"
)

// FieldMap is the REDCap instance-specific mapping from this codebase's
// logical field names to the actual REDCap variable names configured on
// the instrument, decoded from redcap_fields.toml. The converters in
// convert.go do not consult a FieldMap: they use literal REDCap field
// names, so editing redcap_fields.toml does not change what ingestion
// reads.
type FieldMap struct {
	Participant struct {
		Pid           string `toml:"pid"`
		Site          string `toml:"site"`
		Email         string `toml:"email"`
		DateScreening string `toml:"date_screening"`
		DateBirth     string `toml:"date_birth"`
		HeightCm      string `toml:"height_cm"`
		WeightKg      string `toml:"weight_kg"`
	} `toml:"participant"`

	User struct {
		Email       string `toml:"email"`
		AccessGroup string `toml:"access_group"`
		ExportLevel string `toml:"export_level"`
	} `toml:"user"`

	WeeklySurvey struct {
		Pid            string `toml:"pid"`
		Ari            string `toml:"ari"`
		SwabCollection string `toml:"swab_collection"`
		SwabOtherText  string `toml:"swab_other_text"`
	} `toml:"weekly_survey"`
}

// LoadFieldMap decodes redcap_fields.toml at path directly with
// BurntSushi/toml, the same direct-decode approach the application's
// main configuration uses (no viper layering here: this file has no
// environment-variable or CLI-flag override story, only a different
// value per REDCap instance).
func LoadFieldMap(path string) (FieldMap, error) {
	var fm FieldMap
	if _, err := toml.DecodeFile(path, &fm); err != nil {
		return FieldMap{}, err
	}
	return fm, nil
}
