package redcap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/khvorov45/hcwstudyapp/internal/errs"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"golang.org/x/sync/errgroup"
)

// YearlyProject names one of the study's two yearly REDCap projects,
// each with its own API token but sharing the same API base URL.
type YearlyProject struct {
	Year  int
	Token string
}

// Client fetches and decodes records from the two yearly REDCap
// projects concurrently, retrying each individually on transient
// failure.
type Client struct {
	httpClient *http.Client
	baseURL    string
	projects   []YearlyProject
	logger     *slog.Logger
	backoff    func() backoff.BackOff
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger overrides the default slog.Logger used for per-row
// extraction warnings (spec §7: "per-row extraction failures log and
// continue").
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient constructs a Client against baseURL (the REDCap instance's
// API endpoint) for the given yearly projects, ordered earliest first —
// ingestion's yearly merge (MergeYears) treats projects[0] as the
// "first year" whose rows win on a primary-key clash.
func NewClient(baseURL string, projects []YearlyProject, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		projects:   projects,
		logger:     slog.Default(),
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// fetchOne posts a single content-export request to one yearly project,
// retried with exponential backoff against transient network/5xx
// failures (spec §6: REDCap exports are flaky enough in practice to
// warrant a real retry policy, not a single best-effort attempt).
func (c *Client) fetchOne(ctx context.Context, project YearlyProject, fields map[string]string) ([]Record, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set("token", project.Token)
	form.Set("format", "json")

	var records []Record
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBufferString(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // network errors are retried
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("redcap: server error %d fetching year %d", resp.StatusCode, project.Year)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("redcap: client error %d fetching year %d", resp.StatusCode, project.Year))
		}

		records = nil
		if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
			return backoff.Permanent(errs.Parse(fmt.Sprintf("redcap.fetch year %d", project.Year), err))
		}
		return nil
	}

	if err := backoff.Retry(op, c.backoff()); err != nil {
		return nil, err
	}
	return records, nil
}

// fetchAll fetches fields from every yearly project concurrently,
// returning one record slice per project in project order (spec §4.6:
// "fetched concurrently").
func (c *Client) fetchAll(ctx context.Context, fields map[string]string) ([][]Record, error) {
	out := make([][]Record, len(c.projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, project := range c.projects {
		i, project := i, project
		g.Go(func() error {
			records, err := c.fetchOne(gctx, project, fields)
			if err != nil {
				return err
			}
			out[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// convertAll applies convert to every record of one project, logging and
// skipping (not aborting) any row that fails extraction, per spec §7:
// "per-row extraction failures log and continue; per-remote-call
// failures abort the sync". Rows whose pid is the empty string (and other
// ErrRowNotApplicable rows) are dropped with a Debug record only, not
// logged as warnings; no count of skipped rows is kept.
func convertAll[T any](logger *slog.Logger, table string, year int, records []Record, convert func(Record) (T, error)) []T {
	rows := make([]T, 0, len(records))
	for _, rec := range records {
		row, err := convert(rec)
		if err != nil {
			if errors.Is(err, ErrRowNotApplicable) {
				logger.Debug("row not applicable to instrument", slog.String("table", table), slog.Int("year", year))
				continue
			}
			var e *errs.Error
			if errs.As(err, &e) && e.Kind == errs.KindRedcapExtract {
				logger.Warn("skipping malformed redcap row", slog.String("table", table), slog.Int("year", year), slog.String("error", err.Error()))
				continue
			}
			logger.Warn("skipping row with unexpected extraction error", slog.String("table", table), slog.Int("year", year), slog.String("error", err.Error()))
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// mergeByProject converts every project's records with convert (given
// that project's year) and folds the results together in project order
// via MergeYears, so projects[0] is "first year wins" against every
// later project.
func mergeByProject[T Keyed](logger *slog.Logger, table string, perProject [][]Record, projects []YearlyProject, convert func(Record, int) (T, error)) []T {
	var merged []T
	for i, records := range perProject {
		year := projects[i].Year
		rows := convertAll(logger, table, year, records, func(r Record) (T, error) { return convert(r, year) })
		if i == 0 {
			merged = rows
		} else {
			merged = MergeYears(merged, rows)
		}
	}
	return merged
}

// ExportUsers fetches the user list from every yearly project and merges
// them by email, earliest project wins on a clash (spec design notes).
func (c *Client) ExportUsers(ctx context.Context) ([]types.User, error) {
	perProject, err := c.fetchAll(ctx, map[string]string{"content": "user"})
	if err != nil {
		return nil, err
	}
	return mergeByProject(c.logger, "User", perProject, c.projects, func(r Record, _ int) (types.User, error) { return ToUser(r) }), nil
}

// ExportParticipants fetches baseline participant records from every
// yearly project and merges them on pid, earliest project wins.
func (c *Client) ExportParticipants(ctx context.Context) ([]types.Participant, error) {
	fields := map[string]string{
		"content":                "record",
		"fields":                 "pid,redcap_data_access_group,date_screening,email,a2_dob,a5_height,a6_weight",
		"events":                 "baseline_arm_1",
		"exportDataAccessGroups": "true",
	}
	perProject, err := c.fetchAll(ctx, fields)
	if err != nil {
		return nil, err
	}
	return mergeByProject(c.logger, "Participant", perProject, c.projects, func(r Record, _ int) (types.Participant, error) { return ToParticipant(r) }), nil
}

// ExportVaccinationHistory fetches the prior-year vaccination-status
// question from every yearly project.
func (c *Client) ExportVaccinationHistory(ctx context.Context) ([]types.VaccinationHistory, error) {
	fields := map[string]string{"content": "record", "fields": "pid,vac_history", "events": "baseline_arm_1"}
	perProject, err := c.fetchAll(ctx, fields)
	if err != nil {
		return nil, err
	}
	return mergeByProject(c.logger, "VaccinationHistory", perProject, c.projects, ToVaccinationHistory), nil
}

// studyDays are the fixed study-day offsets the schedule/serology/bleed
// instruments are collected against, in the order a participant
// progresses through them.
var studyDays = []int{0, 7, 14, 220}

// ExportSchedule fetches the per-day visit-date fields and folds them
// into one Schedule row per (pid, year, day) across every yearly project.
func (c *Client) ExportSchedule(ctx context.Context) ([]types.Schedule, error) {
	var merged []types.Schedule
	for _, day := range studyDays {
		fields := map[string]string{
			"content": "record",
			"fields":  fmt.Sprintf("pid,visit_%d_date", day),
			"events":  "baseline_arm_1",
		}
		perProject, err := c.fetchAll(ctx, fields)
		if err != nil {
			return nil, err
		}
		day := day
		rows := mergeByProject(c.logger, "Schedule", perProject, c.projects,
			func(r Record, year int) (types.Schedule, error) { return ToSchedule(r, year, day) })
		merged = append(merged, rows...)
	}
	return merged, nil
}

// ExportBleed fetches the per-day bleed-collection fields and folds them
// into one Bleed row per (pid, year, day) across every yearly project.
func (c *Client) ExportBleed(ctx context.Context) ([]types.Bleed, error) {
	var merged []types.Bleed
	for _, day := range studyDays {
		fields := map[string]string{
			"content": "record",
			"fields":  fmt.Sprintf("pid,bleed_%d_collected", day),
			"events":  "baseline_arm_1",
		}
		perProject, err := c.fetchAll(ctx, fields)
		if err != nil {
			return nil, err
		}
		day := day
		rows := mergeByProject(c.logger, "Bleed", perProject, c.projects,
			func(r Record, year int) (types.Bleed, error) { return ToBleed(r, year, day) })
		merged = append(merged, rows...)
	}
	return merged, nil
}

// ExportSerology fetches titres for every (day, virus) pair and folds
// them into one Serology row per (pid, year, day, virus) across every
// yearly project. virusNames is the curated Virus table's name list
// (Virus rows are admin-curated, not REDCap-synced — see store.InsertVirus).
func (c *Client) ExportSerology(ctx context.Context, virusNames []string) ([]types.Serology, error) {
	var merged []types.Serology
	for _, day := range studyDays {
		for _, virus := range virusNames {
			fields := map[string]string{
				"content": "record",
				"fields":  fmt.Sprintf("pid,titre_%s_%d", virus, day),
				"events":  "baseline_arm_1",
			}
			perProject, err := c.fetchAll(ctx, fields)
			if err != nil {
				return nil, err
			}
			day, virus := day, virus
			rows := mergeByProject(c.logger, "Serology", perProject, c.projects,
				func(r Record, year int) (types.Serology, error) { return ToSerology(r, year, day, virus) })
			merged = append(merged, rows...)
		}
	}
	return merged, nil
}

// consentForms enumerates the fixed (disease, form) pairs the study's
// consent instrument covers.
var consentForms = []struct{ disease, form string }{
	{"influenza", "main"},
	{"influenza", "annex"},
	{"covid19", "main"},
}

// ExportConsent fetches every (disease, form) consent pair and folds
// them into one Consent row per (pid, year, disease, form) across every
// yearly project.
func (c *Client) ExportConsent(ctx context.Context) ([]types.Consent, error) {
	var merged []types.Consent
	for _, cf := range consentForms {
		fields := map[string]string{
			"content": "record",
			"fields":  fmt.Sprintf("pid,consent_%s_%s_given,consent_%s_%s_group", cf.disease, cf.form, cf.disease, cf.form),
			"events":  "baseline_arm_1",
		}
		perProject, err := c.fetchAll(ctx, fields)
		if err != nil {
			return nil, err
		}
		disease, form := cf.disease, cf.form
		rows := mergeByProject(c.logger, "Consent", perProject, c.projects,
			func(r Record, year int) (types.Consent, error) { return ToConsent(r, year, disease, form) })
		merged = append(merged, rows...)
	}
	return merged, nil
}

// weeklySurveyIndices are the fixed weekly-survey instance numbers the
// study collects across a season.
var weeklySurveyIndices = makeRange(1, 32)

func makeRange(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// ExportWeeklySurvey fetches every weekly-survey index and folds them
// into one WeeklySurvey row per (pid, year, index) across every yearly
// project. For the second (later) project, rows reporting a recent covid
// vaccination are additionally posted back to that project's
// vaccination form (spec §4.6's covid-vaccination side channel);
// back-post failures are logged, never propagated (spec §9).
func (c *Client) ExportWeeklySurvey(ctx context.Context) ([]types.WeeklySurvey, error) {
	var merged []types.WeeklySurvey
	for _, index := range weeklySurveyIndices {
		fields := map[string]string{
			"content": "record",
			"fields":  "pid,ari_definition,swab_collection,swab_res,swab_res_other,recent_covax,covax_dose",
			"events":  fmt.Sprintf("weekly_survey_%d_arm_1", index),
		}
		perProject, err := c.fetchAll(ctx, fields)
		if err != nil {
			return nil, err
		}

		index := index
		var perProjectRows [][]types.WeeklySurvey
		for i, records := range perProject {
			year := c.projects[i].Year
			rows := convertAll(c.logger, "WeeklySurvey", year, records,
				func(r Record) (types.WeeklySurvey, error) { return ToWeeklySurvey(r, year, index) })
			perProjectRows = append(perProjectRows, rows)

			if i == len(perProject)-1 {
				c.backPostCovidVaccinations(ctx, c.projects[i], records)
			}
		}
		yearMerged := perProjectRows[0]
		for i := 1; i < len(perProjectRows); i++ {
			yearMerged = MergeYears(yearMerged, perProjectRows[i])
		}
		merged = append(merged, yearMerged...)
	}
	return merged, nil
}

// backPostCovidVaccinations reshapes and posts back every weekly-survey
// record reporting a first or second covid-vaccine dose (spec §4.6:
// recent_covax="1" and covax_dose in {"1","2"}). Failures are logged and
// do not abort the surrounding ingestion pass.
func (c *Client) backPostCovidVaccinations(ctx context.Context, project YearlyProject, records []Record) {
	for _, rec := range records {
		recent, err := rec.AsOptionalString("recent_covax")
		if err != nil || recent == nil || *recent != "1" {
			continue
		}
		dose, err := rec.AsOptionalString("covax_dose")
		if err != nil || dose == nil || (*dose != "1" && *dose != "2") {
			continue
		}
		rawPid, err := rec.AsString("pid")
		if err != nil {
			c.logger.Warn("covid back-post: missing pid", slog.String("error", err.Error()))
			continue
		}
		pid, err := NormalisePid(rawPid)
		if err != nil {
			c.logger.Warn("covid back-post: unparseable pid", slog.String("raw_pid", rawPid))
			continue
		}
		if err := c.PostVaccination(ctx, project, pid, true); err != nil {
			c.logger.Warn("covid back-post failed", slog.String("pid", pid), slog.String("error", err.Error()))
		}
	}
}

// ExportWithdrawn fetches withdrawal records from every yearly project.
func (c *Client) ExportWithdrawn(ctx context.Context) ([]types.Withdrawn, error) {
	fields := map[string]string{
		"content": "record",
		"fields":  "pid,withdrawal_date,withdrawal_reason",
		"events":  "withdrawal_arm_1",
	}
	perProject, err := c.fetchAll(ctx, fields)
	if err != nil {
		return nil, err
	}
	return mergeByProject(c.logger, "Withdrawn", perProject, c.projects, ToWithdrawn), nil
}

// ExportYearChanges fetches year-change reconciliation records from
// every yearly project, resolving each record_id to a pid via idx (spec
// §4.6's record-id → pid map, built once per sync pass by BuildPidIndex
// over baseline responses).
func (c *Client) ExportYearChanges(ctx context.Context, idx PidIndex) ([]types.YearChange, error) {
	fields := map[string]string{"content": "record", "fields": "record_id", "events": "year_change_arm_1"}
	perProject, err := c.fetchAll(ctx, fields)
	if err != nil {
		return nil, err
	}
	return mergeByProject(c.logger, "YearChange", perProject, c.projects,
		func(r Record, year int) (types.YearChange, error) { return ToYearChange(r, year, idx) }), nil
}

// ExportBaselineRecords fetches the raw baseline records (used by
// BuildPidIndex to construct the record-id → pid map before YearChange
// rows can be resolved) from every yearly project, concatenated.
func (c *Client) ExportBaselineRecords(ctx context.Context) ([]Record, error) {
	fields := map[string]string{"content": "record", "fields": "record_id,pid", "events": "baseline_arm_1"}
	perProject, err := c.fetchAll(ctx, fields)
	if err != nil {
		return nil, err
	}
	var all []Record
	for _, records := range perProject {
		all = append(all, records...)
	}
	return all, nil
}

// PostVaccination posts a single covid-vaccination back-post record to a
// yearly project: the one ingestion direction that writes to REDCap
// instead of reading from it (spec §6's supplemental covid-vaccination
// side effect — the study's REDCap instance is the system of record for
// whether a participant has reported their covid vaccination status
// elsewhere, and this study's own weekly survey is expected to post that
// status back so REDCap's own reminders stop firing for that participant).
func (c *Client) PostVaccination(ctx context.Context, project YearlyProject, pid string, vaccinated bool) error {
	value := "0"
	if vaccinated {
		value = "1"
	}
	form := url.Values{}
	form.Set("token", project.Token)
	form.Set("content", "record")
	form.Set("format", "json")
	form.Set("data", fmt.Sprintf(`[{"pid":%q,"covid_vac_reported":%q}]`, pid, value))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.IO("redcap.postVaccination", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errs.Redcap(errs.VariantUnexpectedRedcap, fmt.Sprintf("post vaccination for %s: status %d", pid, resp.StatusCode))
	}
	return nil
}

// BuildPidIndex walks a yearly project's record_id→pid reconciliation
// records and returns the side map ingestion needs to resolve YearChange
// rows back onto a pid (REDCap keys those only by record_id).
func BuildPidIndex(records []Record) (PidIndex, error) {
	idx := make(PidIndex, len(records))
	for _, rec := range records {
		recordID, err := rec.AsString("record_id")
		if err != nil {
			return nil, err
		}
		rawPid, err := rec.AsOptionalString("pid")
		if err != nil {
			return nil, err
		}
		if rawPid == nil {
			continue
		}
		pid, err := NormalisePid(*rawPid)
		if err != nil {
			return nil, err
		}
		idx[recordID] = pid
	}
	return idx, nil
}
