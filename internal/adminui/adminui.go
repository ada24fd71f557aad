// Package adminui implements the interactive administrator surface
// described in spec §6's bootstrap supplement: a terminal UI for
// issuing tokens, seeding the first admin, and rendering the
// data-quality report as a glamour-rendered document, built the way the
// teacher's own tooling builds terminal UIs (huh forms, lipgloss
// styling, termenv terminal detection).
package adminui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"charm.land/glamour/v2"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/muesli/termenv"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// IsInteractive reports whether stdout is an attached terminal, the
// same check the teacher's own CLI tooling uses to decide between a
// form prompt and a flag-driven one-shot invocation.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// BootstrapAdmin prompts for the first administrator's email when none
// is supplied on the command line.
func BootstrapAdmin(defaultEmail string) (string, error) {
	email := defaultEmail
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("First administrator's email").
				Value(&email).
				Validate(func(s string) error {
					if !strings.Contains(s, "@") {
						return fmt.Errorf("not a valid email")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return email, nil
}

// IssueTokenPrompt gathers the inputs InsertToken needs interactively: a
// user email, a token kind, and — for a Session token — a natural
// language expiry parsed with olebedev/when ("in 30 days", "next month").
func IssueTokenPrompt() (email string, kind types.TokenKind, expires *time.Time, err error) {
	var kindStr, ttlText string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("User email").Value(&email),
			huh.NewSelect[string]().
				Title("Token kind").
				Options(huh.NewOption("Session (expires)", "session"), huh.NewOption("Api (never expires)", "api")).
				Value(&kindStr),
		),
	)
	if err = form.Run(); err != nil {
		return
	}

	if kindStr == "api" {
		kind = types.TokenApi
		return
	}
	kind = types.TokenSession

	ttlForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Expires (e.g. \"in 30 days\")").Value(&ttlText),
		),
	)
	if err = ttlForm.Run(); err != nil {
		return
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, parseErr := w.Parse(ttlText, time.Now().UTC())
	if parseErr != nil || result == nil {
		err = fmt.Errorf("adminui: could not parse expiry %q", ttlText)
		return
	}
	t := result.Time.UTC()
	expires = &t
	return
}

// RenderReport renders a Report as styled markdown through glamour, for
// a terminal's benefit; a non-interactive caller should format a Report
// directly instead of going through this package.
func RenderReport(r store.Report) (string, error) {
	var b strings.Builder
	b.WriteString("# Data quality report\n\n")

	writeIssues(&b, "Duplicate participant emails", len(r.DuplicateParticipantEmails))
	writeIssues(&b, "Duplicate user emails", len(r.DuplicateUserEmails))
	writeIssues(&b, "Dangling vaccination history rows", len(r.DanglingVaccinationHistory))
	writeIssues(&b, "Dangling schedule rows", len(r.DanglingSchedule))
	writeIssues(&b, "Dangling weekly survey rows", len(r.DanglingWeeklySurvey))
	writeIssues(&b, "Dangling withdrawn rows", len(r.DanglingWithdrawn))
	writeIssues(&b, "Serology rows with unknown pid", len(r.DanglingSerologyPid))
	writeIssues(&b, "Serology rows with unknown virus", len(r.DanglingSerologyVirus))
	writeIssues(&b, "Dangling consent rows", len(r.DanglingConsent))
	writeIssues(&b, "Dangling bleed rows", len(r.DanglingBleed))

	if len(r.ConflictingConsentGroups) > 0 {
		b.WriteString(fmt.Sprintf("\n## Conflicting consent groups (%d)\n\n", len(r.ConflictingConsentGroups)))
		for _, c := range r.ConflictingConsentGroups {
			b.WriteString(fmt.Sprintf("- %s / %d / %s: %s\n", c.Pid, c.Year, c.Disease, strings.Join(c.Groups, ", ")))
		}
	}

	if len(r.DuplicateYearChanges) > 0 {
		b.WriteString(fmt.Sprintf("\n## Duplicate year change records (%d)\n\n", len(r.DuplicateYearChanges)))
		for _, d := range r.DuplicateYearChanges {
			ids := make([]string, len(d.Rows))
			for i, row := range d.Rows {
				ids[i] = row.RecordID
			}
			b.WriteString(fmt.Sprintf("- %v: record ids %s\n", d.Value, strings.Join(ids, ", ")))
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(b.String())
}

func writeIssues(b *strings.Builder, label string, count int) {
	b.WriteString(fmt.Sprintf("- **%s**: %d\n", label, count))
}

// PrintError prints an error styled for an interactive terminal,
// degrading to plain text when termenv detects no colour support.
func PrintError(err error) {
	if termenv.ColorProfile() == termenv.Ascii {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
}

// PrintTitle prints a styled section title.
func PrintTitle(s string) {
	fmt.Println(titleStyle.Render(s))
}
