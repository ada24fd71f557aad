package main

import (
	"fmt"

	"github.com/khvorov45/hcwstudyapp/internal/adminui"
	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	var asEmail string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the data-quality report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			s, err := store.Initialise(cfg.RootDir, cfg.DefaultAdminEmail, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer s.Close()

			requester := types.NewUser(cfg.DefaultAdminEmail, types.AdminAccess(), types.UserManual, false)
			if asEmail != "" {
				requester, err = s.LookupUser(asEmail)
				if err != nil {
					return err
				}
			}

			r := s.FindTableIssues(requester)
			if adminui.IsInteractive() {
				rendered, err := adminui.RenderReport(r)
				if err != nil {
					return err
				}
				fmt.Print(rendered)
				return nil
			}

			fmt.Printf("duplicate participant emails: %d\n", len(r.DuplicateParticipantEmails))
			fmt.Printf("duplicate user emails: %d\n", len(r.DuplicateUserEmails))
			fmt.Printf("dangling vaccination history: %d\n", len(r.DanglingVaccinationHistory))
			fmt.Printf("dangling schedule: %d\n", len(r.DanglingSchedule))
			fmt.Printf("dangling weekly survey: %d\n", len(r.DanglingWeeklySurvey))
			fmt.Printf("dangling withdrawn: %d\n", len(r.DanglingWithdrawn))
			fmt.Printf("dangling serology (pid): %d\n", len(r.DanglingSerologyPid))
			fmt.Printf("dangling serology (virus): %d\n", len(r.DanglingSerologyVirus))
			fmt.Printf("dangling consent: %d\n", len(r.DanglingConsent))
			fmt.Printf("dangling bleed: %d\n", len(r.DanglingBleed))
			fmt.Printf("conflicting consent groups: %d\n", len(r.ConflictingConsentGroups))
			fmt.Printf("duplicate year change (pid, year): %d\n", len(r.DuplicateYearChanges))
			return nil
		},
	}
	cmd.Flags().StringVar(&asEmail, "as", "", "scope the report as if requested by this user (defaults to the default admin)")
	return cmd
}
