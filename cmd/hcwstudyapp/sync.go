package main

import (
	"context"
	"fmt"

	"github.com/khvorov45/hcwstudyapp/internal/redcap"
	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/spf13/cobra"
)

// curatedVirusNames lists the Virus table's admin-curated names (store
// §4.2: virus rows are inserted by an admin, never synced wholesale).
// Serology ingestion needs this list to know which titre columns to ask
// REDCap for.
func curatedVirusNames(s *store.Store) []string {
	viruses, err := s.ListViruses()
	if err != nil {
		return nil
	}
	names := make([]string, len(viruses))
	for i, v := range viruses {
		names[i] = v.Name
	}
	return names
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch the latest REDCap export and replace every synced table",
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

			client := redcap.NewClient(cfg.Redcap.APIURL, []redcap.YearlyProject{
				{Year: 2020, Token: cfg.Redcap.Token2020},
				{Year: 2021, Token: cfg.Redcap.Token2021},
			}, redcap.WithLogger(logger))

			ctx := context.Background()

			if err := syncOne(s, logger, "users", func() (int, error) {
				users, err := client.ExportUsers(ctx)
				if err != nil {
					return 0, err
				}
				return len(users), s.SyncRedcapUsers(users)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "participants", func() (int, error) {
				participants, err := client.ExportParticipants(ctx)
				if err != nil {
					return 0, err
				}
				return len(participants), s.SyncRedcapParticipants(participants)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "vaccination history", func() (int, error) {
				rows, err := client.ExportVaccinationHistory(ctx)
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapVaccinationHistory(rows)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "schedule", func() (int, error) {
				rows, err := client.ExportSchedule(ctx)
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapSchedule(rows)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "weekly survey", func() (int, error) {
				rows, err := client.ExportWeeklySurvey(ctx)
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapWeeklySurvey(rows)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "withdrawn", func() (int, error) {
				rows, err := client.ExportWithdrawn(ctx)
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapWithdrawn(rows)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "serology", func() (int, error) {
				rows, err := client.ExportSerology(ctx, curatedVirusNames(s))
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapSerology(rows)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "consent", func() (int, error) {
				rows, err := client.ExportConsent(ctx)
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapConsent(rows)
			}); err != nil {
				return err
			}

			if err := syncOne(s, logger, "bleed", func() (int, error) {
				rows, err := client.ExportBleed(ctx)
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapBleed(rows)
			}); err != nil {
				return err
			}

			// YearChange rows resolve through the record-id → pid map built
			// from baseline responses (spec §4.6); baseline must therefore
			// be fetched fresh here rather than reused from ExportParticipants,
			// since participants has already been synced and filtered by then.
			if err := syncOne(s, logger, "year change", func() (int, error) {
				baseline, err := client.ExportBaselineRecords(ctx)
				if err != nil {
					return 0, err
				}
				idx, err := redcap.BuildPidIndex(baseline)
				if err != nil {
					return 0, err
				}
				rows, err := client.ExportYearChanges(ctx, idx)
				if err != nil {
					return 0, err
				}
				return len(rows), s.SyncRedcapYearChange(rows)
			}); err != nil {
				return err
			}

			fmt.Println("sync complete")
			return nil
		},
	}
	return cmd
}

// syncOne runs one table's fetch-and-replace step, logging its row count
// on success. A failed remote call aborts the whole sync command (spec
// §7: "per-remote-call failures abort the sync and surface as 500");
// per-row extraction failures are already handled inside the redcap
// client and never reach here.
func syncOne(s *store.Store, logger interface {
	Info(string, ...any)
}, label string, step func() (int, error)) error {
	n, err := step()
	if err != nil {
		return fmt.Errorf("sync %s: %w", label, err)
	}
	logger.Info("synced "+label, "count", n)
	return nil
}
