package main

import (
	"encoding/json"
	"os"

	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var asEmail string
	cmd := &cobra.Command{
		Use:   "export-participants",
		Short: "Print Participant rows visible to a requester as JSON",
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

			rows := s.ExportParticipants(requester)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		},
	}
	cmd.Flags().StringVar(&asEmail, "as", "", "scope the export as if requested by this user (defaults to the default admin)")
	return cmd
}
