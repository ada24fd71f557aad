package main

import (
	"fmt"

	"github.com/khvorov45/hcwstudyapp/internal/adminui"
	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/spf13/cobra"
)

// bootstrapCmd supplements automatic first-boot admin seeding (store.Initialise
// already seeds one silently) with an explicit "admin bootstrap" command
// an operator can run to confirm or override the seeded admin's email
// before the first request ever arrives.
func bootstrapCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Administrator account management",
	}

	var email string
	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Ensure the store's root directory exists and has at least one admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			if email == "" && adminui.IsInteractive() {
				email, err = adminui.BootstrapAdmin(cfg.DefaultAdminEmail)
				if err != nil {
					return err
				}
			}
			if email == "" {
				email = cfg.DefaultAdminEmail
			}

			s, err := store.Initialise(cfg.RootDir, email, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Printf("store ready at %s with default admin %s\n", cfg.RootDir, email)
			return nil
		},
	}
	bootstrap.Flags().StringVar(&email, "email", "", "override the default admin email for this bootstrap")

	admin.AddCommand(bootstrap)
	return admin
}
