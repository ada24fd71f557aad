package main

import (
	"fmt"
	"time"

	"github.com/khvorov45/hcwstudyapp/internal/adminui"
	"github.com/khvorov45/hcwstudyapp/internal/mailer"
	"github.com/khvorov45/hcwstudyapp/internal/store"
	"github.com/khvorov45/hcwstudyapp/internal/types"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Issue or refresh tokens",
	}

	var email, kindFlag, ttlFlag string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			var kind types.TokenKind
			switch kindFlag {
			case "session":
				kind = types.TokenSession
			case "api", "":
				kind = types.TokenApi
			default:
				return fmt.Errorf("invalid --kind %q: want session or api", kindFlag)
			}

			var expires *time.Time
			if email == "" && adminui.IsInteractive() {
				email, kind, expires, err = adminui.IssueTokenPrompt()
				if err != nil {
					return err
				}
			} else if kind == types.TokenSession && ttlFlag != "" {
				d, err := time.ParseDuration(ttlFlag)
				if err != nil {
					return fmt.Errorf("invalid --ttl: %w", err)
				}
				t := time.Now().UTC().Add(d)
				expires = &t
			}

			s, err := store.Initialise(cfg.RootDir, cfg.DefaultAdminEmail, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer s.Close()

			issued, err := s.InsertToken(email, kind, expires, cfg.AuthTokenLength)
			if err != nil {
				return err
			}

			m := mailer.Mailer(mailer.NullMailer{})
			if cfg.SMTP.Host != "" {
				m = mailer.NewSMTPMailer(cfg.SMTP)
			}
			if err := m.Send(email, "Your hcwstudyapp token", mailer.TokenIssuedBody(email, string(kind))); err != nil {
				logger.Warn("token issuance email failed", "error", err)
			}

			fmt.Println(issued.Secret)
			return nil
		},
	}
	issue.Flags().StringVar(&email, "email", "", "user to issue a token for")
	issue.Flags().StringVar(&kindFlag, "kind", "", "session or api")
	issue.Flags().StringVar(&ttlFlag, "ttl", "", "session token lifetime, e.g. 720h")

	token.AddCommand(issue)
	return token
}
