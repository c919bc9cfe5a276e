package main

import (
	"github.com/spf13/cobra"

	"github.com/polzovatel/browser-orchestrator/internal/session"
)

func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage the persisted session store",
	}
	cmd.AddCommand(buildSessionsListCmd(), buildSessionsClearCmd(), buildSessionsCleanupCmd())
	return cmd
}

func openSessionStore(cmd *cobra.Command) *session.Store {
	path, _ := cmd.Flags().GetString("session-db")
	store, err := session.Open(path, logger())
	if err != nil {
		fatal("open session store: %v", err)
	}
	return store
}

func buildSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := openSessionStore(cmd)
			defer store.Close()

			sessions, err := store.List()
			if err != nil {
				fatal("list sessions: %v", err)
			}
			if len(sessions) == 0 {
				dim.Println("no sessions stored")
				return nil
			}
			for _, s := range sessions {
				status := green
				label := "valid"
				if !s.Valid {
					status = red
					label = "expired"
				}
				status.Printf("%-30s %s (expires %s)\n", s.Domain, label, s.ExpiresAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func buildSessionsClearCmd() *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear one session (--domain) or every session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := openSessionStore(cmd)
			defer store.Close()

			if domain == "" {
				if err := store.ClearAll(); err != nil {
					fatal("clear all sessions: %v", err)
				}
				green.Println("✓ all sessions cleared")
				return nil
			}
			cleared, err := store.Clear(domain)
			if err != nil {
				fatal("clear session: %v", err)
			}
			if cleared {
				green.Printf("✓ cleared session for %s\n", domain)
			} else {
				yellow.Printf("⚠ no session stored for %s\n", domain)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "Domain to clear; omit to clear every session")
	return cmd
}

func buildSessionsCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove every session whose TTL has elapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := openSessionStore(cmd)
			defer store.Close()

			n, err := store.CleanupExpired()
			if err != nil {
				fatal("cleanup sessions: %v", err)
			}
			green.Printf("✓ removed %d expired session(s)\n", n)
			return nil
		},
	}
}
