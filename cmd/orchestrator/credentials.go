package main

import (
	"github.com/spf13/cobra"

	"github.com/polzovatel/browser-orchestrator/internal/credential"
)

func buildCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Inspect and manage the encrypted credential vault",
	}
	cmd.AddCommand(
		buildCredentialsListCmd(),
		buildCredentialsSaveCmd(),
		buildCredentialsDeleteCmd(),
		buildCredentialsClearCmd(),
	)
	return cmd
}

func openCredentialManager(cmd *cobra.Command) *credential.Manager {
	dir, _ := cmd.Flags().GetString("credential-dir")
	mgr, err := credential.New(dir, logger())
	if err != nil {
		fatal("open credential vault: %v", err)
	}
	return mgr
}

func buildCredentialsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every domain with a stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := openCredentialManager(cmd)
			defer mgr.Close()

			sites, err := mgr.List()
			if err != nil {
				fatal("list credentials: %v", err)
			}
			if len(sites) == 0 {
				dim.Println("no credentials stored")
				return nil
			}
			for _, s := range sites {
				green.Printf("%-30s %-20s (saved %s)\n", s.Domain, s.Username, s.SavedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func buildCredentialsSaveCmd() *cobra.Command {
	var domain, username, password string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save (or replace) a credential for a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := openCredentialManager(cmd)
			defer mgr.Close()

			if err := mgr.Save(domain, username, password); err != nil {
				fatal("save credential: %v", err)
			}
			green.Printf("✓ saved credential for %s\n", domain)
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "Domain the credential applies to")
	cmd.Flags().StringVar(&username, "username", "", "Username to store")
	cmd.Flags().StringVar(&password, "password", "", "Password to store")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func buildCredentialsDeleteCmd() *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored credential for a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := openCredentialManager(cmd)
			defer mgr.Close()

			deleted, err := mgr.Delete(domain)
			if err != nil {
				fatal("delete credential: %v", err)
			}
			if deleted {
				green.Printf("✓ deleted credential for %s\n", domain)
			} else {
				yellow.Printf("⚠ no credential stored for %s\n", domain)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "Domain to delete")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func buildCredentialsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := openCredentialManager(cmd)
			defer mgr.Close()

			if err := mgr.ClearAll(); err != nil {
				fatal("clear credentials: %v", err)
			}
			green.Println("✓ all credentials cleared")
			return nil
		},
	}
}
