package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the connection and print the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.client.ServerVersion(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.client.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Server:   %s\n", a.cfg.Server.BaseURL)
			fmt.Fprintf(w, "Version:  %s\n", v)
			fmt.Fprintf(w, "User:     %s\n", a.cfg.Server.Username)
			if project := a.client.ProjectID(); project != "" {
				fmt.Fprintf(w, "Project:  %s\n", project)
			}
			return nil
		},
	}
}
