package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/Sternrassler/mstr-client/pkg/subscription"
	"github.com/spf13/cobra"
)

func newSubscriptionCmd(a *app) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "subscription",
		Short: "List, execute and delete subscriptions",
	}
	cmd.PersistentFlags().StringVar(&projectID, "project", "", "project ID (default is server.project_id)")

	manager := func() (*subscription.Manager, error) {
		return subscription.NewManager(a.client, projectID)
	}

	var (
		filterExpr string
		limit      int
		out        outputFlags
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			f, err := a.filter(filterExpr)
			if err != nil {
				return err
			}
			subs, err := m.List(cmd.Context(), subscription.ListOptions{Limit: limit, Filter: f, Parallel: a.cfg.Fetch.Parallel})
			if err != nil {
				return err
			}
			tbl, err := listTable(subs, "id", "name", "dateModified")
			if err != nil {
				return err
			}
			for i, sub := range subs {
				tbl.Rows[i]["mode"] = string(sub.Delivery.Mode)
			}
			tbl.Columns = append(tbl.Columns, "mode")
			return out.write(cmd, tbl)
		},
	}
	listCmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression or @preset")
	listCmd.Flags().IntVar(&limit, "limit", 0, "maximum number of subscriptions (0 = all)")
	out.register(listCmd)

	executeCmd := &cobra.Command{
		Use:   "execute ID...",
		Short: "Send subscriptions now",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			return m.Execute(cmd.Context(), args)
		},
	}

	var force bool
	deleteCmd := &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete subscriptions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			ok, err := m.Delete(cmd.Context(), args, force, func(subs []subscription.Subscription) bool {
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "The following subscriptions will be deleted:")
				for _, sub := range subs {
					fmt.Fprintf(w, "  %s (%s)\n", sub.Name, sub.ID)
				}
				fmt.Fprint(w, "Continue? [y/N]: ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				return strings.EqualFold(strings.TrimSpace(answer), "y")
			})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("subscriptions were not all deleted")
			}
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&force, "force", false, "delete without confirmation")

	cmd.AddCommand(listCmd, executeCmd, deleteCmd)
	return cmd
}
