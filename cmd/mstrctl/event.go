package main

import (
	"fmt"

	"github.com/Sternrassler/mstr-client/pkg/event"
	"github.com/spf13/cobra"
)

func newEventCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Manage schedule events",
	}

	var (
		name       string
		filterExpr string
		out        outputFlags
	)
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.filter(filterExpr)
			if err != nil {
				return err
			}
			events, err := event.List(cmd.Context(), a.client, event.ListOptions{Name: name, Filter: f})
			if err != nil {
				return err
			}
			tbl, err := listTable(events, "id", "name", "description")
			if err != nil {
				return err
			}
			return out.write(cmd, tbl)
		},
	}
	listCmd.Flags().StringVar(&name, "name", "", "only events with exactly this name")
	listCmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression or @preset")
	out.register(listCmd)

	var description string
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := event.Create(cmd.Context(), a.client, args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), e.ID)
			return nil
		},
	}
	createCmd.Flags().StringVar(&description, "description", "", "event description")

	var byName bool
	triggerCmd := &cobra.Command{
		Use:   "trigger ID",
		Short: "Trigger an event and run its subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEvent(cmd, a, args[0], byName)
			if err != nil {
				return err
			}
			if err := e.Trigger(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Triggered %s\n", e.Ref())
			return nil
		},
	}
	triggerCmd.Flags().BoolVar(&byName, "name", false, "treat the argument as an event name")

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := event.Get(cmd.Context(), a.client, args[0])
			if err != nil {
				return err
			}
			if err := e.Delete(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", e.Ref())
			return nil
		},
	}

	cmd.AddCommand(listCmd, createCmd, triggerCmd, deleteCmd)
	return cmd
}

func resolveEvent(cmd *cobra.Command, a *app, arg string, byName bool) (*event.Event, error) {
	if byName {
		return event.GetByName(cmd.Context(), a.client, arg)
	}
	return event.Get(cmd.Context(), a.client, arg)
}
