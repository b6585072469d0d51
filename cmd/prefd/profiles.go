package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prefd-io/prefd/internal/profile"
)

func newProfilesCommand() *cobra.Command {
	profilesCmd := &cobra.Command{
		Use:           "profiles",
		Short:         "Profile management commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	listCmd := &cobra.Command{
		Use:           "list",
		Short:         "List profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          profilesList,
	}

	createCmd := &cobra.Command{
		Use:           "create [name]",
		Short:         "Create a new profile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          profilesCreate,
	}
	createCmd.Flags().Bool("empty", false, "Start with empty settings instead of copying the current profile")

	switchCmd := &cobra.Command{
		Use:           "switch [id]",
		Short:         "Switch the current profile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          profilesSwitch,
	}

	deleteCmd := &cobra.Command{
		Use:           "delete [id]",
		Short:         "Delete a profile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          profilesDelete,
	}

	profilesCmd.AddCommand(listCmd, createCmd, switchCmd, deleteCmd)
	return profilesCmd
}

func profilesList(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	svc, cleanup, err := openService(cmd)
	if err != nil {
		return out.Error("Failed to open profile store", err)
	}
	defer cleanup()

	summaries, err := svc.Summaries(cmd.Context())
	if err != nil {
		return out.Error("Failed to list profiles", err)
	}

	if out.jsonMode {
		return out.Print(summaries)
	}

	state, err := svc.LoadConfig(cmd.Context())
	if err != nil {
		return out.Error("Failed to load current profile", err)
	}
	currentID := ""
	if state.CurrentProfile != nil {
		currentID = state.CurrentProfile.ID
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUPDATED\tCURRENT")
	for _, s := range summaries {
		marker := ""
		if s.ID == currentID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.UpdatedAt.Format("2006-01-02 15:04:05"), marker)
	}
	return w.Flush()
}

func profilesCreate(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	svc, cleanup, err := openService(cmd)
	if err != nil {
		return out.Error("Failed to open profile store", err)
	}
	defer cleanup()

	if _, err := svc.LoadConfig(cmd.Context()); err != nil {
		return out.Error("Failed to load profiles", err)
	}

	empty, _ := cmd.Flags().GetBool("empty")
	copyFromCurrent := !empty
	created, err := svc.CreateProfile(cmd.Context(), profile.CreateRequest{
		Name:            args[0],
		CopyFromCurrent: &copyFromCurrent,
	})
	if err != nil {
		return out.Error("Failed to create profile", err)
	}

	return out.Success(fmt.Sprintf("Created profile %s (%s)", created.Name, created.ID), map[string]interface{}{
		"id":   created.ID,
		"name": created.Name,
	})
}

func profilesSwitch(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	svc, cleanup, err := openService(cmd)
	if err != nil {
		return out.Error("Failed to open profile store", err)
	}
	defer cleanup()

	if _, err := svc.LoadConfig(cmd.Context()); err != nil {
		return out.Error("Failed to load profiles", err)
	}

	adopted, err := svc.SwitchProfile(cmd.Context(), args[0])
	if err != nil {
		return out.Error("Failed to switch profile", err)
	}

	return out.Success(fmt.Sprintf("Switched to profile %s (%s)", adopted.Name, adopted.ID), map[string]interface{}{
		"id":   adopted.ID,
		"name": adopted.Name,
	})
}

func profilesDelete(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	svc, cleanup, err := openService(cmd)
	if err != nil {
		return out.Error("Failed to open profile store", err)
	}
	defer cleanup()

	if _, err := svc.LoadConfig(cmd.Context()); err != nil {
		return out.Error("Failed to load profiles", err)
	}

	if err := svc.DeleteProfile(cmd.Context(), args[0]); err != nil {
		return out.Error("Failed to delete profile", err)
	}

	return out.Success(fmt.Sprintf("Deleted profile %s", args[0]), map[string]interface{}{
		"id": args[0],
	})
}
