package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Show the current profile and its settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          showConfig,
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "get [key]",
		Short:         "Read a setting from the current profile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          getSetting,
	}
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "set [key] [value]",
		Short:         "Write a setting on the current profile",
		Long: `Write a setting on the current profile. The value is parsed as JSON when
possible (numbers, booleans, objects), otherwise taken as a plain string.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          setSetting,
	}
}

func showConfig(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	svc, cleanup, err := openService(cmd)
	if err != nil {
		return out.Error("Failed to open profile store", err)
	}
	defer cleanup()

	state, err := svc.LoadConfig(cmd.Context())
	if err != nil {
		return out.Error("Failed to load configuration", err)
	}

	if out.jsonMode {
		return out.Print(state)
	}

	if state.CurrentProfile == nil {
		fmt.Println("No profile selected")
		return nil
	}

	p := state.CurrentProfile
	fmt.Printf("Profile: %s (%s)\n", p.Name, p.ID)
	fmt.Printf("Updated: %s\n", p.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println("Settings:")
	for key, value := range p.Settings {
		fmt.Printf("  %s = %v\n", key, value)
	}
	return nil
}

func getSetting(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	svc, cleanup, err := openService(cmd)
	if err != nil {
		return out.Error("Failed to open profile store", err)
	}
	defer cleanup()

	if _, err := svc.LoadConfig(cmd.Context()); err != nil {
		return out.Error("Failed to load configuration", err)
	}

	value, fromProfile := svc.GetSetting(args[0])
	if out.jsonMode {
		return out.Print(map[string]interface{}{
			"key":         args[0],
			"value":       value,
			"fromProfile": fromProfile,
		})
	}

	if value == nil {
		fmt.Printf("%s is not set\n", args[0])
		return nil
	}
	fmt.Printf("%v\n", value)
	return nil
}

func setSetting(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	svc, cleanup, err := openService(cmd)
	if err != nil {
		return out.Error("Failed to open profile store", err)
	}
	defer cleanup()

	if _, err := svc.LoadConfig(cmd.Context()); err != nil {
		return out.Error("Failed to load configuration", err)
	}

	if err := svc.UpdateSetting(args[0], parseSettingValue(args[1])); err != nil {
		return out.Error("Failed to update setting", err)
	}

	// The CLI is one-shot: closing via cleanup flushes the coalesced write
	// immediately rather than waiting out the debounce window.
	return out.Success(fmt.Sprintf("Set %s", args[0]), map[string]interface{}{
		"key": args[0],
	})
}

// parseSettingValue interprets raw as JSON when possible so booleans and
// numbers round-trip with their proper types.
func parseSettingValue(raw string) any {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return parsed
	}
	return raw
}
