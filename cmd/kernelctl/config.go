package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/deskflow/kernel/internal/config"
	"github.com/deskflow/kernel/internal/eventbus"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the kernel's configuration documents",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every flattened configuration key and value",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration key and persist it",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	state, err := config.Load(eventbus.New())
	if err != nil {
		return err
	}
	for _, key := range state.Keys() {
		fmt.Printf("%s = %v\n", key, state.GetConfig(key, nil))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	state, err := config.Load(eventbus.New())
	if err != nil {
		return err
	}
	key, raw := args[0], args[1]

	if err := state.SetConfig(key, coerceValue(raw)); err != nil {
		return err
	}
	if err := state.SaveConfiguration(); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", key, raw)
	return nil
}

// coerceValue gives CLI-supplied strings a chance at becoming a bool or
// number before falling back to a plain string, since the config values
// themselves are typed.
func coerceValue(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
