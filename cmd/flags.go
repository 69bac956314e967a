package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// mustFlag reads a flag registered in init(). A lookup failure is a
// programming bug, so it panics instead of returning an error.
func mustFlag[T any](cmd *cobra.Command, name string, get func(*pflag.FlagSet, string) (T, error)) T {
	val, err := get(cmd.Flags(), name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustFlag(cmd, name, (*pflag.FlagSet).GetString)
}

// intInRange reads an int flag and rejects values outside [lo, hi] as a
// usage error.
func intInRange(cmd *cobra.Command, name string, lo, hi int) (int, error) {
	val := mustGetInt(cmd, name)
	if val < lo || val > hi {
		return 0, fmt.Errorf("--%s must be between %d and %d, got %d", name, lo, hi, val)
	}
	return val, nil
}
