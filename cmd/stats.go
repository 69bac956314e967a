package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the security profile and gallery statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := rt.engine.Stats(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(st)
	}

	fmt.Printf("Profile:      %s\n", st.Profile)
	if st.Description != "" {
		fmt.Printf("              %s\n", st.Description)
	}
	fmt.Printf("Enrolled:     %d\n", st.Enrolled)
	fmt.Printf("Layout:       %s\n", st.Layout)
	fmt.Printf("Aggregation:  %s\n", st.Aggregation)
	fmt.Printf("Thresholds:   ultra %.2f  high %.2f  medium %.2f  minimum %.2f\n",
		st.Policy.Ultra, st.Policy.High, st.Policy.Medium, st.Policy.Minimum)
	fmt.Printf("Consensus:    at least %d families, variance at most %.3f\n",
		st.Policy.MinConsensusCount, st.Policy.MaxVariance)
	fmt.Printf("Quality gate: face >= %d px, sharpness > %.0f, brightness %.0f-%.0f, contrast > %.0f\n",
		st.Quality.MinFaceSize, st.Quality.BlurThreshold, st.Quality.MinBrightness, st.Quality.MaxBrightness, st.Quality.MinContrast)
	if len(st.Mismatched) > 0 {
		fmt.Printf("\nWarning: %d profile(s) were enrolled with a different feature layout and block recognition:\n", len(st.Mismatched))
		for _, id := range st.Mismatched {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}
