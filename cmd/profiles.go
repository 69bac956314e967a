package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/database/postgres"
	"github.com/kozaktomas/facegate/internal/facematch"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List enrolled profiles",
	Long: `List enrolled profiles. --query filters identities ignoring case and
diacritics, so "novak" matches "Jan Novák".`,
	Args: cobra.NoArgs,
	RunE: runProfiles,
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <identity>",
	Short: "Remove the profile of an identity",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevoke,
}

var historyCmd = &cobra.Command{
	Use:   "history <identity>",
	Short: "Show the enrolment history of an identity (PostgreSQL store only)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(historyCmd)

	profilesCmd.Flags().StringP("query", "q", "", "Only list identities matching the query")
	profilesCmd.Flags().Bool("json", false, "Output as JSON")

	historyCmd.Flags().Bool("json", false, "Output as JSON")
}

// ProfileInfo is one listed profile
type ProfileInfo struct {
	Identity   string    `json:"identity"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Source     string    `json:"source,omitempty"`
	Layout     string    `json:"layout"`
}

func runProfiles(cmd *cobra.Command, args []string) error {
	query := mustGetString(cmd, "query")
	jsonOutput := mustGetBool(cmd, "json")

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	profiles, err := rt.engine.Store().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	infos := make([]ProfileInfo, 0, len(profiles))
	for _, p := range profiles {
		if !facematch.MatchesQuery(p.Identity, query) {
			continue
		}
		infos = append(infos, ProfileInfo{
			Identity:   p.Identity,
			EnrolledAt: p.EnrolledAt,
			Source:     p.SourceReference,
			Layout:     p.Bundle.Layout().String(),
		})
	}

	if jsonOutput {
		return outputJSON(infos)
	}
	if len(infos) == 0 {
		fmt.Println("No profiles found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tENROLLED\tSOURCE")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Identity, info.EnrolledAt.Local().Format("2006-01-02 15:04"), info.Source)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d profile(s)\n", len(infos))
	return nil
}

func runRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	removed, err := rt.engine.Revoke(ctx, args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s", facematch.ErrUnknownIdentity, args[0])
	}
	fmt.Printf("Revoked %s\n", args[0])
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	repo, ok := rt.engine.Store().(*postgres.ProfileRepository)
	if !ok {
		return errors.New("history is only recorded by the postgres profile store (FACEGATE_STORE=postgres)")
	}
	identity, err := facematch.NormalizeIdentity(args[0])
	if err != nil {
		return err
	}
	entries, err := repo.History(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if jsonOutput {
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Printf("No history for %s.\n", identity)
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-8s %s\n", e.CreatedAt.Local().Format(time.RFC3339), e.Action, e.SourceReference)
	}
	return nil
}
