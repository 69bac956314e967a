package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	profileName string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Enrol and recognise faces with a consensus of hand-crafted features",
	Long: `Facegate enrols face images as identity profiles and recognises new
images against them. Five feature families (LBP, gradient, regional,
Gabor and edge) are compared independently and a match is only accepted
when enough families agree, producing a confidence tier per decision.

Configuration is read from the environment (and an optional .env file);
see FACEGATE_PROFILE, FACEGATE_STORE and DATABASE_URL.`,
	SilenceUsage: true,
}

func Execute() {
	// Interrupts cancel running batches and recognitions.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Security profile (overrides FACEGATE_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
