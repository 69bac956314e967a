package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Facegate HTTP API.

The server exposes enrolment, revocation, recognition and verification
under /api/v1. When FACEGATE_API_KEY is set every request except the health
check must carry it in the X-API-Key header.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	st, err := rt.engine.Stats(ctx)
	if err != nil {
		return fmt.Errorf("profile store unavailable: %w", err)
	}
	if len(st.Mismatched) > 0 {
		rt.log.Warn("profiles enrolled with a different feature layout block recognition",
			zap.Strings("identities", st.Mismatched))
	}

	port, host := resolveServeHostPort(cmd)
	server := web.NewServer(rt.cfg, rt.engine, rt.log, host, port)

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			rt.log.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Facegate on http://%s:%d (profile %s, %d enrolled)\n", host, port, st.Profile, st.Enrolled)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
