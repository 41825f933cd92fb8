package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harborctl/harbor/pkg/api"
	"github.com/harborctl/harbor/pkg/config"
	"github.com/harborctl/harbor/pkg/core"
	"github.com/harborctl/harbor/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "harbor",
	Short: "Harbor - a control plane for short-lived container sandboxes",
	Long: `Harbor allocates, tracks, and recycles short-lived container
sandboxes ("ships") on behalf of client sessions, delivered as a
single binary with a bbolt-backed store and a pluggable container
driver.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Harbor version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Harbor API server",
	Long: `Start Harbor's HTTP API server: opens the configured store,
constructs the configured container driver, arms cleanup timers for
any Ships left over from a previous run, and starts the reconciler's
background sweep before accepting requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}

		c, err := core.New(cfg)
		if err != nil {
			return fmt.Errorf("constructing core: %w", err)
		}
		defer c.Stop()

		if err := c.Start(); err != nil {
			return fmt.Errorf("starting core: %w", err)
		}

		server := api.NewServer(c)
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			log.WithComponent("cmd").Info().Str("addr", addr).Msg("starting harbor api server")
			if err := server.Start(ctx, addr); err != nil {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			log.WithComponent("cmd").Info().Msg("shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("api server error: %w", err)
			}
		}

		cancel()
		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML configuration file")
	serveCmd.Flags().String("host", "", "Override the configured listen host")
	serveCmd.Flags().Int("port", 0, "Override the configured listen port")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Harbor version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
