package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/actris-cloudnet/cloudnet-processing/pkg/config"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/dvas"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/log"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/pid"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/portal"
	"github.com/actris-cloudnet/cloudnet-processing/pkg/storage"
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
	Use:   "cloudnet",
	Short: "Cloudnet - processing engine for atmospheric observations",
	Long: `Cloudnet turns raw cloud remote sensing measurements into
calibrated, quality-controlled and citable data products.

The worker consumes tasks from the data portal queue; the companion
commands enqueue maintenance work and manage the DVAS federation.`,
	Version: Version,
}

var (
	tunablesPath string
	logLevel     string
	logJSON      bool
)

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Cloudnet processing engine %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&tunablesPath, "tunables", "", "Path to tunables YAML file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(freezeCmd)
	rootCmd.AddCommand(submitQCCmd)
	rootCmd.AddCommand(dvasCmd)
}

// loadConfig reads configuration and initializes the global logger.
// capture, when non-nil, receives a copy of every log line; the worker
// passes the alert ring buffer here.
func loadConfig(capture io.Writer) (*config.Config, error) {
	cfg, err := config.Load(tunablesPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
		Capture:    capture,
	})
	return cfg, nil
}

// clients are the HTTP collaborators every command wires the same way
type clients struct {
	portal  *portal.Client
	storage *storage.Client
	pid     *pid.Client
	dvas    *dvas.Client
}

func buildClients(cfg *config.Config) *clients {
	portalClient := portal.NewClient(portal.Config{
		BaseURL:    cfg.DataportalURL,
		Username:   cfg.DataSubmissionUsername,
		Password:   cfg.DataSubmissionPassword,
		Timeout:    cfg.Tunables.HTTPTimeout,
		MaxRetries: cfg.Tunables.RetryMaxAttempts,
	})
	storageClient := storage.NewClient(storage.Config{
		BaseURL:       cfg.StorageServiceURL,
		Username:      cfg.StorageServiceUser,
		Password:      cfg.StorageServicePassword,
		MaxRetries:    cfg.Tunables.RetryMaxAttempts,
		ChecksumGrace: cfg.Tunables.ChecksumGrace,
	})
	pidClient := pid.NewClient(pid.Config{
		ServiceURL: cfg.PIDServiceURL,
		PublicURL:  cfg.DataportalPublicURL,
		TestEnv:    cfg.PIDServiceTestEnv,
		Timeout:    cfg.Tunables.HTTPTimeout,
		MaxRetries: cfg.Tunables.RetryMaxAttempts,
	})
	dvasClient := dvas.NewClient(dvas.Config{
		PortalURL:   cfg.DvasPortalURL,
		AccessToken: cfg.DvasAccessToken,
		Username:    cfg.DvasUsername,
		Password:    cfg.DvasPassword,
		PublicURL:   cfg.DataportalPublicURL,
		Timeout:     cfg.Tunables.HTTPTimeout,
		MaxRetries:  cfg.Tunables.RetryMaxAttempts,
	}, portalClient)

	return &clients{
		portal:  portalClient,
		storage: storageClient,
		pid:     pidClient,
		dvas:    dvasClient,
	}
}
