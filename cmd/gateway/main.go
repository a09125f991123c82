package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/config"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/gateway"
	"github.com/Nikhil-Yadav-01/shop-sphere-sub000/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "configs/gateway.yaml", "Path to configuration file")
	showVersion := fs.Bool("version", false, "Show version information")
	validateOnly := fs.Bool("validate", false, "Validate configuration and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "Shop edge gateway %s (built %s)\n", version, buildTime)
		return 0
	}

	cfg, err := config.NewLoader().Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	if *validateOnly {
		fmt.Fprintf(stdout, "Configuration is valid (%d routes)\n", len(cfg.Routes))
		for _, rc := range cfg.Routes {
			fmt.Fprintf(stdout, "  %-12s %-16s -> %s\n", rc.Name, rc.PathPrefix, rc.Target)
		}
		return 0
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	logging.SetGlobal(logger)
	defer logging.Sync()

	logging.Info("Starting gateway",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("registry", cfg.Registry.Type),
		zap.String("rate_limit_store", cfg.RateLimit.Store),
		zap.Int("routes", len(cfg.Routes)),
	)
	logging.Debug("Effective configuration", zap.Any("config", cfg.Redacted()))

	server, err := gateway.NewServer(cfg)
	if err != nil {
		logging.Error("Failed to create gateway", zap.Error(err))
		return 1
	}

	if err := server.Run(context.Background()); err != nil {
		logging.Error("Server error", zap.Error(err))
		return 1
	}
	return 0
}
