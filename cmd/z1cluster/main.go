package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/neurofab/z1cluster/pkg/api"
	"github.com/neurofab/z1cluster/pkg/backplane"
	"github.com/neurofab/z1cluster/pkg/cluster"
	"github.com/neurofab/z1cluster/pkg/config"
	"github.com/neurofab/z1cluster/pkg/snn"
)

func main() {
	var cliOverrides config.CLIOverrides

	rootCmd := &cobra.Command{
		Use:   "z1cluster",
		Short: "z1cluster - distributed neuromorphic cluster host",
		Long:  "A host-side control plane emulating a cluster of backplane-connected neuromorphic nodes, with an HTTP surface for memory access, firmware loading, SNN topology deployment, and spiking simulation control.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), &cliOverrides)
		},
		SilenceUsage: true,
	}

	f := rootCmd.Flags()

	cliOverrides.ConfigPath = f.StringP("config", "f", "", "Path to YAML config file (overrides Z1_CONFIG env)")
	cliOverrides.HTTPAddr = f.String("http-addr", "", "HTTP listen address")
	cliOverrides.DefaultBackplaneCount = f.Int("backplane-count", 0, "Number of backplanes in the initial cluster")
	cliOverrides.DefaultNodesPerBackplane = f.Int("nodes-per-backplane", 0, "Number of nodes per backplane (max 16)")
	cliOverrides.BusLatency = f.Duration("bus-latency", 0, "Simulated bus message delivery latency")
	cliOverrides.DefaultTimestepUs = f.Int64("timestep-us", 0, "Default SNN simulation timestep in microseconds")
	cliOverrides.CompilerSeed = f.Int64("compiler-seed", 0, "Default deterministic seed for the topology compiler")
	cliOverrides.CompilerStrategy = f.String("compiler-strategy", "", "Default node-assignment strategy (balanced|layer_based)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run implements the cluster host startup sequence after CLI flags are parsed.
func run(flags *pflag.FlagSet, cliOverrides *config.CLIOverrides) error {
	config.PrintBanner()

	// Resolve config path: --config flag > Z1_CONFIG env var
	configPath := ""
	if cliOverrides.ConfigPath != nil && *cliOverrides.ConfigPath != "" {
		configPath = *cliOverrides.ConfigPath
	} else {
		configPath = os.Getenv("Z1_CONFIG")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyExplicitFlags(flags, cfg, cliOverrides)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Printf("HTTP: %s", cfg.Server.HTTPAddr)
	log.Printf("Cluster shape: %d backplane(s) x %d node(s)", cfg.Cluster.DefaultBackplaneCount, cfg.Cluster.DefaultNodesPerBackplane)

	cl := cluster.New()
	for i := 0; i < cfg.Cluster.DefaultBackplaneCount; i++ {
		name := fmt.Sprintf("bp%d", i)
		bp, err := backplane.New(name, cfg.Cluster.DefaultNodesPerBackplane, cfg.Cluster.BusLatency)
		if err != nil {
			return fmt.Errorf("failed to build backplane %s: %w", name, err)
		}
		if err := cl.AddBackplane(bp); err != nil {
			return fmt.Errorf("failed to register backplane %s: %w", name, err)
		}
	}
	log.Println("Cluster topology initialized")

	coordinator := snn.NewCoordinator()
	log.Println("SNN coordinator initialized")

	httpServer := api.NewServer(cfg.Server.HTTPAddr, cl, coordinator, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Println("z1cluster is ready!")
	log.Println("--------------------------------------------")

	config.WaitForShutdown(ctx, cancel)

	log.Println("Initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	coordinator.StopAll()
	cl.StopSimulation()

	log.Println("z1cluster shutdown complete")
	return nil
}

// applyExplicitFlags applies only the CLI flags that were explicitly set by
// the user on the command line. Unset flags are ignored so they do not
// override values resolved from YAML or environment variables.
func applyExplicitFlags(flags *pflag.FlagSet, cfg *config.Config, o *config.CLIOverrides) {
	overrides := config.CLIOverrides{}

	if flags.Changed("http-addr") {
		overrides.HTTPAddr = o.HTTPAddr
	}
	if flags.Changed("backplane-count") {
		overrides.DefaultBackplaneCount = o.DefaultBackplaneCount
	}
	if flags.Changed("nodes-per-backplane") {
		overrides.DefaultNodesPerBackplane = o.DefaultNodesPerBackplane
	}
	if flags.Changed("bus-latency") {
		overrides.BusLatency = o.BusLatency
	}
	if flags.Changed("timestep-us") {
		overrides.DefaultTimestepUs = o.DefaultTimestepUs
	}
	if flags.Changed("compiler-seed") {
		overrides.CompilerSeed = o.CompilerSeed
	}
	if flags.Changed("compiler-strategy") {
		overrides.CompilerStrategy = o.CompilerStrategy
	}

	cfg.ApplyCLIOverrides(&overrides)
}
