// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/regsync/internal/binding"
	"github.com/tomtom215/regsync/internal/config"
	"github.com/tomtom215/regsync/internal/logging"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "regsync",
		Short:         "Global registry synchronization client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a YAML config file (default: "+config.ConfigPathEnvVar+" or ./config.yaml)")

	root.AddCommand(newServeCmd(), newCheckCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			initLogging(cfg.Logging)
			return serve(cmd.Context(), cfg)
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and bindings, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg := binding.NewRegistry()
			if err := reg.RegisterConfig(cfg.Bindings); err != nil {
				return fmt.Errorf("bindings: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "registry: %s\nqueue: %s\n", cfg.Registry.BaseURL, cfg.Queue.Backend)
			for _, kind := range reg.Kinds() {
				b, _ := reg.Get(kind)
				fmt.Fprintf(out, "binding %s: entity=%t relationships=%d\n", kind, b.Entity != nil, len(b.Relationships))
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func initLogging(cfg config.LoggingConfig) {
	logging.Init(logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		Caller:    cfg.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
}
