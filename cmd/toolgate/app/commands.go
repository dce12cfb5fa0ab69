// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the toolgate command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolgate/pkg/bridge/config"
	"github.com/stacklok/toolgate/pkg/bridge/server"
	"github.com/stacklok/toolgate/pkg/logger"
	"github.com/stacklok/toolgate/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "toolgate",
	DisableAutoGenTag: true,
	Short:             "Toolgate - multi-tenant bridge for remote tool workers",
	Long: `Toolgate exposes tools hosted by remote workers as authenticated HTTP
endpoints and publishes per-tenant OpenAPI descriptions of the live tool set.

Workers hold long-lived WebSocket sessions with the server and announce their
tools on registration; HTTP callers invoke tools with a tenant bearer token
and the server routes each call to a connected, admitted worker.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates the root command for the toolgate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge server",
		Long: `Start the bridge server. The configuration file given with --config is
loaded and validated, worker sessions are accepted on /ws, and the tenant
APIs are served until the process receives an interrupt.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Configure(cfg.Server.Logging.Level, cfg.Server.Logging.Format)

	if cfg.Mode != config.ModeServer {
		return fmt.Errorf("this binary only implements server mode; got mode %q", cfg.Mode)
	}

	srv, err := server.New(cfg, versions.GetVersionInfo().Version)
	if err != nil {
		return err
	}
	return srv.Run(cmd.Context())
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Infof("configuration is valid: %d tenants, listening on %s:%d",
				len(cfg.Server.APISpaces), cfg.Server.HTTP.Host, cfg.Server.HTTP.Port)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			vi := versions.GetVersionInfo()
			cmd.Printf("toolgate %s (commit %s, built %s, %s, %s)\n",
				vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion, vi.Platform)
		},
	}
}

func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config")
	}

	cfg, err := config.NewYAMLLoader(path).Load()
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
