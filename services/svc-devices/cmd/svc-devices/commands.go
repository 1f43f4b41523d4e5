package main

import (
	"fmt"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/runtime"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "svc-devices",
		Short: "Device inventory service",
		Long: `Serves the device inventory REST API and enforces the device lifecycle rules.

Configuration is read from the environment, optionally overlaid with secrets from Vault.`,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runtime.New().Run()
		},
	}

	root.AddCommand(newServeCommand(), newMigrateCommand(), newVersionCommand())

	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, admin and gRPC health servers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runtime.New().Run()
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := runtime.Migrate(cmd.Context())
			if err != nil {
				return err
			}

			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")

				return nil
			}

			for _, version := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
			}

			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version := config.ServiceVersion
			if version == "" {
				version = "dev"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "svc-devices %s (%s)\n", version, config.CommitSHA)
		},
	}
}
