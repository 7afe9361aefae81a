// discover.go: list plugin manifests in a directory
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscoverCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover [dir]",
		Short: "List plugin manifests found under a directory",
		Long: `Discover walks the directory (the configured plugin_dir by default)
and parses every plugin manifest it finds. No module is started.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := flags.newHost()
			if err != nil {
				return err
			}

			dir := h.config.PluginDir
			if len(args) == 1 {
				dir = args[0]
			}
			results := h.manager.DiscoverPlugins(cmd.Context(), dir)

			if asJSON {
				out, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderDiscovery(dir, results))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
