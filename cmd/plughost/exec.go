// exec.go: load a module, run one command and unload it
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newExecCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <module> <command> [key=value...]",
		Short: "Run a single plugin command",
		Long: `Exec loads the module, runs one command with the given parameters and
prints the result as JSON. Values are parsed as JSON when possible, so
a=2 passes a number and name=bob passes a string.

Example:
  plughost exec ./plugins/calculator/plugin.yaml add a=2 b=3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[2:])
			if err != nil {
				return err
			}

			h, err := flags.newHost()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			result := h.manager.LoadPluginWithResult(ctx, args[0])
			if !result.Success {
				return errors.New(result.Message)
			}
			defer h.manager.UnloadPlugin(ctx, result.PluginID)

			out, err := h.manager.Execute(ctx, result.PluginID, args[1], params)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}

// parseParams turns key=value arguments into command parameters.
func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}
