// validate.go: check a single module without registering it
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/agilira/plughost"
	"github.com/spf13/cobra"
)

var errInvalidPlugin = errors.New("plugin is not valid for this host")

func newValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <module>",
		Short: "Start a module and run the admission checks on it",
		Long: `Validate starts the module in its own process, checks its identity and
compatibility with the host version, prints the result and stops it again.
The module's lifecycle hooks are not run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := flags.newHost()
			if err != nil {
				return err
			}

			subprocess := h.config.SubprocessOptions()
			subprocess.Logger = plughost.NewZerologAdapter(h.logger)
			factory := plughost.NewSubprocessBoundaryFactory(subprocess)

			ctx := cmd.Context()
			boundary, err := factory.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer func() {
				if err := boundary.Release(context.WithoutCancel(ctx)); err != nil {
					h.logger.Warn().Err(err).Msg("Releasing module failed")
				}
			}()

			plugin := boundary.Plugin()
			verr := h.manager.ValidatePlugin(ctx, plugin)
			fmt.Fprintln(cmd.OutOrStdout(), renderDiagnostic(plughost.IdentityOf(plugin), verr))
			if verr != nil {
				return errInvalidPlugin
			}
			return nil
		},
	}
}
