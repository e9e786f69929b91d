package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

var requireScope = requireAtLeastArgs(1, "scope is required (context <id>, filestore <id>, database <id> or all)")

// scopeArg joins positional args so both `context 7` and `"context 7"` work.
func scopeArg(args []string) string {
	return strings.Join(args, " ")
}
