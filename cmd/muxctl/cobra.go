package main

import (
	"github.com/spf13/cobra"
)

// mainify wraps a non-standard Cobra entry point (one returning an error)
// and generates a standard Cobra entry point, so subcommands can return
// errors instead of calling os.Exit directly.
func mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			fatal(err)
		}
	}
}
