package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			version := "dev"
			revision := ""
			if info, ok := debug.ReadBuildInfo(); ok {
				if info.Main.Version != "" {
					version = info.Main.Version
				}
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" {
						revision = s.Value
					}
				}
			}

			if revision != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "csm %s (%s)\n", version, revision)
				return
			}

			fmt.Fprintf(cmd.OutOrStdout(), "csm %s\n", version)
		},
	}
}
