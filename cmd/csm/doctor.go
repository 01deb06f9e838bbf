package main

import (
	"fmt"

	"github.com/example/go-csm/internal/doctor"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for missing model artifacts and libraries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			res := doctor.Run(doctor.Config{
				ORTLibraryPath: cfg.Runtime.ORTLibraryPath,
				GraphManifest:  cfg.Paths.GraphManifest,
				TokenizerModel: cfg.Paths.TokenizerModel,
			}, cmd.OutOrStdout())

			if res.Failed() {
				return fmt.Errorf("%d check(s) failed", len(res.Failures()))
			}

			return nil
		},
	}
}
