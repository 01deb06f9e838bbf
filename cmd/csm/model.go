package main

import (
	"fmt"
	"os"

	"github.com/example/go-csm/internal/model"
	"github.com/example/go-csm/internal/safetensors"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage model files",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelInspectCmd())

	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var repo string
	var out string
	var hfToken string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download pinned model files from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.ModelDir
			}

			return model.Download(model.DownloadOptions{
				Repo:    repo,
				OutDir:  out,
				HFToken: hfToken,
				Stdout:  os.Stdout,
				Stderr:  os.Stderr,
			})
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "sesame/csm-1b", "Model repository")
	cmd.Flags().StringVar(&out, "out", "", "Destination directory (defaults to configured model dir)")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face access token (falls back to HF_TOKEN env)")

	return cmd
}

func newModelInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "List tensors in a safetensors weight file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := safetensors.Open(args[0])
			if err != nil {
				return err
			}

			var total int
			for _, info := range f.Tensors() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-60s %-5s %v (%d bytes)\n",
					info.Name, info.DType, info.Shape, info.Bytes)
				total += info.Bytes
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d tensors, %d bytes of tensor data\n",
				len(f.Tensors()), total)

			return nil
		},
	}
}
