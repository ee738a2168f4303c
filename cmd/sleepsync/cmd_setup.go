package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/sleepsync/internal/setup"
	"github.com/nvandessel/sleepsync/internal/store"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Install optional components",
	}
	cmd.AddCommand(newSetupLocalModelCmd())
	return cmd
}

func newSetupLocalModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local-model",
		Short: "Download llama.cpp and an embedding model for offline sleep scoring",
		Long: `Download llama.cpp shared libraries and a GGUF embedding model into
~/.sleepsync/lib and ~/.sleepsync/models, then point feedback.provider at
the local analyzer. The local analyzer requires a build with -tags llamacpp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			checkOnly, _ := cmd.Flags().GetBool("check")
			force, _ := cmd.Flags().GetBool("force")
			modelURL, _ := cmd.Flags().GetString("model-url")
			processor, _ := cmd.Flags().GetString("processor")
			noConfig, _ := cmd.Flags().GetBool("no-config")
			out := cmd.OutOrStdout()

			dataDir, err := store.EnsureDataDir()
			if err != nil {
				return err
			}

			var result setup.LocalModel
			if checkOnly {
				result = setup.DetectInstalled(dataDir)
			} else {
				ctx, cancel := signalContext(cmd.Context())
				defer cancel()
				result, err = setup.Install(ctx, dataDir, setup.YzmaDownloader{Processor: processor},
					setup.InstallOptions{ModelURL: modelURL, Force: force})
				if err != nil {
					return err
				}
				if !noConfig {
					if err := updateConfigFile(result.ConfigValues()); err != nil {
						return fmt.Errorf("installed, but failed to update config: %w", err)
					}
				}
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(result)
			}
			fmt.Fprintf(out, "Libraries: %s\n", valueOrDefault(result.LibPath))
			fmt.Fprintf(out, "Model:     %s\n", valueOrDefault(result.ModelPath))
			if result.Available {
				fmt.Fprintln(out, "Local sleep analyzer is ready.")
			} else {
				fmt.Fprintln(out, "Local sleep analyzer is not installed. Run 'sleepsync setup local-model'.")
			}
			return nil
		},
	}

	cmd.Flags().Bool("check", false, "Only report what is installed")
	cmd.Flags().Bool("force", false, "Download even if already installed")
	cmd.Flags().String("model-url", setup.DefaultModelURL, "GGUF embedding model to download")
	cmd.Flags().String("processor", "cpu", "llama.cpp build: cpu, cuda, vulkan or metal")
	cmd.Flags().Bool("no-config", false, "Do not update config.yaml")
	return cmd
}
