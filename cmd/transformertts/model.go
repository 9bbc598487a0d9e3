package main

import (
	"github.com/spf13/cobra"

	"github.com/xenob8/SimpleTransfromerTTS/internal/model"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and manage model checkpoints",
	}

	cmd.AddCommand(newModelInitCmd())
	cmd.AddCommand(newModelInfoCmd())

	return cmd
}

func newModelInitCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a randomly initialized checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if out == "" {
				out = cfg.Paths.ModelPath
			}

			m, err := model.New(cfg.Model.ToModelConfig())
			if err != nil {
				return err
			}

			if err := m.Save(out); err != nil {
				return err
			}

			cmd.Printf("wrote checkpoint with %d tensors to %s\n", len(m.StateDict()), out)

			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Checkpoint path (defaults to paths.model_path)")

	return cmd
}

func newModelInfoCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "List the tensors in a checkpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if path == "" {
				path = cfg.Paths.ModelPath
			}

			store, err := safetensors.OpenStore(path)
			if err != nil {
				return err
			}
			defer store.Close()

			names := store.Names()
			for _, name := range names {
				t, err := store.Tensor(name)
				if err != nil {
					return err
				}

				cmd.Printf("%-48s %v\n", name, t.Shape)
			}

			cmd.Printf("%d tensors\n", len(names))

			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Checkpoint path (defaults to paths.model_path)")

	return cmd
}
