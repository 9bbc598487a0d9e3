package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
	"github.com/xenob8/SimpleTransfromerTTS/internal/tts"
)

func newSynthCmd() *cobra.Command {
	var text string
	var out string
	var maxLength int64
	var gateThreshold float64

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to a mel-spectrogram",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if maxLength > 0 {
				cfg.Synth.MaxLength = maxLength
			}

			if cmd.Flags().Changed("gate-threshold") {
				cfg.Synth.GateThreshold = gateThreshold
			}

			inputText, err := readSynthText(text, os.Stdin)
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg)
			if err != nil {
				return err
			}

			res, err := svc.Synthesize(cmd.Context(), inputText)
			if err != nil {
				return fmt.Errorf("synth failed: %w", err)
			}

			tensors := []safetensors.Tensor{
				{Name: "mel", Shape: res.Mel.Shape()[1:], Data: res.Mel.Data()},
				{Name: "gates", Shape: []int64{int64(len(res.Gates))}, Data: res.Gates},
			}

			if err := safetensors.WriteFile(out, tensors); err != nil {
				return err
			}

			frames, _ := res.Mel.Dim(1)
			cmd.Printf("wrote %d mel frames to %s (%s)\n", frames, out, res.State)

			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.safetensors", "Output mel-spectrogram path")
	cmd.Flags().Int64Var(&maxLength, "max-length", 0, "Override synth.max_length for this run")
	cmd.Flags().Float64Var(&gateThreshold, "gate-threshold", 0.5, "Override synth.gate_threshold for this run")

	return cmd
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}

	return input, nil
}
