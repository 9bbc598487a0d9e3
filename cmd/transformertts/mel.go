package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xenob8/SimpleTransfromerTTS/internal/audio"
	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

func newMelCmd() *cobra.Command {
	var in string
	var out string

	cmd := &cobra.Command{
		Use:   "mel",
		Short: "Extract a log-mel spectrogram from a WAV recording",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read %s: %w", in, err)
			}

			samples, rate, err := audio.DecodeWAV(data)
			if err != nil {
				return err
			}

			if cfg.Audio.SampleRate != 0 && rate != cfg.Audio.SampleRate {
				return fmt.Errorf("wav sample rate %d does not match configured %d", rate, cfg.Audio.SampleRate)
			}

			mel, err := audio.MelSpectrogram(samples, audio.MelParams{
				SampleRate: rate,
				NFFT:       cfg.Audio.NFFT,
				HopLength:  cfg.Audio.HopLength,
				WinLength:  cfg.Audio.WinLength,
				NMels:      cfg.Model.MelFreq,
				FMin:       cfg.Audio.FMin,
				FMax:       cfg.Audio.FMax,
			})
			if err != nil {
				return err
			}

			return safetensors.WriteFile(out, []safetensors.Tensor{
				{Name: "mel", Shape: mel.Shape(), Data: mel.Data()},
			})
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input WAV path (mono 16-bit PCM)")
	cmd.Flags().StringVar(&out, "out", "mel.safetensors", "Output mel-spectrogram path")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}
