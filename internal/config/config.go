// Package config loads layered configuration (defaults, config file,
// environment, flags) for the transformertts commands.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xenob8/SimpleTransfromerTTS/internal/model"
)

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Model    ModelConfig  `mapstructure:"model"`
	Synth    SynthConfig  `mapstructure:"synth"`
	Audio    AudioConfig  `mapstructure:"audio"`
	Server   ServerConfig `mapstructure:"server"`
	LogLevel string       `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath string `mapstructure:"model_path"`
}

// ModelConfig mirrors model.Config; every value is fixed at construction.
type ModelConfig struct {
	TextNumEmbeddings    int64 `mapstructure:"text_num_embeddings"`
	EmbeddingSize        int64 `mapstructure:"embedding_size"`
	EncoderEmbeddingSize int64 `mapstructure:"encoder_embedding_size"`
	DimFeedforward       int64 `mapstructure:"dim_feedforward"`
	EncoderKernelSize    int64 `mapstructure:"encoder_kernel_size"`
	PostnetEmbeddingSize int64 `mapstructure:"postnet_embedding_size"`
	PostnetKernelSize    int64 `mapstructure:"postnet_kernel_size"`
	MelFreq              int64 `mapstructure:"mel_freq"`
	MaxMelTime           int64 `mapstructure:"max_mel_time"`
	Heads                int64 `mapstructure:"heads"`

	DecoderPrenetAlwaysDropout bool  `mapstructure:"decoder_prenet_always_dropout"`
	Seed                       int64 `mapstructure:"seed"`
}

type SynthConfig struct {
	MaxLength     int64   `mapstructure:"max_length"`
	GateThreshold float64 `mapstructure:"gate_threshold"`
}

// AudioConfig parameterizes WAV decoding and mel-spectrogram extraction.
type AudioConfig struct {
	SampleRate int     `mapstructure:"sample_rate"`
	NFFT       int     `mapstructure:"n_fft"`
	HopLength  int     `mapstructure:"hop_length"`
	WinLength  int     `mapstructure:"win_length"`
	FMin       float64 `mapstructure:"f_min"`
	FMax       float64 `mapstructure:"f_max"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	Workers        int    `mapstructure:"workers"`
	MaxTextBytes   int    `mapstructure:"max_text_bytes"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	modelDefaults := model.DefaultConfig()

	return Config{
		Paths: PathsConfig{
			ModelPath: "models/transformertts.safetensors",
		},
		Model: ModelConfig{
			TextNumEmbeddings:          modelDefaults.TextNumEmbeddings,
			EmbeddingSize:              modelDefaults.EmbeddingSize,
			EncoderEmbeddingSize:       modelDefaults.EncoderEmbeddingSize,
			DimFeedforward:             modelDefaults.DimFeedforward,
			EncoderKernelSize:          modelDefaults.EncoderKernelSize,
			PostnetEmbeddingSize:       modelDefaults.PostnetEmbeddingSize,
			PostnetKernelSize:          modelDefaults.PostnetKernelSize,
			MelFreq:                    modelDefaults.MelFreq,
			MaxMelTime:                 modelDefaults.MaxMelTime,
			Heads:                      modelDefaults.Heads,
			DecoderPrenetAlwaysDropout: modelDefaults.DecoderPrenetAlwaysDropout,
			Seed:                       modelDefaults.Seed,
		},
		Synth: SynthConfig{
			MaxLength:     800,
			GateThreshold: 0.5,
		},
		Audio: AudioConfig{
			SampleRate: 22050,
			NFFT:       2048,
			HopLength:  256,
			WinLength:  1024,
			FMin:       0,
			FMax:       8000,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			Workers:        2,
			MaxTextBytes:   4096,
			RequestTimeout: 120,
		},
		LogLevel: "info",
	}
}

// ToModelConfig converts the loaded model section into a model.Config.
func (m ModelConfig) ToModelConfig() model.Config {
	return model.Config{
		TextNumEmbeddings:          m.TextNumEmbeddings,
		EmbeddingSize:              m.EmbeddingSize,
		EncoderEmbeddingSize:       m.EncoderEmbeddingSize,
		DimFeedforward:             m.DimFeedforward,
		EncoderKernelSize:          m.EncoderKernelSize,
		PostnetEmbeddingSize:       m.PostnetEmbeddingSize,
		PostnetKernelSize:          m.PostnetKernelSize,
		MelFreq:                    m.MelFreq,
		MaxMelTime:                 m.MaxMelTime,
		Heads:                      m.Heads,
		DecoderPrenetAlwaysDropout: m.DecoderPrenetAlwaysDropout,
		Seed:                       m.Seed,
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to safetensors model checkpoint")
	fs.Int64("model-text-num-embeddings", defaults.Model.TextNumEmbeddings, "Tokenizer vocabulary size")
	fs.Int64("model-embedding-size", defaults.Model.EmbeddingSize, "Transformer model dimension")
	fs.Int64("model-encoder-embedding-size", defaults.Model.EncoderEmbeddingSize, "Encoder prenet channel count")
	fs.Int64("model-dim-feedforward", defaults.Model.DimFeedforward, "Feed-forward hidden dimension")
	fs.Int64("model-encoder-kernel-size", defaults.Model.EncoderKernelSize, "Encoder prenet convolution kernel size")
	fs.Int64("model-postnet-embedding-size", defaults.Model.PostnetEmbeddingSize, "Postnet channel count")
	fs.Int64("model-postnet-kernel-size", defaults.Model.PostnetKernelSize, "Postnet convolution kernel size")
	fs.Int64("model-mel-freq", defaults.Model.MelFreq, "Mel-spectrogram bin count")
	fs.Int64("model-max-mel-time", defaults.Model.MaxMelTime, "Positional table size (max sequence length)")
	fs.Int64("model-heads", defaults.Model.Heads, "Attention head count")
	fs.Bool("model-decoder-prenet-always-dropout", defaults.Model.DecoderPrenetAlwaysDropout, "Keep decoder prenet dropout active at inference")
	fs.Int64("model-seed", defaults.Model.Seed, "Seed for weight init and dropout draws")
	fs.Int64("synth-max-length", defaults.Synth.MaxLength, "Maximum generated mel frames")
	fs.Float64("synth-gate-threshold", defaults.Synth.GateThreshold, "Stop-gate probability threshold")
	fs.Int("audio-sample-rate", defaults.Audio.SampleRate, "Expected audio sample rate")
	fs.Int("audio-n-fft", defaults.Audio.NFFT, "FFT size for mel extraction")
	fs.Int("audio-hop-length", defaults.Audio.HopLength, "STFT hop length")
	fs.Int("audio-win-length", defaults.Audio.WinLength, "STFT window length")
	fs.Float64("audio-f-min", defaults.Audio.FMin, "Lowest mel filterbank frequency in Hz")
	fs.Float64("audio-f-max", defaults.Audio.FMax, "Highest mel filterbank frequency in Hz")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent synthesis requests")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis deadline in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("TRANSFORMERTTS")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("transformertts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("model.text_num_embeddings", c.Model.TextNumEmbeddings)
	v.SetDefault("model.embedding_size", c.Model.EmbeddingSize)
	v.SetDefault("model.encoder_embedding_size", c.Model.EncoderEmbeddingSize)
	v.SetDefault("model.dim_feedforward", c.Model.DimFeedforward)
	v.SetDefault("model.encoder_kernel_size", c.Model.EncoderKernelSize)
	v.SetDefault("model.postnet_embedding_size", c.Model.PostnetEmbeddingSize)
	v.SetDefault("model.postnet_kernel_size", c.Model.PostnetKernelSize)
	v.SetDefault("model.mel_freq", c.Model.MelFreq)
	v.SetDefault("model.max_mel_time", c.Model.MaxMelTime)
	v.SetDefault("model.heads", c.Model.Heads)
	v.SetDefault("model.decoder_prenet_always_dropout", c.Model.DecoderPrenetAlwaysDropout)
	v.SetDefault("model.seed", c.Model.Seed)
	v.SetDefault("synth.max_length", c.Synth.MaxLength)
	v.SetDefault("synth.gate_threshold", c.Synth.GateThreshold)
	v.SetDefault("audio.sample_rate", c.Audio.SampleRate)
	v.SetDefault("audio.n_fft", c.Audio.NFFT)
	v.SetDefault("audio.hop_length", c.Audio.HopLength)
	v.SetDefault("audio.win_length", c.Audio.WinLength)
	v.SetDefault("audio.f_min", c.Audio.FMin)
	v.SetDefault("audio.f_max", c.Audio.FMax)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_path", "paths-model-path")
	v.RegisterAlias("model.text_num_embeddings", "model-text-num-embeddings")
	v.RegisterAlias("model.embedding_size", "model-embedding-size")
	v.RegisterAlias("model.encoder_embedding_size", "model-encoder-embedding-size")
	v.RegisterAlias("model.dim_feedforward", "model-dim-feedforward")
	v.RegisterAlias("model.encoder_kernel_size", "model-encoder-kernel-size")
	v.RegisterAlias("model.postnet_embedding_size", "model-postnet-embedding-size")
	v.RegisterAlias("model.postnet_kernel_size", "model-postnet-kernel-size")
	v.RegisterAlias("model.mel_freq", "model-mel-freq")
	v.RegisterAlias("model.max_mel_time", "model-max-mel-time")
	v.RegisterAlias("model.heads", "model-heads")
	v.RegisterAlias("model.decoder_prenet_always_dropout", "model-decoder-prenet-always-dropout")
	v.RegisterAlias("model.seed", "model-seed")
	v.RegisterAlias("synth.max_length", "synth-max-length")
	v.RegisterAlias("synth.gate_threshold", "synth-gate-threshold")
	v.RegisterAlias("audio.sample_rate", "audio-sample-rate")
	v.RegisterAlias("audio.n_fft", "audio-n-fft")
	v.RegisterAlias("audio.hop_length", "audio-hop-length")
	v.RegisterAlias("audio.win_length", "audio-win-length")
	v.RegisterAlias("audio.f_min", "audio-f-min")
	v.RegisterAlias("audio.f_max", "audio-f-max")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("log_level", "log-level")
}
