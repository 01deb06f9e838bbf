// Package config loads the process configuration from defaults, an
// optional config file, environment variables (prefix CSM), and CLI flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Generate GenerateConfig `mapstructure:"generate"`
	Server   ServerConfig   `mapstructure:"server"`
}

type PathsConfig struct {
	GraphManifest  string `mapstructure:"graph_manifest"`
	TokenizerModel string `mapstructure:"tokenizer_model"`
	ModelDir       string `mapstructure:"model_dir"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
	SampleRate     int    `mapstructure:"sample_rate"`
	Seed           int64  `mapstructure:"seed"`
}

type GenerateConfig struct {
	MaxAudioLengthMs float64 `mapstructure:"max_audio_length_ms"`
	Temperature      float64 `mapstructure:"temperature"`
	TopK             int     `mapstructure:"topk"`
	Watermark        bool    `mapstructure:"watermark"`
	BOSTokenID       int64   `mapstructure:"bos_token_id"`
	EOSTokenID       int64   `mapstructure:"eos_token_id"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	Workers        int    `mapstructure:"workers"`
	MaxTextBytes   int    `mapstructure:"max_text_bytes"`
	RequestTimeout int    `mapstructure:"request_timeout"` // seconds
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
	return Config{
		LogLevel: "info",
		Paths: PathsConfig{
			GraphManifest:  "models/manifest.json",
			TokenizerModel: "models/tokenizer.model",
			ModelDir:       "models",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTAPIVersion:  23,
			SampleRate:     24000,
			Seed:           0,
		},
		Generate: GenerateConfig{
			MaxAudioLengthMs: 90_000,
			Temperature:      0.9,
			TopK:             50,
			Watermark:        false,
			BOSTokenID:       128000,
			EOSTokenID:       128001,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			Workers:        1,
			MaxTextBytes:   4096,
			RequestTimeout: 120,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("paths-graph-manifest", defaults.Paths.GraphManifest, "Path to the ONNX graph manifest")
	fs.String("paths-tokenizer-model", defaults.Paths.TokenizerModel, "Path to the SentencePiece tokenizer model")
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Directory for downloaded model artifacts")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to the ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to the ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.Uint32("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.Int("runtime-sample-rate", defaults.Runtime.SampleRate, "Codec sample rate in Hz")
	fs.Int64("runtime-seed", defaults.Runtime.Seed, "Sampling RNG seed (0 = time-based)")
	fs.Float64("generate-max-audio-length-ms", defaults.Generate.MaxAudioLengthMs, "Maximum generated audio length in milliseconds")
	fs.Float64("generate-temperature", defaults.Generate.Temperature, "Sampling temperature")
	fs.Int("generate-topk", defaults.Generate.TopK, "Top-k sampling cutoff")
	fs.Bool("generate-watermark", defaults.Generate.Watermark, "Watermark generated audio")
	fs.Int64("generate-bos-token-id", defaults.Generate.BOSTokenID, "Tokenizer begin-of-sequence token ID")
	fs.Int64("generate-eos-token-id", defaults.Generate.EOSTokenID, "Tokenizer end-of-sequence token ID")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent generation requests")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request generation deadline in seconds")
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

	v.SetEnvPrefix("CSM")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "CSM_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("csm")
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
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("paths.graph_manifest", c.Paths.GraphManifest)
	v.SetDefault("paths.tokenizer_model", c.Paths.TokenizerModel)
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("runtime.sample_rate", c.Runtime.SampleRate)
	v.SetDefault("runtime.seed", c.Runtime.Seed)
	v.SetDefault("generate.max_audio_length_ms", c.Generate.MaxAudioLengthMs)
	v.SetDefault("generate.temperature", c.Generate.Temperature)
	v.SetDefault("generate.topk", c.Generate.TopK)
	v.SetDefault("generate.watermark", c.Generate.Watermark)
	v.SetDefault("generate.bos_token_id", c.Generate.BOSTokenID)
	v.SetDefault("generate.eos_token_id", c.Generate.EOSTokenID)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("paths.graph_manifest", "paths-graph-manifest")
	v.RegisterAlias("paths.tokenizer_model", "paths-tokenizer-model")
	v.RegisterAlias("paths.model_dir", "paths-model-dir")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_api_version", "runtime-ort-api-version")
	v.RegisterAlias("runtime.sample_rate", "runtime-sample-rate")
	v.RegisterAlias("runtime.seed", "runtime-seed")
	v.RegisterAlias("generate.max_audio_length_ms", "generate-max-audio-length-ms")
	v.RegisterAlias("generate.temperature", "generate-temperature")
	v.RegisterAlias("generate.topk", "generate-topk")
	v.RegisterAlias("generate.watermark", "generate-watermark")
	v.RegisterAlias("generate.bos_token_id", "generate-bos-token-id")
	v.RegisterAlias("generate.eos_token_id", "generate-eos-token-id")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
}
