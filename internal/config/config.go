// Package config loads xenopipe settings from defaults, a YAML file, an
// optional .env file and XENOPIPE_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/maxkimambo/xenopipe/internal/backend"
	"github.com/maxkimambo/xenopipe/internal/dag"
	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/logger"
	"github.com/maxkimambo/xenopipe/internal/publish"
	"github.com/maxkimambo/xenopipe/internal/resources"
	"github.com/maxkimambo/xenopipe/internal/retry"
)

const EnvPrefix = "XENOPIPE_"

type Config struct {
	MaxParallelTasks     int           `yaml:"max_parallel_tasks" env:"MAX_PARALLEL_TASKS"`
	TaskTimeout          time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	WorkDir              string        `yaml:"work_dir" env:"WORK_DIR"`
	CollectIntermediates bool          `yaml:"collect_intermediates" env:"COLLECT_INTERMEDIATES"`
	ProgressInterval     time.Duration `yaml:"progress_interval" env:"PROGRESS_INTERVAL"`

	// ExhaustionScale multiplies memory and disk after a resource
	// exhaustion failure. 1 disables growth.
	ExhaustionScale float64 `yaml:"exhaustion_scale" env:"EXHAUSTION_SCALE"`

	// Images maps container image to its minimum requirements
	Images map[string]resources.ImageRequirement `yaml:"images"`

	Backend BackendConfig `yaml:"backend" envPrefix:"BACKEND_"`
	Retry   RetryConfig   `yaml:"retry" envPrefix:"RETRY_"`
	Archive ArchiveConfig `yaml:"archive" envPrefix:"ARCHIVE_"`
	Publish PublishConfig `yaml:"publish" envPrefix:"PUBLISH_"`
}

type BackendConfig struct {
	Kind             string   `yaml:"kind" env:"KIND"`
	Shell            string   `yaml:"shell" env:"SHELL"`
	DockerBinary     string   `yaml:"docker_binary" env:"DOCKER_BINARY"`
	DockerArgs       []string `yaml:"docker_args" env:"DOCKER_ARGS" envSeparator:" "`
	PreemptExitCodes []int    `yaml:"preempt_exit_codes" env:"PREEMPT_EXIT_CODES"`
	ExhaustExitCodes []int    `yaml:"exhaust_exit_codes" env:"EXHAUST_EXIT_CODES"`
}

type RetryConfig struct {
	InitialBackoff      time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	MaxBackoff          time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	Multiplier          float64       `yaml:"multiplier" env:"MULTIPLIER"`
	RandomizationFactor float64       `yaml:"randomization_factor" env:"RANDOMIZATION_FACTOR"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

type PublishConfig struct {
	// Destination is a directory or an s3://bucket/prefix URI. Empty
	// disables publishing.
	Destination       string `yaml:"destination" env:"DESTINATION"`
	S3Endpoint        string `yaml:"s3_endpoint" env:"S3_ENDPOINT"`
	S3Region          string `yaml:"s3_region" env:"S3_REGION"`
	S3AccessKeyID     string `yaml:"s3_access_key_id" env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
}

// Default returns the built-in configuration
func Default() *Config {
	policy := retry.DefaultPolicy()
	local := backend.DefaultLocalConfig()
	docker := backend.DefaultDockerConfig()

	return &Config{
		MaxParallelTasks: 4,
		WorkDir:          "runs",
		ProgressInterval: 30 * time.Second,
		ExhaustionScale:  1.5,
		Images:           map[string]resources.ImageRequirement{},
		Backend: BackendConfig{
			Kind:             "local",
			Shell:            local.Shell,
			DockerBinary:     docker.Binary,
			PreemptExitCodes: local.PreemptExitCodes,
			ExhaustExitCodes: local.ExhaustExitCodes,
		},
		Retry: RetryConfig{
			InitialBackoff:      policy.InitialBackoff,
			MaxBackoff:          policy.MaxBackoff,
			Multiplier:          policy.Multiplier,
			RandomizationFactor: policy.RandomizationFactor,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "runs/archive.db",
		},
	}
}

// Load builds the configuration. path and envFile are optional; a missing
// .env in the working directory is not an error.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, wferrors.NewConfigFileError(path, err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, wferrors.NewConfigFileError(path, err)
		}
		logger.Op.WithFields(map[string]interface{}{"path": path}).Debug("loaded config file")
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, wferrors.NewConfigFileError(envFile, err)
		}
	} else if err := godotenv.Load(); err == nil {
		logger.Op.Debug("loaded .env from working directory")
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, wferrors.NewConfigurationError("environment", err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every value and returns the first problem found
func (c *Config) Validate() error {
	switch {
	case c.MaxParallelTasks < 1:
		return wferrors.NewConfigurationError("max_parallel_tasks", fmt.Sprintf("must be at least 1, got %d", c.MaxParallelTasks))
	case c.TaskTimeout < 0:
		return wferrors.NewConfigurationError("task_timeout", "must not be negative")
	case strings.TrimSpace(c.WorkDir) == "":
		return wferrors.NewConfigurationError("work_dir", "must not be empty")
	case c.ProgressInterval < 0:
		return wferrors.NewConfigurationError("progress_interval", "must not be negative")
	case c.ExhaustionScale < 1:
		return wferrors.NewConfigurationError("exhaustion_scale", fmt.Sprintf("must be at least 1, got %g", c.ExhaustionScale))
	}

	switch c.Backend.Kind {
	case "local", "docker":
	default:
		return wferrors.NewConfigurationError("backend.kind", fmt.Sprintf("unknown backend '%s' (want local or docker)", c.Backend.Kind))
	}

	r := c.Retry
	switch {
	case r.InitialBackoff < 0 || r.MaxBackoff < 0:
		return wferrors.NewConfigurationError("retry", "backoff durations must not be negative")
	case r.MaxBackoff > 0 && r.MaxBackoff < r.InitialBackoff:
		return wferrors.NewConfigurationError("retry.max_backoff", "must not be smaller than initial_backoff")
	case r.Multiplier < 1:
		return wferrors.NewConfigurationError("retry.multiplier", fmt.Sprintf("must be at least 1, got %g", r.Multiplier))
	case r.RandomizationFactor < 0 || r.RandomizationFactor > 1:
		return wferrors.NewConfigurationError("retry.randomization_factor", "must be between 0 and 1")
	}

	for image, req := range c.Images {
		if req.MinCPU < 0 || req.MinMemoryGB < 0 {
			return wferrors.NewConfigurationError("images", fmt.Sprintf("negative minimum for %s", image))
		}
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return wferrors.NewConfigurationError("archive.path", "must be set when the archive is enabled")
	}
	if strings.HasPrefix(c.Publish.Destination, "s3://") {
		if _, _, err := publish.ParseS3URI(c.Publish.Destination); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		InitialBackoff:      c.Retry.InitialBackoff,
		MaxBackoff:          c.Retry.MaxBackoff,
		Multiplier:          c.Retry.Multiplier,
		RandomizationFactor: c.Retry.RandomizationFactor,
	}
}

func (c *Config) ExecutorConfig() *dag.ExecutorConfig {
	return &dag.ExecutorConfig{
		MaxParallelTasks:     c.MaxParallelTasks,
		TaskTimeout:          c.TaskTimeout,
		WorkDir:              c.WorkDir,
		CollectIntermediates: c.CollectIntermediates,
		Retry:                c.RetryPolicy(),
		ProgressInterval:     c.ProgressInterval,
	}
}

func (c *Config) Estimator() *resources.Estimator {
	return resources.NewEstimator(c.Images, c.ExhaustionScale)
}

// NewBackend creates the configured execution backend
func (c *Config) NewBackend() (backend.Backend, error) {
	local := backend.LocalConfig{
		Shell:            c.Backend.Shell,
		PreemptExitCodes: c.Backend.PreemptExitCodes,
		ExhaustExitCodes: c.Backend.ExhaustExitCodes,
	}
	docker := backend.DockerConfig{
		Binary:           c.Backend.DockerBinary,
		ExtraArgs:        c.Backend.DockerArgs,
		PreemptExitCodes: c.Backend.PreemptExitCodes,
		ExhaustExitCodes: c.Backend.ExhaustExitCodes,
	}
	return backend.New(c.Backend.Kind, local, docker)
}

func (c *Config) S3Options() publish.S3Options {
	return publish.S3Options{
		Endpoint:        c.Publish.S3Endpoint,
		Region:          c.Publish.S3Region,
		AccessKeyID:     c.Publish.S3AccessKeyID,
		SecretAccessKey: c.Publish.S3SecretAccessKey,
	}
}
