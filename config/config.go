// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package config resolves agentid settings from command-line flags, the
// environment and an optional config.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aumos-ai/agentid/challenge"
	"github.com/aumos-ai/agentid/keystore"
	"github.com/aumos-ai/agentid/logging"
	"github.com/aumos-ai/agentid/types"
)

const (
	// HomeEnvKey overrides the agentid home directory, which is also the
	// default keystore location.
	HomeEnvKey = "AGENTID_HOME"
	// PassphraseEnvKey holds the keystore passphrase. Setting it to the empty
	// string disables encryption, like --no-encrypt.
	PassphraseEnvKey = "AGENTID_PASSPHRASE" // nolint:gosec
	// LogLevelEnvKey sets the diagnostic log level.
	LogLevelEnvKey = "AGENTID_LOG_LEVEL"

	defaultHomeDirName = ".agentid"
	fileName           = "config.yaml"
	defaultExpiresIn   = 120 * time.Second
)

// Output selects how command results are rendered.
type Output string

const (
	OutputTable Output = "table"
	OutputJSON  Output = "json"
)

// LookupEnv reads an environment variable. os.LookupEnv satisfies it.
type LookupEnv func(key string) (string, bool)

// File mirrors config.yaml.
type File struct {
	Keystore string `yaml:"keystore"`
	Output   string `yaml:"output"`
	LogLevel string `yaml:"log_level"`
	Auth     struct {
		ExpiresIn int `yaml:"expires_in"`
	} `yaml:"auth"`
}

// Flags are the global command-line overrides. Zero values mean unset.
type Flags struct {
	Keystore  string
	NoEncrypt bool
	JSON      bool
	LogLevel  string
}

// Settings are the fully resolved settings of one invocation.
type Settings struct {
	Home     string
	Keystore string
	Output   Output
	LogLevel zerolog.Level
	// Plaintext is set by --no-encrypt or by an empty passphrase variable.
	Plaintext  bool
	Passphrase string
	// AuthExpiresIn is the default lifetime of signed challenges.
	AuthExpiresIn time.Duration
}

// Load resolves Settings. A missing config.yaml is not an error.
func Load(env LookupEnv, flags Flags) (*Settings, error) {
	if env == nil {
		env = os.LookupEnv
	}

	home, fromEnv, err := homeDir(env)
	if err != nil {
		return nil, err
	}
	file, err := ReadFile(filepath.Join(home, fileName))
	if err != nil {
		return nil, err
	}

	s := &Settings{Home: home}

	switch {
	case flags.Keystore != "":
		s.Keystore = flags.Keystore
	case fromEnv:
		s.Keystore = home
	case file.Keystore != "":
		s.Keystore = resolvePath(home, file.Keystore)
	default:
		s.Keystore = home
	}

	switch {
	case flags.JSON:
		s.Output = OutputJSON
	case file.Output != "":
		switch o := Output(strings.ToLower(file.Output)); o {
		case OutputTable, OutputJSON:
			s.Output = o
		default:
			return nil, &types.ErrInvalidArgument{Field: "output", Reason: fmt.Sprintf("%q is not table or json", file.Output)}
		}
	default:
		s.Output = OutputTable
	}

	level := file.LogLevel
	if v, ok := env(LogLevelEnvKey); ok && v != "" {
		level = v
	}
	if flags.LogLevel != "" {
		level = flags.LogLevel
	}
	if s.LogLevel, err = logging.ParseLevel(level); err != nil {
		return nil, &types.ErrInvalidArgument{Field: "log-level", Reason: err.Error()}
	}

	switch exp := file.Auth.ExpiresIn; {
	case exp < 0:
		return nil, &types.ErrInvalidArgument{Field: "auth.expires_in", Reason: "must be positive"}
	case exp > int(challenge.MaxExpiresIn/time.Second):
		return nil, &types.ErrInvalidArgument{Field: "auth.expires_in", Reason: fmt.Sprintf("must be at most %s", challenge.MaxExpiresIn)}
	case exp == 0:
		s.AuthExpiresIn = defaultExpiresIn
	default:
		s.AuthExpiresIn = time.Duration(exp) * time.Second
	}

	// The passphrase only ever comes from the environment.
	if flags.NoEncrypt {
		s.Plaintext = true
	} else if pass, ok := env(PassphraseEnvKey); ok {
		s.Plaintext = pass == ""
		s.Passphrase = pass
	}
	return s, nil
}

// KeystoreConfig turns the settings into a keystore configuration. An unset
// passphrase without plaintext mode yields a configuration that Open rejects
// with ErrMissingPassphrase.
func (s *Settings) KeystoreConfig(logger *zerolog.Logger) keystore.Config {
	cfg := keystore.Config{
		Dir:    s.Keystore,
		Logger: logger,
	}
	if s.Plaintext {
		cfg.Plaintext = true
		return cfg
	}
	cfg.Passphrase = s.Passphrase
	return cfg
}

// ReadFile parses a config.yaml. A missing file yields an empty File.
func ReadFile(path string) (*File, error) {
	var f File
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

func homeDir(env LookupEnv) (string, bool, error) {
	if v, ok := env(HomeEnvKey); ok && strings.TrimSpace(v) != "" {
		return v, true, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("config: locate home directory (set %s): %w", HomeEnvKey, err)
	}
	return filepath.Join(userHome, defaultHomeDirName), false, nil
}

// resolvePath expands a leading ~/ and anchors relative paths at home.
func resolvePath(home, p string) string {
	if strings.HasPrefix(p, "~/") {
		if userHome, err := os.UserHomeDir(); err == nil {
			return filepath.Join(userHome, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}
