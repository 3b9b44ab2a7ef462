// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package logging builds the zerolog logger used by the agentid binary.
// Diagnostics always go to stderr so stdout carries only command output.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = zerolog.WarnLevel

// ParseLevel maps a level name onto a zerolog level. The empty string yields
// DefaultLevel; "warning" and "critical" are accepted as aliases.
func ParseLevel(s string) (zerolog.Level, error) {
	switch name := strings.ToLower(strings.TrimSpace(s)); name {
	case "":
		return DefaultLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	default:
		lvl, err := zerolog.ParseLevel(name)
		if err != nil {
			return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", s)
		}
		return lvl, nil
	}
}

// New returns a human-readable logger writing to w at level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
