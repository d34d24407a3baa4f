// Copyright 2024 The scanfuse Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cfg holds the mount configuration, assembled from command-line
// flags and, optionally, a YAML config file.
package cfg

import (
	"fmt"

	"github.com/spf13/pflag"
)

type LoggingConfig struct {
	// One of OFF, ERROR, WARNING, INFO, DEBUG, TRACE.
	Severity string `mapstructure:"severity"`

	// "text" or "json".
	Format string `mapstructure:"format"`

	// Log to this file (with rotation) instead of stderr. Required when the
	// mount daemonizes, since the daemon has no terminal to write to.
	FilePath string `mapstructure:"file-path"`
}

type ScannerConfig struct {
	// The clamd socket, either a unix socket path or "tcp://host:port".
	Address string `mapstructure:"address"`

	// Basenames to admit with a warning instead of scanning.
	Allowlist []string `mapstructure:"allowlist"`
}

type Config struct {
	// Stay in the foreground instead of daemonizing.
	Foreground bool `mapstructure:"foreground"`

	// Parent directory for the private origin mountpoint. Empty means the
	// system temporary directory.
	OriginDir string `mapstructure:"origin-dir"`

	// Raw repeated "-o" values.
	FuseOptions []string `mapstructure:"o"`

	Logging LoggingConfig `mapstructure:"logging"`
	Scanner ScannerConfig `mapstructure:"scanner"`
}

// BindFlags declares every flag the mount understands on the given set. The
// flag names double as viper keys, so config-file values and flags land in
// the same place.
func BindFlags(flags *pflag.FlagSet) {
	flags.Bool("foreground", false, "Stay in the foreground after mounting.")
	flags.String("origin-dir", "", "Parent directory for the private origin mountpoint.")
	flags.StringArrayP("o", "o", nil, "Additional system-specific mount options. Be careful!")
	flags.String("log-severity", "", "Severity of logs to emit (OFF, ERROR, WARNING, INFO, DEBUG, TRACE).")
	flags.String("log-format", "text", "Format of the logs: 'text' or 'json'.")
	flags.String("log-file", "", "File to log to instead of stderr.")
	flags.String("scanner-address", "", "Address of the clamd socket.")
	flags.StringSlice("scanner-allowlist", nil, "Basenames to admit without scanning.")
}

// Validate rejects values no later stage can make sense of.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}

// FlagKeys maps each flag name onto the config key it populates, for binding
// flags and config-file entries to the same destination.
func FlagKeys() map[string]string {
	return map[string]string{
		"foreground":        "foreground",
		"origin-dir":        "origin-dir",
		"o":                 "o",
		"log-severity":      "logging.severity",
		"log-format":        "logging.format",
		"log-file":          "logging.file-path",
		"scanner-address":   "scanner.address",
		"scanner-allowlist": "scanner.allowlist",
	}
}
