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

// A passthrough fuse file system that loop-mounts a device privately and
// re-exports it, hiding files the content scanner rejects.
//
// Usage:
//
//	scanfuse [flags] device mount_point
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/scanfuse/scanfuse/internal/cfg"
	"github.com/scanfuse/scanfuse/internal/util"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "scanfuse [flags] device mount_point",
	Short: "Mount a device behind a virus-scanning passthrough file system",
	Long: `scanfuse mounts the given device (or image file) at a private origin
directory and exposes it at mount_point, scanning each file on first sight
and hiding the ones the scanner rejects.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		device, mountPoint, err := populateArgs(args)
		if err != nil {
			return err
		}

		return runMount(device, mountPoint, config)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	cfg.BindFlags(rootCmd.PersistentFlags())
}

// populateArgs canonicalizes the positional arguments and insists both
// exist. Canonicalizing the mount point matters for daemonizing, since the
// daemon changes its working directory before running this code again.
func populateArgs(args []string) (device string, mountPoint string, err error) {
	device, err = util.GetResolvedPath(args[0])
	if err != nil {
		return "", "", fmt.Errorf("canonicalizing device path: %w", err)
	}

	mountPoint, err = util.GetResolvedPath(args[1])
	if err != nil {
		return "", "", fmt.Errorf("canonicalizing mount point: %w", err)
	}

	if _, err := os.Stat(device); err != nil {
		return "", "", fmt.Errorf("device path %q: %w", device, err)
	}

	if _, err := os.Stat(mountPoint); err != nil {
		return "", "", fmt.Errorf("mount point %q: %w", mountPoint, err)
	}

	return device, mountPoint, nil
}

// loadConfig merges flags and the optional config file into one Config;
// flags win.
func loadConfig(cmd *cobra.Command) (*cfg.Config, error) {
	v := viper.New()

	for flagName, key := range cfg.FlagKeys() {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flagName)); err != nil {
			return nil, fmt.Errorf("binding flag %q: %w", flagName, err)
		}
	}

	if cfgFile != "" {
		resolved, err := util.GetResolvedPath(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("resolving config file path: %w", err)
		}

		v.SetConfigFile(resolved)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config cfg.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
