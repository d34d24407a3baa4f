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

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/kardianos/osext"

	"github.com/scanfuse/scanfuse/internal/backend"
	"github.com/scanfuse/scanfuse/internal/cfg"
	"github.com/scanfuse/scanfuse/internal/fs"
	"github.com/scanfuse/scanfuse/internal/logger"
	"github.com/scanfuse/scanfuse/internal/mount"
	"github.com/scanfuse/scanfuse/internal/scanner"
)

const (
	successfulMountMessage         = "File system has been successfully mounted."
	unsuccessfulMountMessagePrefix = "Error while mounting scanfuse"
)

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	// Unmount when the signal is received; the served Join then returns and
	// the process winds down.
	go func() {
		for {
			<-signalChan
			logger.Info("Received SIGINT, attempting to unmount...")

			err := fuse.Unmount(mountPoint)
			if err != nil {
				logger.Errorf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				logger.Infof("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}

func getFuseMountConfig(config *cfg.Config) *fuse.MountConfig {
	// Handle the repeated "-o" flag.
	parsedOptions := make(map[string]string)
	for _, o := range config.FuseOptions {
		mount.ParseOptions(parsedOptions, o)
	}

	mountCfg := &fuse.MountConfig{
		FSName:      "scanfuse",
		Subtype:     "scanfuse",
		ErrorLogger: logger.NewLegacyLogger(logger.ERROR, "fuse: "),
	}

	if config.Logging.Severity == logger.TRACE {
		mountCfg.DebugLogger = logger.NewLegacyLogger(logger.TRACE, "fuse_debug: ")
	}

	mount.ApplyOptions(mountCfg, parsedOptions)

	return mountCfg
}

// mountScanfuse brings up the backend mount, the scanner and the fuse
// session. On error nothing is left mounted.
func mountScanfuse(
	device string,
	mountPoint string,
	config *cfg.Config) (mfs *fuse.MountedFileSystem, b *backend.Mount, err error) {
	b, err = backend.MountDevice(device, config.OriginDir)
	if err != nil {
		return nil, nil, fmt.Errorf("mounting backing device: %w", err)
	}

	defer func() {
		if err != nil {
			if uerr := b.Unmount(); uerr != nil {
				logger.Errorf("Failed to unmount origin after error: %v", uerr)
			}
		}
	}()

	sc := scanner.NewClamd(scanner.Config{
		Address:   config.Scanner.Address,
		Allowlist: config.Scanner.Allowlist,
	})

	logger.Infof("Creating a new server...")
	server, err := fs.NewServer(&fs.ServerConfig{
		Clock:      timeutil.RealClock(),
		ProxyRoot:  mountPoint,
		OriginRoot: b.Dir(),
		Scanner:    sc,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("fs.NewServer: %w", err)
	}

	logger.Infof("Mounting file system at %q...", mountPoint)
	mfs, err = fuse.Mount(mountPoint, server, getFuseMountConfig(config))
	if err != nil {
		return nil, nil, fmt.Errorf("mount: %w", err)
	}

	return mfs, b, nil
}

////////////////////////////////////////////////////////////////////////
// Main logic
////////////////////////////////////////////////////////////////////////

func runMount(device string, mountPoint string, config *cfg.Config) error {
	// If we haven't been asked to run in foreground mode, run a daemon with
	// the foreground flag set and wait for it to mount.
	if !config.Foreground {
		path, err := osext.Executable()
		if err != nil {
			return fmt.Errorf("osext.Executable: %w", err)
		}

		// Be sure to pass along the canonicalized mount point, since the
		// daemon runs with a different working directory.
		args := append([]string{"--foreground"}, os.Args[1:]...)
		args[len(args)-1] = mountPoint

		env := []string{
			fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
		}
		if s, ok := os.LookupEnv(logger.SeverityEnvVar); ok {
			env = append(env, fmt.Sprintf("%s=%s", logger.SeverityEnvVar, s))
		}

		if err := daemonize.Run(path, args, env, os.Stdout, os.Stderr); err != nil {
			return fmt.Errorf("daemonize.Run: %w", err)
		}

		fmt.Fprintln(os.Stdout, successfulMountMessage)
		return nil
	}

	if err := logger.Init(config.Logging.Format, config.Logging.Severity, config.Logging.FilePath); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	callDaemonizeSignalOutcome := func(err error) {
		if err2 := daemonize.SignalOutcome(err); err2 != nil {
			logger.Errorf("Failed to signal outcome to parent process: %v", err2)
		}
	}

	mfs, b, err := mountScanfuse(device, mountPoint, config)
	if err != nil {
		logger.Errorf("%s: %v", unsuccessfulMountMessagePrefix, err)
		err = fmt.Errorf("%s: %w", unsuccessfulMountMessagePrefix, err)
		callDaemonizeSignalOutcome(err)
		return err
	}

	logger.Info(successfulMountMessage)
	callDaemonizeSignalOutcome(nil)

	// Let the user unmount with Ctrl-C (SIGINT).
	registerSIGINTHandler(mfs.Dir())

	// Wait for the file system to be unmounted, then tear down the origin
	// mount behind it.
	err = mfs.Join(context.Background())

	if uerr := b.Unmount(); uerr != nil {
		logger.Errorf("Failed to unmount origin: %v", uerr)
	}

	if err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}

	return nil
}
