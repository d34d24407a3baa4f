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

// Package backend mounts the backing device at a private origin directory.
// Image files are attached to a free loop device first; block devices are
// mounted directly. Teardown is a lazy unmount, so in-flight I/O on the
// proxy side fails with the device gone rather than wedging the unmount.
package backend

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/scanfuse/scanfuse/internal/logger"
)

// A Mount is an origin mount of the backing device, alive until Unmount.
type Mount struct {
	// The device or image the caller gave us.
	source string

	// The loop device carrying source, or "" when source is a block device
	// mounted directly.
	loopDevice string

	// The private directory the device is mounted at.
	dir string
}

// MountDevice mounts source at a fresh private directory under parentDir
// (the system temporary directory when empty) and returns the live mount.
func MountDevice(source, parentDir string) (m *Mount, err error) {
	fi, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("stat device: %w", err)
	}

	dir, err := os.MkdirTemp(parentDir, filepath.Base(source)+"-")
	if err != nil {
		return nil, fmt.Errorf("creating origin directory: %w", err)
	}

	m = &Mount{source: source, dir: dir}
	defer func() {
		if err != nil {
			os.Remove(dir)
		}
	}()

	device := source
	if fi.Mode().IsRegular() {
		if m.loopDevice, err = attachLoop(source); err != nil {
			return nil, fmt.Errorf("attaching loop device: %w", err)
		}
		device = m.loopDevice
	}

	if err = mountAuto(device, dir); err != nil {
		if m.loopDevice != "" {
			if derr := detachLoop(m.loopDevice); derr != nil {
				logger.Errorf("Failed to detach %s after mount failure: %v", m.loopDevice, derr)
			}
		}
		return nil, err
	}

	logger.Debugf("Mounted %q at origin %q", source, dir)

	return m, nil
}

// Dir is the origin root: the directory the backing device is mounted at.
func (m *Mount) Dir() string {
	return m.dir
}

// Unmount lazily detaches the origin mount, releases the loop device and
// removes the private directory.
func (m *Mount) Unmount() error {
	if err := unix.Unmount(m.dir, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmounting %q: %w", m.dir, err)
	}

	if m.loopDevice != "" {
		if err := detachLoop(m.loopDevice); err != nil {
			return err
		}
	}

	if err := os.Remove(m.dir); err != nil {
		return fmt.Errorf("removing origin directory: %w", err)
	}

	logger.Infof("Unmounted origin %q", m.dir)

	return nil
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// attachLoop binds the image file to the first free loop device.
func attachLoop(image string) (loopDevice string, err error) {
	ctl, err := os.OpenFile("/dev/loop-control", os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("opening loop-control: %w", err)
	}
	defer ctl.Close()

	n, err := unix.IoctlRetInt(int(ctl.Fd()), unix.LOOP_CTL_GET_FREE)
	if err != nil {
		return "", fmt.Errorf("LOOP_CTL_GET_FREE: %w", err)
	}

	loopDevice = fmt.Sprintf("/dev/loop%d", n)

	backing, err := os.OpenFile(image, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("opening image: %w", err)
	}
	defer backing.Close()

	loop, err := os.OpenFile(loopDevice, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", loopDevice, err)
	}
	defer loop.Close()

	if err := unix.IoctlSetInt(int(loop.Fd()), unix.LOOP_SET_FD, int(backing.Fd())); err != nil {
		return "", fmt.Errorf("LOOP_SET_FD: %w", err)
	}

	return loopDevice, nil
}

func detachLoop(loopDevice string) error {
	loop, err := os.OpenFile(loopDevice, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", loopDevice, err)
	}
	defer loop.Close()

	if err := unix.IoctlSetInt(int(loop.Fd()), unix.LOOP_CLR_FD, 0); err != nil {
		return fmt.Errorf("LOOP_CLR_FD: %w", err)
	}

	return nil
}

// mountAuto mounts the device, probing the kernel's filesystem list because
// mount(2), unlike mount(8), has no "auto" type.
func mountAuto(device, target string) error {
	types, err := kernelFilesystems()
	if err != nil {
		return err
	}

	var firstErr error
	for _, t := range types {
		err := unix.Mount(device, target, t, 0, "")
		if err == nil {
			return nil
		}

		if firstErr == nil {
			firstErr = fmt.Errorf("mounting %q as %s: %w", device, t, err)
		}
	}

	if firstErr == nil {
		firstErr = fmt.Errorf("no usable filesystem types for %q", device)
	}

	return firstErr
}

// kernelFilesystems lists the block-device filesystem types the running
// kernel knows, from /proc/filesystems.
func kernelFilesystems() ([]string, error) {
	f, err := os.Open("/proc/filesystems")
	if err != nil {
		return nil, fmt.Errorf("reading filesystem list: %w", err)
	}
	defer f.Close()

	var types []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		switch len(fields) {
		case 1:
			types = append(types, fields[0])
		case 2:
			// "nodev" types cannot back a block device.
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("reading filesystem list: %w", err)
	}

	return types, nil
}
