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

// Package mount turns repeated "-o" mount-option strings into the
// configuration the fuse library expects.
package mount

import (
	"strings"

	"github.com/jacobsa/fuse"
)

// ParseOptions parses a single comma-separated "-o" value into the supplied
// map. Each element is NAME or NAME=VALUE; the split is on the first equals
// sign.
//
// mount(8) gives no way to escape a comma inside a value, so none is
// attempted here either.
func ParseOptions(m map[string]string, s string) {
	for _, opt := range strings.Split(s, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}

		var name, value string
		if i := strings.IndexByte(opt, '='); i != -1 {
			name = opt[:i]
			value = opt[i+1:]
		} else {
			name = opt
		}

		m[name] = value
	}
}

// ApplyOptions folds parsed options into the mount config. Names the
// fuse.MountConfig models directly (fsname, subtype, ro) are lifted into
// their fields. Everything else rides along verbatim in Options: the
// recognized passthrough set (auto_unmount, allow_other, allow_root,
// default_permissions, dev, nodev, suid, nosuid, rw, exec, noexec, atime,
// noatime, dirsync, sync, async) as well as anything unknown.
func ApplyOptions(cfg *fuse.MountConfig, parsed map[string]string) {
	if cfg.Options == nil {
		cfg.Options = make(map[string]string)
	}

	for name, value := range parsed {
		switch name {
		case "fsname":
			cfg.FSName = value
		case "subtype":
			cfg.Subtype = value
		case "ro":
			cfg.ReadOnly = true
		default:
			cfg.Options[name] = value
		}
	}
}
