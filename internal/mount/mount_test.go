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

package mount

import (
	"testing"

	"github.com/jacobsa/fuse"
	"github.com/stretchr/testify/assert"
)

func TestParseOptions(t *testing.T) {
	m := make(map[string]string)

	ParseOptions(m, "allow_other,auto_unmount")
	ParseOptions(m, "fsname=backing.img")
	ParseOptions(m, "")

	assert.Equal(t, map[string]string{
		"allow_other":  "",
		"auto_unmount": "",
		"fsname":       "backing.img",
	}, m)
}

func TestParseOptionsSplitsOnFirstEquals(t *testing.T) {
	m := make(map[string]string)

	ParseOptions(m, "subtype=a=b")
	assert.Equal(t, "a=b", m["subtype"])
}

func TestApplyOptionsLiftsModeledNames(t *testing.T) {
	cfg := &fuse.MountConfig{FSName: "scanfuse", Subtype: "scanfuse"}

	parsed := map[string]string{
		"fsname":      "mydisk",
		"subtype":     "scanner",
		"ro":          "",
		"allow_other": "",
		"mystery":     "42",
	}
	ApplyOptions(cfg, parsed)

	assert.Equal(t, "mydisk", cfg.FSName)
	assert.Equal(t, "scanner", cfg.Subtype)
	assert.True(t, cfg.ReadOnly)

	// Recognized passthrough names and unknown ones ride along verbatim.
	assert.Equal(t, "", cfg.Options["allow_other"])
	assert.Equal(t, "42", cfg.Options["mystery"])

	// The lifted names don't leak into Options.
	_, ok := cfg.Options["fsname"]
	assert.False(t, ok)
}
