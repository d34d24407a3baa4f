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

package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelFilesystemsSkipsNodevTypes(t *testing.T) {
	types, err := kernelFilesystems()
	require.NoError(t, err)

	// Block-device types only: the nodev pseudo filesystems every kernel
	// carries must have been filtered out.
	assert.NotContains(t, types, "proc")
	assert.NotContains(t, types, "tmpfs")
}

func TestMountDeviceRequiresAnExistingSource(t *testing.T) {
	_, err := MountDevice("/no/such/image", t.TempDir())
	assert.Error(t, err)
}
