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

package inode

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanfuse/scanfuse/internal/fs/fserrors"
)

func newFileInode(t *testing.T, contents string) *Inode {
	t.Helper()

	var clock timeutil.SimulatedClock
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	attrs := NewAttrBuilder(&clock).Size(uint64(len(contents))).Mode(0644).Build()
	in := New(7, "/proxy/f", path, attrs)

	t.Cleanup(func() { in.CloseDescriptor() })

	return in
}

func TestNewStampsInoIntoAttributes(t *testing.T) {
	var clock timeutil.SimulatedClock

	in := New(9, "/proxy/x", "/origin/x", NewAttrBuilder(&clock).Build())

	assert.EqualValues(t, 9, in.ID())
	assert.EqualValues(t, 9, in.Attributes().Ino)
	in.CheckInvariants()
}

func TestBasename(t *testing.T) {
	var clock timeutil.SimulatedClock
	attrs := NewAttrBuilder(&clock).Build()

	assert.Equal(t, "x", New(2, "/proxy/d/x", "/o/d/x", attrs).Basename())
	assert.Equal(t, "..", New(3, "/", "/o", attrs).Basename())
	assert.Equal(t, "..", New(4, "", "/o", attrs).Basename())
}

func TestDescriptorLifecycle(t *testing.T) {
	in := newFileInode(t, "abc")

	require.NoError(t, in.AcquireDescriptor(true, false))
	require.NoError(t, in.AcquireDescriptor(true, true))
	assert.EqualValues(t, 2, in.OpenCount())

	closed, err := in.ReleaseDescriptor()
	require.NoError(t, err)
	assert.False(t, closed)

	closed, err = in.ReleaseDescriptor()
	require.NoError(t, err)
	assert.True(t, closed)
	assert.EqualValues(t, 0, in.OpenCount())

	// One more release is harmless.
	closed, err = in.ReleaseDescriptor()
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestIOWithoutDescriptor(t *testing.T) {
	in := newFileInode(t, "abc")

	_, err := in.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, fserrors.BadFD)

	_, err = in.WriteAt([]byte("x"), 0, time.Now())
	assert.ErrorIs(t, err, fserrors.BadFD)
}

func TestReadAtEOFIsAShortRead(t *testing.T) {
	in := newFileInode(t, "abc")
	require.NoError(t, in.AcquireDescriptor(true, false))

	buf := make([]byte, 10)
	n, err := in.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "bc", string(buf[:n]))
}

func TestWriteAtRejectsOffsetPastEnd(t *testing.T) {
	in := newFileInode(t, "abc")
	require.NoError(t, in.AcquireDescriptor(true, true))

	_, err := in.WriteAt([]byte("x"), 4, time.Now())
	assert.ErrorIs(t, err, fserrors.InvalidArgument)

	// Writing exactly at the end is an append.
	n, err := in.WriteAt([]byte("d"), 3, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 4, in.Attributes().Size)
}

func TestWriteAtUpdatesTimesAndSize(t *testing.T) {
	in := newFileInode(t, "abc")
	require.NoError(t, in.AcquireDescriptor(true, true))

	when := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	_, err := in.WriteAt([]byte("XYZ!"), 0, when)
	require.NoError(t, err)

	attrs := in.Attributes()
	assert.EqualValues(t, 4, attrs.Size)
	assert.Equal(t, when, attrs.Mtime)
	assert.Equal(t, when, attrs.Ctime)
}

func TestAdoptDescriptor(t *testing.T) {
	var clock timeutil.SimulatedClock
	path := filepath.Join(t.TempDir(), "new")

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	require.NoError(t, err)

	in := New(5, "/proxy/new", path, NewAttrBuilder(&clock).Build())
	in.AdoptDescriptor(f)

	assert.EqualValues(t, 1, in.OpenCount())
	assert.Panics(t, func() { in.AdoptDescriptor(f) })

	require.NoError(t, in.CloseDescriptor())
}
