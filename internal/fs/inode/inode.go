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

// Package inode models one node of the proxy file system's directory graph:
// the pair of paths it lives at (proxy side and origin side), its attribute
// snapshot, and the shared open descriptor on the origin file, if any.
package inode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/scanfuse/scanfuse/internal/fs/fserrors"
)

// An Inode is externally synchronized: the dispatcher's lock guards all
// mutation and all descriptor use.
type Inode struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	id fuseops.InodeID

	/////////////////////////
	// Mutable state
	/////////////////////////

	// Where the node is visible through the proxy mount, and where its bytes
	// actually live under the origin mount. Both absolute. Rename updates the
	// pair together.
	proxyPath  string
	originPath string

	attrs Attributes

	// The shared descriptor on the origin file, nil when no handle is open.
	//
	// INVARIANT: file == nil implies openCount == 0
	// INVARIANT: file != nil implies openCount >= 1
	file      *os.File
	openCount uint64
}

// New creates an inode with the given id and paths. The id is stamped into
// the attribute snapshot so attrs.Ino always agrees with it.
func New(id fuseops.InodeID, proxyPath, originPath string, attrs Attributes) *Inode {
	attrs.Ino = id
	return &Inode{
		id:         id,
		proxyPath:  proxyPath,
		originPath: originPath,
		attrs:      attrs,
	}
}

func (in *Inode) ID() fuseops.InodeID {
	return in.id
}

func (in *Inode) ProxyPath() string {
	return in.proxyPath
}

func (in *Inode) OriginPath() string {
	return in.originPath
}

// SetPaths moves the inode to a new proxy/origin path pair.
func (in *Inode) SetPaths(proxyPath, originPath string) {
	in.proxyPath = proxyPath
	in.originPath = originPath
}

// Basename is the last component of the proxy path, the name siblings are
// distinguished by. A path with no usable file name component reads as "..".
func (in *Inode) Basename() string {
	base := filepath.Base(in.proxyPath)
	if base == "/" || base == "." || base == "" {
		return ".."
	}

	return base
}

func (in *Inode) Attributes() Attributes {
	return in.attrs
}

func (in *Inode) SetAttributes(attrs Attributes) {
	attrs.Ino = in.id
	in.attrs = attrs
}

func (in *Inode) IsDir() bool {
	return in.attrs.IsDir()
}

// CheckInvariants panics if the inode's internal consistency is broken.
func (in *Inode) CheckInvariants() {
	if in.attrs.Ino != in.id {
		panic(fmt.Sprintf("attrs.Ino mismatch: %v vs. %v", in.attrs.Ino, in.id))
	}

	if in.file == nil && in.openCount != 0 {
		panic(fmt.Sprintf("open count %v without a descriptor", in.openCount))
	}

	if in.file != nil && in.openCount == 0 {
		panic("descriptor present with zero open count")
	}
}

////////////////////////////////////////////////////////////////////////
// Open-descriptor machinery
////////////////////////////////////////////////////////////////////////

// OpenCount reports how many unreleased handles share the descriptor.
func (in *Inode) OpenCount() uint64 {
	return in.openCount
}

// AcquireDescriptor makes sure the inode has an open descriptor on the origin
// file and counts one more handle against it. The first acquisition opens the
// origin file with the requested access; later acquisitions reuse the same
// descriptor regardless of what access they ask for; the per-handle access
// bits are enforced elsewhere.
func (in *Inode) AcquireDescriptor(read, write bool) error {
	if in.file != nil {
		in.openCount++
		return nil
	}

	var flag int
	switch {
	case read && write:
		flag = os.O_RDWR
	case write:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(in.originPath, flag, 0)
	if err != nil {
		return fserrors.FromError(err)
	}

	in.file = f
	in.openCount = 1

	return nil
}

// AdoptDescriptor installs an already-open origin descriptor, counting one
// handle against it. Used by create, which gets the descriptor for free from
// the exclusive-create open.
//
// REQUIRES: no descriptor is currently installed
func (in *Inode) AdoptDescriptor(f *os.File) {
	if in.file != nil {
		panic(fmt.Sprintf("inode %d already has a descriptor", in.id))
	}

	in.file = f
	in.openCount = 1
}

// ReleaseDescriptor counts one handle off the descriptor, closing it when the
// count reaches zero. Releasing with no descriptor installed is a no-op.
func (in *Inode) ReleaseDescriptor() (closed bool, err error) {
	if in.file == nil {
		return false, nil
	}

	in.openCount--
	if in.openCount > 0 {
		return false, nil
	}

	err = in.file.Close()
	in.file = nil

	return true, err
}

// CloseDescriptor drops the descriptor outright, whatever the count. For
// dispatcher teardown.
func (in *Inode) CloseDescriptor() error {
	if in.file == nil {
		return nil
	}

	err := in.file.Close()
	in.file = nil
	in.openCount = 0

	return err
}

////////////////////////////////////////////////////////////////////////
// I/O against the shared descriptor
////////////////////////////////////////////////////////////////////////

// ReadAt reads len(p) bytes from the origin file at the given offset. The
// read is positional and does not disturb the shared file position. A read
// that runs into the end of the file returns what was available with a nil
// error.
func (in *Inode) ReadAt(p []byte, offset int64) (int, error) {
	if in.file == nil {
		return 0, fserrors.BadFD
	}

	n, err := in.file.ReadAt(p, offset)
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return n, fserrors.FromError(err)
	}

	return n, nil
}

// WriteAt seeks the shared descriptor to the given offset and writes p there,
// returning how many bytes made it to the origin file. Writing past the
// current end of the origin file is rejected with InvalidArgument. On success
// the size is extended to cover the write and mtime/ctime move to now.
func (in *Inode) WriteAt(p []byte, offset int64, now time.Time) (int, error) {
	if in.file == nil {
		return 0, fserrors.BadFD
	}

	fi, err := in.file.Stat()
	if err != nil {
		return 0, fserrors.FromError(err)
	}

	if offset > fi.Size() {
		return 0, fserrors.InvalidArgument
	}

	if _, err := in.file.Seek(offset, io.SeekStart); err != nil {
		return 0, fserrors.FromError(err)
	}

	n, err := in.file.Write(p)
	if n > 0 {
		if end := uint64(offset) + uint64(n); end > in.attrs.Size {
			in.attrs.Size = end
		}
		in.attrs.Mtime = now
		in.attrs.Ctime = now
	}
	if err != nil {
		return n, fserrors.FromError(err)
	}

	return n, nil
}

// Sync forwards fsync to the shared descriptor. With no descriptor open
// there is nothing to sync.
func (in *Inode) Sync() error {
	if in.file == nil {
		return nil
	}

	if err := in.file.Sync(); err != nil {
		return fserrors.FromError(err)
	}

	return nil
}
