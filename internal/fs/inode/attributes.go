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
	"syscall"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
)

// Attributes is a snapshot of an inode's metadata. Mode carries both the type
// bits and the low permission bits, the usual os.FileMode encoding.
type Attributes struct {
	Ino    fuseops.InodeID
	Size   uint64
	Blocks uint64

	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time

	Mode  os.FileMode
	Nlink uint32

	Uid  uint32
	Gid  uint32
	Rdev uint32

	BlkSize uint32
}

// External converts the snapshot into the representation the kernel protocol
// library ships over the wire. Fields the protocol does not carry (blocks,
// block size) stay behind.
func (a Attributes) External() fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  a.Nlink,
		Mode:   a.Mode,
		Rdev:   a.Rdev,
		Atime:  a.Atime,
		Mtime:  a.Mtime,
		Ctime:  a.Ctime,
		Crtime: a.Crtime,
		Uid:    a.Uid,
		Gid:    a.Gid,
	}
}

// IsDir tells whether the attributes describe a directory.
func (a Attributes) IsDir() bool {
	return a.Mode.IsDir()
}

// An AttrBuilder accumulates attribute fields, starting from defaults: all
// four timestamps at the construction instant, a link count of one, and a
// regular-file mode with no permission bits.
type AttrBuilder struct {
	attrs Attributes
}

// NewAttrBuilder starts a builder whose timestamp defaults come from the
// supplied clock.
func NewAttrBuilder(clock timeutil.Clock) *AttrBuilder {
	now := clock.Now()
	return &AttrBuilder{
		attrs: Attributes{
			Atime:  now,
			Mtime:  now,
			Ctime:  now,
			Crtime: now,
			Nlink:  1,
		},
	}
}

func (b *AttrBuilder) Size(size uint64) *AttrBuilder {
	b.attrs.Size = size
	return b
}

func (b *AttrBuilder) Blocks(blocks uint64) *AttrBuilder {
	b.attrs.Blocks = blocks
	return b
}

func (b *AttrBuilder) Atime(t time.Time) *AttrBuilder {
	b.attrs.Atime = t
	return b
}

func (b *AttrBuilder) Mtime(t time.Time) *AttrBuilder {
	b.attrs.Mtime = t
	return b
}

func (b *AttrBuilder) Ctime(t time.Time) *AttrBuilder {
	b.attrs.Ctime = t
	return b
}

func (b *AttrBuilder) Crtime(t time.Time) *AttrBuilder {
	b.attrs.Crtime = t
	return b
}

// Mode sets the full file mode: type bits plus permissions.
func (b *AttrBuilder) Mode(mode os.FileMode) *AttrBuilder {
	b.attrs.Mode = mode
	return b
}

// Perm replaces only the permission bits, preserving the type bits.
func (b *AttrBuilder) Perm(perm os.FileMode) *AttrBuilder {
	b.attrs.Mode = b.attrs.Mode&^permMask | perm&permMask
	return b
}

func (b *AttrBuilder) Nlink(n uint32) *AttrBuilder {
	b.attrs.Nlink = n
	return b
}

func (b *AttrBuilder) Uid(uid uint32) *AttrBuilder {
	b.attrs.Uid = uid
	return b
}

func (b *AttrBuilder) Gid(gid uint32) *AttrBuilder {
	b.attrs.Gid = gid
	return b
}

func (b *AttrBuilder) Rdev(rdev uint32) *AttrBuilder {
	b.attrs.Rdev = rdev
	return b
}

func (b *AttrBuilder) BlkSize(size uint32) *AttrBuilder {
	b.attrs.BlkSize = size
	return b
}

// FromFileInfo fills the builder from a host stat result.
func (b *AttrBuilder) FromFileInfo(fi os.FileInfo) *AttrBuilder {
	b.attrs.Size = uint64(fi.Size())
	b.attrs.Mode = fi.Mode()
	b.attrs.Mtime = fi.ModTime()

	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		b.attrs.Blocks = uint64(st.Blocks)
		b.attrs.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		b.attrs.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
		b.attrs.Nlink = uint32(st.Nlink)
		b.attrs.Uid = st.Uid
		b.attrs.Gid = st.Gid
		b.attrs.Rdev = uint32(st.Rdev)
		b.attrs.BlkSize = uint32(st.Blksize)
	}

	return b
}

// Build returns the accumulated snapshot. The inode number is stamped later,
// by whoever allocates the id.
func (b *AttrBuilder) Build() Attributes {
	return b.attrs
}

// permMask covers the low twelve mode bits: rwx triples plus setuid, setgid
// and sticky.
const permMask = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky
