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

// Package handle packs file handles and tracks what each one is allowed to
// do. A handle is a 64-bit value whose low two bits gate access (bit 0
// allows reading, bit 1 allows writing) and whose upper bits carry an
// allocation sequence that keeps handles unique for the life of the process.
package handle

import (
	"github.com/jacobsa/fuse/fuseops"

	"github.com/scanfuse/scanfuse/internal/fs/inode"
)

const (
	readBit  = 1 << 0
	writeBit = 1 << 1
)

// A FileHandle is the dispatcher-side record behind one handed-out handle
// value: which inode it refers to and which access bits it was minted with.
// Holding the inode itself (not just its id) keeps the shared descriptor
// reachable for handles that outlive an unlink.
type FileHandle struct {
	In    *inode.Inode
	Read  bool
	Write bool
}

// Pack encodes an allocation sequence number and the access bits into a
// handle value.
func Pack(seq uint64, read, write bool) fuseops.HandleID {
	fh := seq << 2
	if read {
		fh |= readBit
	}
	if write {
		fh |= writeBit
	}

	return fuseops.HandleID(fh)
}

// CanRead reports whether the handle was minted with read access.
func CanRead(fh fuseops.HandleID) bool {
	return fh&readBit != 0
}

// CanWrite reports whether the handle was minted with write access.
func CanWrite(fh fuseops.HandleID) bool {
	return fh&writeBit != 0
}
