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

package fs

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/scanfuse/scanfuse/internal/fs/fserrors"
	"github.com/scanfuse/scanfuse/internal/fs/inode"
	"github.com/scanfuse/scanfuse/internal/logger"
	"github.com/scanfuse/scanfuse/internal/scanner"
)

////////////////////////////////////////////////////////////////////////
// Ingestion
////////////////////////////////////////////////////////////////////////

// addFolder ingests the origin directory behind the given inode: every entry
// not yet present in the graph is scanned and, unless the scanner condemns
// it, inserted as a child. Re-running on the same directory inserts nothing
// twice. Infected entries are skipped, staying invisible through the proxy,
// and the enumeration continues; a scanner breakdown aborts the whole
// ingestion.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) addFolder(id fuseops.InodeID) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir, ok := fs.graph.ByID(id)
	if !ok {
		return fserrors.NoSuchEntry
	}

	entries, err := os.ReadDir(dir.OriginPath())
	if err != nil {
		logger.Errorf("Reading origin directory %q: %v", dir.OriginPath(), err)
		return fserrors.FromError(err)
	}

	for _, entry := range entries {
		if _, ok := fs.graph.ChildByName(id, entry.Name()); ok {
			continue
		}

		originPath := filepath.Join(dir.OriginPath(), entry.Name())

		verdict, err := fs.scanner.Scan(originPath)
		if err != nil {
			logger.Errorf("Failed to scan %q: %v", originPath, err)
			return fserrors.IO
		}

		switch verdict {
		case scanner.Infected:
			logger.Errorf("%q is infected, suppressing it", originPath)
			continue
		case scanner.Whitelisted:
			logger.Warnf("%q is whitelisted", originPath)
		}

		fi, err := os.Lstat(originPath)
		if err != nil {
			logger.Errorf("Stat of %q: %v", originPath, err)
			return fserrors.FromError(err)
		}

		attrs := inode.NewAttrBuilder(fs.clock).FromFileInfo(fi).Build()
		proxyPath := ToProxy(fs.proxyRoot, fs.originRoot, originPath)

		if _, err := fs.graph.Insert(id, proxyPath, originPath, attrs); err != nil {
			return err
		}

		logger.Tracef("Ingested %q", proxyPath)
	}

	return nil
}

// readDirEntries yields the directory's entries past the given offset, one
// at a time, stopping early when emit reports back-pressure. The synthetic
// "." and ".." come first; the graph children follow, ordered by name so
// offsets stay meaningful across calls.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) readDirEntries(
	id fuseops.InodeID,
	offset fuseops.DirOffset,
	emit func(fuseutil.Dirent) bool) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, ok := fs.graph.ByID(id); !ok {
		return fserrors.NoSuchEntry
	}

	parentID := id
	if p, ok := fs.graph.ParentOf(id); ok {
		parentID = p
	}

	dirents := []fuseutil.Dirent{
		{Inode: id, Name: ".", Type: fuseutil.DT_Directory},
		{Inode: parentID, Name: "..", Type: fuseutil.DT_Directory},
	}

	children := fs.graph.Children(id)
	sort.Slice(children, func(i, j int) bool {
		return children[i].Basename() < children[j].Basename()
	})

	for _, child := range children {
		dirents = append(dirents, fuseutil.Dirent{
			Inode: child.ID(),
			Name:  child.Basename(),
			Type:  direntType(child.Attributes().Mode),
		})
	}

	for i := range dirents {
		dirents[i].Offset = fuseops.DirOffset(i + 1)
	}

	if offset > fuseops.DirOffset(len(dirents)) {
		return nil
	}

	for _, d := range dirents[offset:] {
		if !emit(d) {
			break
		}
	}

	return nil
}

func direntType(mode os.FileMode) fuseutil.DirentType {
	switch {
	case mode.IsDir():
		return fuseutil.DT_Directory
	case mode&os.ModeSymlink != 0:
		return fuseutil.DT_Link
	default:
		return fuseutil.DT_File
	}
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	if err := fs.addFolder(op.Inode); err != nil {
		logger.Errorf("OpenDir inode %d: %v", op.Inode, err)
		return fserrors.ToErrno(err)
	}

	// Directory handles are not distinct from inode ids here.
	op.Handle = fuseops.HandleID(op.Inode)

	return nil
}

func (fs *fileSystem) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	err := fs.readDirEntries(op.Inode, op.Offset, func(d fuseutil.Dirent) bool {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			return false
		}

		op.BytesRead += n
		return true
	})

	return fserrors.ToErrno(err)
}

func (fs *fileSystem) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) error {
	// Nothing was allocated in OpenDir.
	return nil
}
