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

// Package fs implements the proxy file system: a dispatcher that translates
// kernel-issued inode ids and file handles into paths on the origin mount,
// forwarding I/O there and gating newly seen files through the scanner.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"

	"github.com/scanfuse/scanfuse/internal/fs/fserrors"
	"github.com/scanfuse/scanfuse/internal/fs/graph"
	"github.com/scanfuse/scanfuse/internal/fs/handle"
	"github.com/scanfuse/scanfuse/internal/fs/inode"
	"github.com/scanfuse/scanfuse/internal/logger"
	"github.com/scanfuse/scanfuse/internal/scanner"
)

// How long the kernel may cache entries and attributes we hand out.
const cacheTTL = time.Second

type ServerConfig struct {
	// A clock for attribute timestamps and time-or-now resolution.
	Clock timeutil.Clock

	// Where the file system is exposed to the rest of the system.
	ProxyRoot string

	// Where the backing device is actually mounted. All real I/O happens
	// under this root.
	OriginRoot string

	// Classifies origin files during directory ingestion.
	Scanner scanner.Scanner
}

// NewServer creates a fuse server for the given configuration. The origin
// root is statted here and becomes the root inode, so a dead origin mount
// fails the construction rather than the first kernel request.
func NewServer(cfg *ServerConfig) (fuse.Server, error) {
	fs, err := newFileSystem(cfg)
	if err != nil {
		return nil, err
	}

	return fuseutil.NewFileSystemServer(fs), nil
}

func newFileSystem(cfg *ServerConfig) (*fileSystem, error) {
	fi, err := os.Stat(cfg.OriginRoot)
	if err != nil {
		return nil, fmt.Errorf("stat of origin root: %w", err)
	}

	fs := &fileSystem{
		clock:      cfg.Clock,
		scanner:    cfg.Scanner,
		proxyRoot:  cfg.ProxyRoot,
		originRoot: cfg.OriginRoot,
		graph:      graph.New(),
		handles:    make(map[fuseops.HandleID]*handle.FileHandle),
	}

	attrs := inode.NewAttrBuilder(fs.clock).FromFileInfo(fi).Build()
	fs.graph.InsertRoot(cfg.ProxyRoot, cfg.OriginRoot, attrs)

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	return fs, nil
}

////////////////////////////////////////////////////////////////////////
// fileSystem type
////////////////////////////////////////////////////////////////////////

// All state lives behind a single readers-writer lock. Operations that only
// consult the graph take the read side; anything that touches graph topology,
// attributes, or descriptor state takes the write side, holding it across the
// host syscall it performs. That serializes per-inode histories by
// construction.
type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	/////////////////////////
	// Dependencies
	/////////////////////////

	clock   timeutil.Clock
	scanner scanner.Scanner

	/////////////////////////
	// Constant data
	/////////////////////////

	proxyRoot  string
	originRoot string

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu syncutil.InvariantMutex

	// The directory graph. The root exists from construction until the
	// process exits.
	//
	// GUARDED_BY(mu)
	graph *graph.Graph

	// Live file handles, keyed by the handle value returned to the kernel.
	// A record may outlive its inode's graph membership: an unlinked file
	// stays readable and writable through handles opened before the unlink.
	//
	// INVARIANT: For each inode referenced, its open count equals the number
	//            of handles referencing it
	//
	// GUARDED_BY(mu)
	handles map[fuseops.HandleID]*handle.FileHandle

	// Allocation sequence for the upper bits of handed-out handles. Never
	// decremented, so handle values are unique for the process lifetime.
	//
	// GUARDED_BY(mu)
	nextHandleSeq uint64
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) checkInvariants() {
	fs.graph.CheckInvariants()

	// The root exists, with the well-known id and the two path roots.
	root, ok := fs.graph.ByID(fuseops.RootInodeID)
	if !ok {
		panic("root inode missing")
	}
	if root.ProxyPath() != fs.proxyRoot || root.OriginPath() != fs.originRoot {
		panic(fmt.Sprintf(
			"root paths drifted: %q/%q vs. %q/%q",
			root.ProxyPath(), root.OriginPath(), fs.proxyRoot, fs.originRoot))
	}

	// Every node's origin path agrees with the path translation.
	fs.graph.ForEach(func(in *inode.Inode) {
		want := ToOrigin(fs.proxyRoot, fs.originRoot, in.ProxyPath())
		if in.OriginPath() != want {
			panic(fmt.Sprintf(
				"origin path %q disagrees with translation %q of %q",
				in.OriginPath(), want, in.ProxyPath()))
		}
	})

	// Per-inode open counts match the number of outstanding handles. Inodes
	// unlinked from the graph are counted through the handle records that
	// keep them alive.
	counts := make(map[*inode.Inode]uint64)
	for _, rec := range fs.handles {
		counts[rec.In]++
	}

	for in, n := range counts {
		if in.OpenCount() != n {
			panic(fmt.Sprintf(
				"inode %v open count %v vs. %v outstanding handles",
				in.ID(), in.OpenCount(), n))
		}
	}

	fs.graph.ForEach(func(in *inode.Inode) {
		if in.OpenCount() != counts[in] {
			panic(fmt.Sprintf(
				"inode %v open count %v vs. %v outstanding handles",
				in.ID(), in.OpenCount(), counts[in]))
		}
	})
}

// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) allocateHandle(
	in *inode.Inode,
	read bool,
	write bool) fuseops.HandleID {
	fs.nextHandleSeq++
	fh := handle.Pack(fs.nextHandleSeq, read, write)
	fs.handles[fh] = &handle.FileHandle{In: in, Read: read, Write: write}

	return fh
}

// Resolve a handle to its inode. The resolution goes through the handle
// record rather than the graph so handles keep working across an unlink.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) inodeForHandle(
	id fuseops.InodeID,
	fh fuseops.HandleID) (*inode.Inode, error) {
	rec, ok := fs.handles[fh]
	if !ok || rec.In.ID() != id {
		return nil, fserrors.BadFD
	}

	return rec.In, nil
}

// Build a child entry for the kernel from an inode snapshot.
func (fs *fileSystem) childEntry(in *inode.Inode) fuseops.ChildInodeEntry {
	expiry := fs.clock.Now().Add(cacheTTL)
	return fuseops.ChildInodeEntry{
		Child:                in.ID(),
		Attributes:           in.Attributes().External(),
		AttributesExpiration: expiry,
		EntryExpiration:      expiry,
	}
}

////////////////////////////////////////////////////////////////////////
// Core operations
//
// These are the dispatcher contracts; the fuseutil methods below are thin
// decoding shims over them. All errors are fserrors kinds.
////////////////////////////////////////////////////////////////////////

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) lookUp(parentID fuseops.InodeID, name string) (*inode.Inode, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, ok := fs.graph.ByID(parentID); !ok {
		return nil, fserrors.NoSuchEntry
	}

	child, ok := fs.graph.ChildByName(parentID, name)
	if !ok {
		return nil, fserrors.NoSuchEntry
	}

	return child, nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) getAttributes(id fuseops.InodeID) (inode.Attributes, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	in, ok := fs.graph.ByID(id)
	if !ok {
		return inode.Attributes{}, fserrors.NoSuchEntry
	}

	return in.Attributes(), nil
}

// A TimeSpec is a setattr timestamp argument: either an explicit instant or
// "the clock at the moment of update".
type TimeSpec struct {
	Now  bool
	Time time.Time
}

func (ts *TimeSpec) resolve(clock timeutil.Clock) time.Time {
	if ts.Now {
		return clock.Now()
	}

	return ts.Time
}

// setInodeTimes updates the given timestamp fields and returns the post-update
// attributes. Size, mode and ownership changes are accepted by the kernel
// surface but deliberately not applied here.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) setInodeTimes(
	id fuseops.InodeID,
	atime, mtime, ctime, crtime *TimeSpec) (inode.Attributes, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.graph.ByID(id)
	if !ok {
		return inode.Attributes{}, fserrors.NoSuchEntry
	}

	attrs := in.Attributes()
	if atime != nil {
		attrs.Atime = atime.resolve(fs.clock)
	}
	if mtime != nil {
		attrs.Mtime = mtime.resolve(fs.clock)
	}
	if ctime != nil {
		attrs.Ctime = ctime.resolve(fs.clock)
	}
	if crtime != nil {
		attrs.Crtime = crtime.resolve(fs.clock)
	}
	in.SetAttributes(attrs)

	return attrs, nil
}

// openFile opens a handle on an existing inode with the given access mode.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) openFile(
	id fuseops.InodeID,
	read bool,
	write bool) (fuseops.HandleID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, ok := fs.graph.ByID(id)
	if !ok {
		return 0, fserrors.NoSuchEntry
	}

	if err := in.AcquireDescriptor(read, write); err != nil {
		return 0, err
	}

	return fs.allocateHandle(in, read, write), nil
}

// createFile creates a regular file under the parent, both on the origin and
// in the graph, and opens a handle on it.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) createFile(
	parentID fuseops.InodeID,
	name string,
	mode os.FileMode,
	read bool,
	write bool) (*inode.Inode, fuseops.HandleID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, f, err := fs.createEntry(parentID, name, mode, false)
	if err != nil {
		return nil, 0, err
	}

	in.AdoptDescriptor(f)
	fh := fs.allocateHandle(in, read, write)

	return in, fh, nil
}

// makeDir creates a directory under the parent.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) makeDir(
	parentID fuseops.InodeID,
	name string,
	mode os.FileMode) (*inode.Inode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in, _, err := fs.createEntry(parentID, name, mode, true)
	return in, err
}

// createEntry is the shared create/mkdir path. For files, the descriptor of
// the exclusive create is returned for adoption.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) createEntry(
	parentID fuseops.InodeID,
	name string,
	mode os.FileMode,
	dir bool) (*inode.Inode, *os.File, error) {
	parent, ok := fs.graph.ByID(parentID)
	if !ok {
		return nil, nil, fserrors.NoSuchEntry
	}

	if _, ok := fs.graph.ChildByName(parentID, name); ok {
		return nil, nil, fserrors.FileExists
	}

	proxyPath := filepath.Join(parent.ProxyPath(), name)
	originPath := ToOrigin(fs.proxyRoot, fs.originRoot, proxyPath)

	// The full 12-bit permission field: rwx triples plus setuid, setgid and
	// sticky. Mode.Perm() would drop the special bits.
	perm := mode & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)

	var f *os.File
	b := inode.NewAttrBuilder(fs.clock)
	if dir {
		if err := os.Mkdir(originPath, perm); err != nil {
			logger.Errorf("Failed to create directory %q: %v", originPath, err)
			return nil, nil, fserrors.FromError(err)
		}
		b.Mode(os.ModeDir | perm)
	} else {
		var err error
		f, err = os.OpenFile(originPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		if err != nil {
			logger.Errorf("Failed to create file %q: %v", originPath, err)
			return nil, nil, fserrors.FromError(err)
		}
		b.Mode(perm)
	}

	in, err := fs.graph.Insert(parentID, proxyPath, originPath, b.Build())
	if err != nil {
		// The sibling check above makes this unreachable in practice; don't
		// leave the origin entry behind if it happens anyway.
		if f != nil {
			f.Close()
		}
		os.Remove(originPath)
		return nil, nil, err
	}

	return in, f, nil
}

// removeEntry backs unlink and rmdir.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) removeEntry(
	parentID fuseops.InodeID,
	name string,
	dir bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.graph.ByID(parentID); !ok {
		return fserrors.NoSuchEntry
	}

	child, ok := fs.graph.ChildByName(parentID, name)
	if !ok {
		return fserrors.NoSuchEntry
	}

	if dir {
		if !child.IsDir() {
			return fserrors.NotADirectory
		}

		if fs.graph.ChildCount(child.ID()) != 0 {
			return fserrors.DirectoryNotEmpty
		}

		if err := os.RemoveAll(child.OriginPath()); err != nil {
			return fserrors.FromError(err)
		}
	} else {
		if child.IsDir() {
			return fserrors.IsADirectory
		}

		if err := os.Remove(child.OriginPath()); err != nil {
			return fserrors.FromError(err)
		}
	}

	fs.graph.Remove(child.ID())

	return nil
}

// renameEntry renames atomically on the host, then repaths the moved subtree
// and rewires its parent edge. Whether an existing destination is replaced is
// the host's call; a replaced destination's subtree is dropped from the graph.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) renameEntry(
	oldParentID fuseops.InodeID,
	oldName string,
	newParentID fuseops.InodeID,
	newName string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.graph.ByID(oldParentID); !ok {
		return fserrors.NoSuchEntry
	}

	newParent, ok := fs.graph.ByID(newParentID)
	if !ok {
		return fserrors.InvalidArgument
	}

	child, ok := fs.graph.ChildByName(oldParentID, oldName)
	if !ok {
		return fserrors.NoSuchEntry
	}

	newProxy := filepath.Join(newParent.ProxyPath(), newName)
	newOrigin := ToOrigin(fs.proxyRoot, fs.originRoot, newProxy)

	if err := os.Rename(child.OriginPath(), newOrigin); err != nil {
		return fserrors.FromError(err)
	}

	fs.repathSubtree(child, newProxy, newOrigin)

	if oldParentID == newParentID {
		fs.graph.RekeyChild(oldParentID, oldName, child.ID())
	} else {
		fs.graph.Rewire(child.ID(), newParentID)
	}

	return nil
}

// LOCKS_REQUIRED(fs.mu)
func (fs *fileSystem) repathSubtree(in *inode.Inode, proxyPath, originPath string) {
	in.SetPaths(proxyPath, originPath)
	for _, child := range fs.graph.Children(in.ID()) {
		name := child.Basename()
		fs.repathSubtree(
			child,
			filepath.Join(proxyPath, name),
			filepath.Join(originPath, name))
	}
}

// readFile reads into dst at the given offset through the given handle. The
// effective length is capped by the attribute size; within it, exactly that
// many bytes come back.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) readFile(
	id fuseops.InodeID,
	fh fuseops.HandleID,
	offset int64,
	dst []byte) (int, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if !handle.CanRead(fh) {
		return 0, fserrors.OpNotPermitted
	}

	in, err := fs.inodeForHandle(id, fh)
	if err != nil {
		return 0, err
	}

	size := in.Attributes().Size
	var effective int64
	if uint64(offset) < size {
		effective = int64(size - uint64(offset))
	}
	if effective > int64(len(dst)) {
		effective = int64(len(dst))
	}
	if effective == 0 {
		return 0, nil
	}

	return in.ReadAt(dst[:effective], offset)
}

// writeFile writes data at the given offset through the given handle and
// reports how many bytes landed.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) writeFile(
	id fuseops.InodeID,
	fh fuseops.HandleID,
	offset int64,
	data []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !handle.CanWrite(fh) {
		return 0, fserrors.OpNotPermitted
	}

	in, err := fs.inodeForHandle(id, fh)
	if err != nil {
		return 0, err
	}

	return in.WriteAt(data, offset, fs.clock.Now())
}

// releaseHandle drops a handed-out handle, closing the shared descriptor when
// the last one goes. Unknown handles are ignored: release never fails
// observably.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) releaseHandle(fh fuseops.HandleID) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec, ok := fs.handles[fh]
	if !ok {
		return
	}
	delete(fs.handles, fh)

	closed, err := rec.In.ReleaseDescriptor()
	if err != nil {
		logger.Errorf("Failed to close descriptor for inode %d: %v", rec.In.ID(), err)
	}
	if closed {
		logger.Tracef("Closed origin descriptor for inode %d", rec.In.ID())
	}
}

// access resolves the inode for existence only; permission enforcement rides
// on the host.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) access(id fuseops.InodeID) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, ok := fs.graph.ByID(id); !ok {
		return fserrors.NoSuchEntry
	}

	return nil
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) error {
	var st unix.Statfs_t
	if err := unix.Statfs(fs.originRoot, &st); err != nil {
		return fserrors.FromError(err).Errno()
	}

	op.BlockSize = uint32(st.Bsize)
	op.Blocks = st.Blocks
	op.BlocksFree = st.Bfree
	op.BlocksAvailable = st.Bavail
	op.IoSize = uint32(st.Bsize)
	op.Inodes = st.Files
	op.InodesFree = st.Ffree

	return nil
}

func (fs *fileSystem) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	child, err := fs.lookUp(op.Parent, op.Name)
	if err != nil {
		return fserrors.ToErrno(err)
	}

	op.Entry = fs.childEntry(child)

	return nil
}

func (fs *fileSystem) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	attrs, err := fs.getAttributes(op.Inode)
	if err != nil {
		return fserrors.ToErrno(err)
	}

	op.Attributes = attrs.External()
	op.AttributesExpiration = fs.clock.Now().Add(cacheTTL)

	return nil
}

func (fs *fileSystem) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) error {
	var atime, mtime *TimeSpec
	if op.Atime != nil {
		atime = &TimeSpec{Time: *op.Atime}
	}
	if op.Mtime != nil {
		mtime = &TimeSpec{Time: *op.Mtime}
	}

	// Size and mode arrive here too; they are accepted and left alone.
	attrs, err := fs.setInodeTimes(op.Inode, atime, mtime, nil, nil)
	if err != nil {
		return fserrors.ToErrno(err)
	}

	op.Attributes = attrs.External()
	op.AttributesExpiration = fs.clock.Now().Add(cacheTTL)

	return nil
}

func (fs *fileSystem) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp) error {
	in, err := fs.makeDir(op.Parent, op.Name, op.Mode)
	if err != nil {
		logger.Errorf("MkDir %q under inode %d: %v", op.Name, op.Parent, err)
		return fserrors.ToErrno(err)
	}

	op.Entry = fs.childEntry(in)

	return nil
}

func (fs *fileSystem) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	// The kernel opens the created file for us; the descriptor is minted with
	// both access bits, matching the read-write origin open of the exclusive
	// create.
	in, fh, err := fs.createFile(op.Parent, op.Name, op.Mode, true, true)
	if err != nil {
		logger.Errorf("CreateFile %q under inode %d: %v", op.Name, op.Parent, err)
		return fserrors.ToErrno(err)
	}

	op.Entry = fs.childEntry(in)
	op.Handle = fh

	return nil
}

func (fs *fileSystem) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp) error {
	if err := fs.removeEntry(op.Parent, op.Name, true); err != nil {
		return fserrors.ToErrno(err)
	}

	return nil
}

func (fs *fileSystem) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) error {
	if err := fs.removeEntry(op.Parent, op.Name, false); err != nil {
		return fserrors.ToErrno(err)
	}

	return nil
}

func (fs *fileSystem) Rename(
	ctx context.Context,
	op *fuseops.RenameOp) error {
	err := fs.renameEntry(op.OldParent, op.OldName, op.NewParent, op.NewName)
	if err != nil {
		logger.Errorf(
			"Rename %q (inode %d) -> %q (inode %d): %v",
			op.OldName, op.OldParent, op.NewName, op.NewParent, err)
		return fserrors.ToErrno(err)
	}

	return nil
}

func (fs *fileSystem) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	var read, write bool
	switch {
	case op.OpenFlags.IsReadOnly():
		read = true
	case op.OpenFlags.IsWriteOnly():
		write = true
	case op.OpenFlags.IsReadWrite():
		read = true
		write = true
	default:
		return fserrors.InvalidArgument.Errno()
	}

	fh, err := fs.openFile(op.Inode, read, write)
	if err != nil {
		logger.Errorf("OpenFile inode %d: %v", op.Inode, err)
		return fserrors.ToErrno(err)
	}

	op.Handle = fh

	return nil
}

func (fs *fileSystem) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	n, err := fs.readFile(op.Inode, op.Handle, op.Offset, op.Dst)
	if err != nil {
		return fserrors.ToErrno(err)
	}

	op.BytesRead = n

	return nil
}

func (fs *fileSystem) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	n, err := fs.writeFile(op.Inode, op.Handle, op.Offset, op.Data)
	if err != nil {
		return fserrors.ToErrno(err)
	}

	if n < len(op.Data) {
		// The kernel treats a reply as a full write; surface the shortfall.
		logger.Warnf(
			"Short write on inode %d: %d of %d bytes", op.Inode, n, len(op.Data))
		return fserrors.IO.Errno()
	}

	return nil
}

func (fs *fileSystem) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) error {
	return fserrors.ToErrno(fs.syncInode(op.Inode))
}

func (fs *fileSystem) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) error {
	return fserrors.ToErrno(fs.syncInode(op.Inode))
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) syncInode(id fuseops.InodeID) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	in, ok := fs.graph.ByID(id)
	if !ok {
		return fserrors.NoSuchEntry
	}

	return in.Sync()
}

func (fs *fileSystem) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) error {
	fs.releaseHandle(op.Handle)
	return nil
}

// Destroy releases every descriptor still held in the graph. The origin
// mount itself is torn down by whoever created it.
func (fs *fileSystem) Destroy() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, rec := range fs.handles {
		if err := rec.In.CloseDescriptor(); err != nil {
			logger.Errorf("Closing descriptor for inode %d: %v", rec.In.ID(), err)
		}
	}
	fs.graph.ForEach(func(in *inode.Inode) {
		if err := in.CloseDescriptor(); err != nil {
			logger.Errorf("Closing descriptor for inode %d: %v", in.ID(), err)
		}
	})
	fs.handles = make(map[fuseops.HandleID]*handle.FileHandle)
}
