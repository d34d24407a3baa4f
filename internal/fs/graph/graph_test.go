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

package graph

import (
	"os"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanfuse/scanfuse/internal/fs/fserrors"
	"github.com/scanfuse/scanfuse/internal/fs/inode"
)

func newTestGraph() *Graph {
	g := New()
	g.InsertRoot("/proxy", "/origin", dirAttrs())
	return g
}

func dirAttrs() inode.Attributes {
	return inode.NewAttrBuilder(timeutil.RealClock()).Mode(os.ModeDir | 0755).Build()
}

func fileAttrs() inode.Attributes {
	return inode.NewAttrBuilder(timeutil.RealClock()).Mode(0644).Build()
}

func TestRootGetsTheWellKnownID(t *testing.T) {
	g := newTestGraph()

	root, ok := g.ByID(fuseops.RootInodeID)
	require.True(t, ok)
	assert.Equal(t, fuseops.InodeID(fuseops.RootInodeID), root.ID())
	assert.Equal(t, "/proxy", root.ProxyPath())

	_, hasParent := g.ParentOf(root.ID())
	assert.False(t, hasParent)

	g.CheckInvariants()
}

func TestInsertAllocatesDenseIDs(t *testing.T) {
	g := newTestGraph()

	a, err := g.Insert(fuseops.RootInodeID, "/proxy/a", "/origin/a", fileAttrs())
	require.NoError(t, err)
	b, err := g.Insert(fuseops.RootInodeID, "/proxy/b", "/origin/b", fileAttrs())
	require.NoError(t, err)

	assert.Equal(t, fuseops.InodeID(2), a.ID())
	assert.Equal(t, fuseops.InodeID(3), b.ID())

	// The id is stamped into the attributes.
	assert.Equal(t, a.ID(), a.Attributes().Ino)

	g.CheckInvariants()
}

func TestInsertDuplicateBasename(t *testing.T) {
	g := newTestGraph()

	_, err := g.Insert(fuseops.RootInodeID, "/proxy/a", "/origin/a", fileAttrs())
	require.NoError(t, err)

	_, err = g.Insert(fuseops.RootInodeID, "/proxy/a", "/origin/a", fileAttrs())
	assert.ErrorIs(t, err, fserrors.FileExists)
}

func TestInsertUnderUnknownParent(t *testing.T) {
	g := newTestGraph()

	_, err := g.Insert(fuseops.InodeID(17), "/proxy/a", "/origin/a", fileAttrs())
	assert.ErrorIs(t, err, fserrors.NoSuchEntry)
}

func TestIDsAreNeverReused(t *testing.T) {
	g := newTestGraph()

	a, err := g.Insert(fuseops.RootInodeID, "/proxy/a", "/origin/a", fileAttrs())
	require.NoError(t, err)
	aID := a.ID()

	g.Remove(aID)

	b, err := g.Insert(fuseops.RootInodeID, "/proxy/b", "/origin/b", fileAttrs())
	require.NoError(t, err)
	assert.Greater(t, b.ID(), aID, "removal must not roll the id counter back")

	g.CheckInvariants()
}

func TestChildLookupAndIteration(t *testing.T) {
	g := newTestGraph()

	_, err := g.Insert(fuseops.RootInodeID, "/proxy/a", "/origin/a", fileAttrs())
	require.NoError(t, err)
	_, err = g.Insert(fuseops.RootInodeID, "/proxy/b", "/origin/b", fileAttrs())
	require.NoError(t, err)

	in, ok := g.ChildByName(fuseops.RootInodeID, "a")
	require.True(t, ok)
	assert.Equal(t, "/origin/a", in.OriginPath())

	_, ok = g.ChildByName(fuseops.RootInodeID, "c")
	assert.False(t, ok)

	assert.Len(t, g.Children(fuseops.RootInodeID), 2)
	assert.Equal(t, 2, g.ChildCount(fuseops.RootInodeID))
	assert.Equal(t, 3, g.Len())
}

func TestRemoveDropsTheParentEdge(t *testing.T) {
	g := newTestGraph()

	a, err := g.Insert(fuseops.RootInodeID, "/proxy/a", "/origin/a", fileAttrs())
	require.NoError(t, err)

	g.Remove(a.ID())

	_, ok := g.ByID(a.ID())
	assert.False(t, ok)
	_, ok = g.ChildByName(fuseops.RootInodeID, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, g.ChildCount(fuseops.RootInodeID))

	g.CheckInvariants()
}

func TestRewireMovesTheEdge(t *testing.T) {
	g := newTestGraph()

	d1, err := g.Insert(fuseops.RootInodeID, "/proxy/d1", "/origin/d1", dirAttrs())
	require.NoError(t, err)
	d2, err := g.Insert(fuseops.RootInodeID, "/proxy/d2", "/origin/d2", dirAttrs())
	require.NoError(t, err)
	f, err := g.Insert(d1.ID(), "/proxy/d1/f", "/origin/d1/f", fileAttrs())
	require.NoError(t, err)

	// Rename updates the paths first, then rewires.
	f.SetPaths("/proxy/d2/f", "/origin/d2/f")
	g.Rewire(f.ID(), d2.ID())

	_, ok := g.ChildByName(d1.ID(), "f")
	assert.False(t, ok)

	got, ok := g.ChildByName(d2.ID(), "f")
	require.True(t, ok)
	assert.Equal(t, f.ID(), got.ID(), "the handle stays stable across rewiring")

	p, ok := g.ParentOf(f.ID())
	require.True(t, ok)
	assert.Equal(t, d2.ID(), p)

	g.CheckInvariants()
}

func TestRewireReplacesExistingHolder(t *testing.T) {
	g := newTestGraph()

	d, err := g.Insert(fuseops.RootInodeID, "/proxy/d", "/origin/d", dirAttrs())
	require.NoError(t, err)
	old, err := g.Insert(d.ID(), "/proxy/d/x", "/origin/d/x", fileAttrs())
	require.NoError(t, err)
	mover, err := g.Insert(fuseops.RootInodeID, "/proxy/x", "/origin/x", fileAttrs())
	require.NoError(t, err)

	mover.SetPaths("/proxy/d/x", "/origin/d/x")
	g.Rewire(mover.ID(), d.ID())

	got, ok := g.ChildByName(d.ID(), "x")
	require.True(t, ok)
	assert.Equal(t, mover.ID(), got.ID())

	_, ok = g.ByID(old.ID())
	assert.False(t, ok, "the replaced holder leaves the graph")

	g.CheckInvariants()
}

func TestRekeyChild(t *testing.T) {
	g := newTestGraph()

	f, err := g.Insert(fuseops.RootInodeID, "/proxy/old", "/origin/old", fileAttrs())
	require.NoError(t, err)

	f.SetPaths("/proxy/new", "/origin/new")
	g.RekeyChild(fuseops.RootInodeID, "old", f.ID())

	_, ok := g.ChildByName(fuseops.RootInodeID, "old")
	assert.False(t, ok)

	got, ok := g.ChildByName(fuseops.RootInodeID, "new")
	require.True(t, ok)
	assert.Equal(t, f.ID(), got.ID())

	g.CheckInvariants()
}
