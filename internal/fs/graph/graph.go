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

// Package graph holds the rooted directory graph of inodes: every non-root
// node has exactly one parent edge, siblings are distinguished by the
// basename of their proxy path, and nodes are addressed by their stable
// inode id.
//
// The graph is not internally synchronized; the dispatcher's lock guards it.
package graph

import (
	"fmt"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/scanfuse/scanfuse/internal/fs/fserrors"
	"github.com/scanfuse/scanfuse/internal/fs/inode"
)

type Graph struct {
	// The collection of live inodes, keyed by id.
	//
	// INVARIANT: For all keys k, nodes[k].ID() == k
	// INVARIANT: For all keys k, fuseops.RootInodeID <= k < nextID
	nodes map[fuseops.InodeID]*inode.Inode

	// Parent edge per non-root node.
	//
	// INVARIANT: Every key and value is a key of nodes
	// INVARIANT: The root has no entry
	parents map[fuseops.InodeID]fuseops.InodeID

	// Child edges, keyed by the child's basename. The basename keying is what
	// enforces sibling-name uniqueness.
	//
	// INVARIANT: children[p][name].Basename() == name for the referenced node
	children map[fuseops.InodeID]map[string]fuseops.InodeID

	// The next inode id to hand out. Monotonic for the life of the graph:
	// removal never gives an id back, so ids are never reused.
	nextID fuseops.InodeID
}

func New() *Graph {
	return &Graph{
		nodes:    make(map[fuseops.InodeID]*inode.Inode),
		parents:  make(map[fuseops.InodeID]fuseops.InodeID),
		children: make(map[fuseops.InodeID]map[string]fuseops.InodeID),
		nextID:   fuseops.RootInodeID,
	}
}

// InsertRoot installs the distinguished root node. The root always receives
// fuseops.RootInodeID.
//
// REQUIRES: the graph is empty
func (g *Graph) InsertRoot(proxyPath, originPath string, attrs inode.Attributes) *inode.Inode {
	if len(g.nodes) != 0 {
		panic("InsertRoot on a non-empty graph")
	}

	id := g.mintID()
	root := inode.New(id, proxyPath, originPath, attrs)
	g.nodes[id] = root

	return root
}

// Insert allocates a fresh id, builds the node and links it under the parent.
// It fails with FileExists when a sibling already carries the same basename,
// and with NoSuchEntry when the parent is unknown.
func (g *Graph) Insert(
	parentID fuseops.InodeID,
	proxyPath string,
	originPath string,
	attrs inode.Attributes) (*inode.Inode, error) {
	if _, ok := g.nodes[parentID]; !ok {
		return nil, fserrors.NoSuchEntry
	}

	in := inode.New(g.mintID(), proxyPath, originPath, attrs)

	name := in.Basename()
	siblings := g.children[parentID]
	if _, ok := siblings[name]; ok {
		return nil, fserrors.FileExists
	}

	if siblings == nil {
		siblings = make(map[string]fuseops.InodeID)
		g.children[parentID] = siblings
	}

	g.nodes[in.ID()] = in
	g.parents[in.ID()] = parentID
	siblings[name] = in.ID()

	return in, nil
}

// ByID finds the node with the given id.
func (g *Graph) ByID(id fuseops.InodeID) (*inode.Inode, bool) {
	in, ok := g.nodes[id]
	return in, ok
}

// ChildByName finds the child of parentID whose basename equals name.
func (g *Graph) ChildByName(parentID fuseops.InodeID, name string) (*inode.Inode, bool) {
	childID, ok := g.children[parentID][name]
	if !ok {
		return nil, false
	}

	return g.nodes[childID], true
}

// Children returns the children of the given node, in no particular order.
func (g *Graph) Children(parentID fuseops.InodeID) []*inode.Inode {
	siblings := g.children[parentID]
	out := make([]*inode.Inode, 0, len(siblings))
	for _, id := range siblings {
		out = append(out, g.nodes[id])
	}

	return out
}

// ChildCount reports how many children the node has.
func (g *Graph) ChildCount(parentID fuseops.InodeID) int {
	return len(g.children[parentID])
}

// ParentOf returns the parent edge of the given node. The root has none.
func (g *Graph) ParentOf(id fuseops.InodeID) (fuseops.InodeID, bool) {
	p, ok := g.parents[id]
	return p, ok
}

// Remove deletes the node and its parent edge. The caller is responsible for
// having removed all descendants first.
func (g *Graph) Remove(id fuseops.InodeID) {
	if _, ok := g.nodes[id]; !ok {
		panic(fmt.Sprintf("Remove of unknown inode %d", id))
	}

	if len(g.children[id]) != 0 {
		panic(fmt.Sprintf("Remove of inode %d with %d children", id, len(g.children[id])))
	}

	if parentID, ok := g.parents[id]; ok {
		g.unlink(parentID, id)
		delete(g.parents, id)
	}

	delete(g.children, id)
	delete(g.nodes, id)
}

// Rewire moves the node's parent edge to newParentID, keying the new edge by
// the node's current basename. The caller must already have updated the
// node's paths.
func (g *Graph) Rewire(id, newParentID fuseops.InodeID) {
	in, ok := g.nodes[id]
	if !ok {
		panic(fmt.Sprintf("Rewire of unknown inode %d", id))
	}

	if _, ok := g.nodes[newParentID]; !ok {
		panic(fmt.Sprintf("Rewire onto unknown parent %d", newParentID))
	}

	if oldParentID, ok := g.parents[id]; ok {
		g.unlink(oldParentID, id)
	}

	siblings := g.children[newParentID]
	if siblings == nil {
		siblings = make(map[string]fuseops.InodeID)
		g.children[newParentID] = siblings
	}

	// The host rename has already replaced any previous holder of the name, so
	// drop a stale sibling edge (and its subtree root) if one is present.
	if oldID, ok := siblings[in.Basename()]; ok && oldID != id {
		g.removeSubtree(oldID)
	}

	siblings[in.Basename()] = id
	g.parents[id] = newParentID
}

// RekeyChild refreshes the edge key for a child whose basename changed
// without changing parents (same-directory rename).
func (g *Graph) RekeyChild(parentID fuseops.InodeID, oldName string, id fuseops.InodeID) {
	siblings := g.children[parentID]
	delete(siblings, oldName)

	in := g.nodes[id]
	if oldID, ok := siblings[in.Basename()]; ok && oldID != id {
		g.removeSubtree(oldID)
	}

	siblings[in.Basename()] = id
}

// Len reports the number of live nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// ForEach visits every live node.
func (g *Graph) ForEach(f func(*inode.Inode)) {
	for _, in := range g.nodes {
		f(in)
	}
}

// CheckInvariants panics when the graph's internal consistency is broken.
func (g *Graph) CheckInvariants() {
	for id, in := range g.nodes {
		if in.ID() != id {
			panic(fmt.Sprintf("id mismatch: %v vs. %v", in.ID(), id))
		}

		if id < fuseops.RootInodeID || id >= g.nextID {
			panic(fmt.Sprintf("illegal inode id: %v", id))
		}

		in.CheckInvariants()
	}

	for child, parent := range g.parents {
		if _, ok := g.nodes[child]; !ok {
			panic(fmt.Sprintf("parent edge from dead node %v", child))
		}

		if _, ok := g.nodes[parent]; !ok {
			panic(fmt.Sprintf("parent edge onto dead node %v", parent))
		}
	}

	for parentID, siblings := range g.children {
		for name, childID := range siblings {
			child, ok := g.nodes[childID]
			if !ok {
				panic(fmt.Sprintf("child edge onto dead node %v", childID))
			}

			if child.Basename() != name {
				panic(fmt.Sprintf(
					"child edge key %q disagrees with basename %q",
					name,
					child.Basename()))
			}

			if g.parents[childID] != parentID {
				panic(fmt.Sprintf(
					"parent edge of %v disagrees with child edge from %v",
					childID,
					parentID))
			}
		}
	}
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (g *Graph) mintID() fuseops.InodeID {
	id := g.nextID
	g.nextID++
	return id
}

func (g *Graph) unlink(parentID, childID fuseops.InodeID) {
	for name, id := range g.children[parentID] {
		if id == childID {
			delete(g.children[parentID], name)
			return
		}
	}
}

func (g *Graph) removeSubtree(id fuseops.InodeID) {
	for _, childID := range g.children[id] {
		g.removeSubtree(childID)
	}

	delete(g.children, id)
	if parentID, ok := g.parents[id]; ok {
		g.unlink(parentID, id)
		delete(g.parents, id)
	}
	delete(g.nodes, id)
}
