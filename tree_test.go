package viewport

import "testing"

func strPtr(s string) *string { return &s }

func makeSimpleTree() *VNode {
	return &VNode{
		ID:   1,
		Type: NodeBox,
		Props: NodeProps{
			Direction: "column",
		},
		Children: []*VNode{
			{
				ID:    2,
				Type:  NodeText,
				Props: NodeProps{Content: strPtr("Hello")},
			},
			{
				ID:    3,
				Type:  NodeText,
				Props: NodeProps{Content: strPtr("World")},
			},
		},
	}
}

func TestNewRenderTree(t *testing.T) {
	tree := NewRenderTree()
	if tree.Root != nil {
		t.Error("expected nil root")
	}
	if len(tree.Slots) != 0 {
		t.Error("expected empty slots")
	}
	if len(tree.NodeIndex) != 0 {
		t.Error("expected empty node index")
	}
}

func TestSetTreeRoot(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	if tree.Root == nil {
		t.Fatal("expected non-nil root")
	}
	if tree.Root.ID != 1 {
		t.Errorf("root ID = %d, want 1", tree.Root.ID)
	}
	if len(tree.NodeIndex) != 3 {
		t.Errorf("node index size = %d, want 3", len(tree.NodeIndex))
	}
	for _, id := range []int{1, 2, 3} {
		if _, ok := tree.NodeIndex[id]; !ok {
			t.Errorf("node %d not in index", id)
		}
	}
}

func TestApplyPatchSet(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ok := ApplyPatch(tree, PatchOp{
		Target: 2,
		Set:    map[string]interface{}{"content": "Changed"},
	})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}

	node := tree.NodeIndex[2]
	if node.Props.Content == nil || *node.Props.Content != "Changed" {
		t.Errorf("content = %v, want 'Changed'", node.Props.Content)
	}
}

func TestApplyPatchSetClear(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ApplyPatch(tree, PatchOp{Target: 2, Set: map[string]interface{}{"content": "Changed"}})
	ok := ApplyPatch(tree, PatchOp{Target: 2, Set: map[string]interface{}{"content": Clear}})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}

	node := tree.NodeIndex[2]
	if node.Props.Content != nil {
		t.Errorf("content = %v, want nil after Clear", *node.Props.Content)
	}
}

func TestApplyPatchRemove(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ok := ApplyPatch(tree, PatchOp{Target: 3, Remove: true})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}

	if len(tree.Root.Children) != 1 {
		t.Errorf("children count = %d, want 1", len(tree.Root.Children))
	}
	if _, exists := tree.NodeIndex[3]; exists {
		t.Error("removed node still in index")
	}
}

func TestApplyPatchChildrenInsert(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	newChild := &VNode{ID: 4, Type: NodeText, Props: NodeProps{Content: strPtr("Inserted")}}

	ok := ApplyPatch(tree, PatchOp{
		Target:         1,
		ChildrenInsert: &ChildrenInsert{Index: 1, Node: newChild},
	})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}

	if len(tree.Root.Children) != 3 {
		t.Errorf("children count = %d, want 3", len(tree.Root.Children))
	}
	if tree.Root.Children[1].ID != 4 {
		t.Errorf("inserted child ID = %d, want 4", tree.Root.Children[1].ID)
	}
}

func TestApplyPatchChildrenInsertRejectsIDCollision(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	// id 2 already exists elsewhere in the tree.
	dup := &VNode{ID: 2, Type: NodeText, Props: NodeProps{Content: strPtr("Dup")}}

	ok := ApplyPatch(tree, PatchOp{
		Target:         1,
		ChildrenInsert: &ChildrenInsert{Index: 0, Node: dup},
	})
	if ok {
		t.Fatal("expected ApplyPatch to reject an id collision")
	}
	if len(tree.Root.Children) != 2 {
		t.Errorf("children count = %d, want 2 (insert must not have happened)", len(tree.Root.Children))
	}
}

func TestApplyPatchReplaceAllowsReusingOwnSubtreeIDs(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	// Replacing node 2 with a new subtree that reuses id 2 itself must be
	// allowed: that id is freed by the very replacement removing it.
	replacement := &VNode{ID: 2, Type: NodeText, Props: NodeProps{Content: strPtr("Reused")}}

	ok := ApplyPatch(tree, PatchOp{Target: 2, Replace: replacement})
	if !ok {
		t.Fatal("expected replace reusing its own id to succeed")
	}
}

// TestApplyPatchSubtreeReplaceDropsIndexEntries replaces one child and
// checks the index holds exactly the surviving ids and the projection
// reflects the new subtree.
func TestApplyPatchSubtreeReplaceDropsIndexEntries(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, &VNode{
		ID: 1, Type: NodeBox,
		Children: []*VNode{
			{ID: 2, Type: NodeText, Props: NodeProps{Content: strPtr("x")}},
			{ID: 3, Type: NodeText, Props: NodeProps{Content: strPtr("y")}},
		},
	})

	ok := ApplyPatch(tree, PatchOp{Target: 2, Replace: &VNode{ID: 4, Type: NodeText, Props: NodeProps{Content: strPtr("z")}}})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}

	for _, id := range []int{1, 3, 4} {
		if _, present := tree.NodeIndex[id]; !present {
			t.Errorf("expected id %d in index", id)
		}
	}
	if _, present := tree.NodeIndex[2]; present {
		t.Error("replaced id 2 must be dropped from the index")
	}
	if got := TextProjection(tree); got != "z\ny" {
		t.Errorf("projection = %q, want %q", got, "z\ny")
	}
}

// TestApplyPatchReplaceThenSetSameOp: when an op carries both replace and
// set, the set applies to the new subtree if it kept the target id.
func TestApplyPatchReplaceThenSetSameOp(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ok := ApplyPatch(tree, PatchOp{
		Target:  2,
		Replace: &VNode{ID: 2, Type: NodeText, Props: NodeProps{Content: strPtr("replaced")}},
		Set:     map[string]interface{}{"content": "then set"},
	})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}
	node := tree.NodeIndex[2]
	if node.Props.Content == nil || *node.Props.Content != "then set" {
		t.Errorf("content = %v, want 'then set'", node.Props.Content)
	}
}

func TestApplyPatchChildrenInsertClampsToAppend(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ok := ApplyPatch(tree, PatchOp{
		Target:         1,
		ChildrenInsert: &ChildrenInsert{Index: 99, Node: &VNode{ID: 4, Type: NodeText, Props: NodeProps{Content: strPtr("last")}}},
	})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}
	if got := tree.Root.Children[len(tree.Root.Children)-1].ID; got != 4 {
		t.Errorf("appended child ID = %d, want 4", got)
	}
}

func TestApplyPatchChildrenRemoveOutOfRangeIsNoop(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ok := ApplyPatch(tree, PatchOp{Target: 1, ChildrenRemove: &ChildrenRemove{Index: 99}})
	if !ok {
		t.Fatal("out-of-range children_remove must not count as a failure")
	}
	if len(tree.Root.Children) != 2 {
		t.Errorf("children count = %d, want 2", len(tree.Root.Children))
	}
}

func TestApplyPatchChildrenMove(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ok := ApplyPatch(tree, PatchOp{Target: 1, ChildrenMove: &ChildrenMove{From: 0, To: 1}})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}
	if tree.Root.Children[0].ID != 3 || tree.Root.Children[1].ID != 2 {
		t.Errorf("children order = [%d %d], want [3 2]", tree.Root.Children[0].ID, tree.Root.Children[1].ID)
	}

	ok = ApplyPatch(tree, PatchOp{Target: 1, ChildrenMove: &ChildrenMove{From: 5, To: 0}})
	if !ok {
		t.Fatal("out-of-range children_move must not count as a failure")
	}
	if tree.Root.Children[0].ID != 3 {
		t.Error("out-of-range children_move must leave order unchanged")
	}
}

func TestApplyPatchRemoveRootEmptiesTree(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	ok := ApplyPatch(tree, PatchOp{Target: 1, Remove: true})
	if !ok {
		t.Fatal("ApplyPatch returned false")
	}
	if tree.Root != nil {
		t.Error("expected empty tree after removing root")
	}
	if len(tree.NodeIndex) != 0 {
		t.Errorf("index size = %d, want 0", len(tree.NodeIndex))
	}
}

func TestApplyPatchesEmptyBatch(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	applied, failed := ApplyPatches(tree, nil)
	if applied != 0 || failed != 0 {
		t.Errorf("applied=%d failed=%d, want 0/0", applied, failed)
	}
}

func TestApplyPatches(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	applied, failed := ApplyPatches(tree, []PatchOp{
		{Target: 2, Set: map[string]interface{}{"content": "A"}},
		{Target: 3, Set: map[string]interface{}{"content": "B"}},
		{Target: 999, Set: map[string]interface{}{"content": "C"}}, // non-existent
	})

	if applied != 2 {
		t.Errorf("applied = %d, want 2", applied)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestCountNodes(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	if count := CountNodes(tree.Root); count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestCountNodesNil(t *testing.T) {
	if count := CountNodes(nil); count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestTreeDepth(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	if depth := TreeDepth(tree.Root); depth != 2 {
		t.Errorf("depth = %d, want 2", depth)
	}
}

func TestTreeDepthNil(t *testing.T) {
	if depth := TreeDepth(nil); depth != 0 {
		t.Errorf("depth = %d, want 0", depth)
	}
}

func TestFindByID(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	node := FindByID(tree.Root, 2)
	if node == nil {
		t.Fatal("expected non-nil node")
	}
	if node.ID != 2 {
		t.Errorf("ID = %d, want 2", node.ID)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	if node := FindByID(tree.Root, 999); node != nil {
		t.Error("expected nil for non-existent ID")
	}
}

func TestFindByText(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	node := FindByText(tree.Root, "Hello")
	if node == nil {
		t.Fatal("expected non-nil node")
	}
	if node.ID != 2 {
		t.Errorf("ID = %d, want 2", node.ID)
	}
}

func TestFindNodes(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	texts := FindNodes(tree.Root, func(n *RenderNode) bool { return n.Type == NodeText })
	if len(texts) != 2 {
		t.Fatalf("found %d text nodes, want 2", len(texts))
	}
	if texts[0].ID != 2 || texts[1].ID != 3 {
		t.Errorf("found ids [%d %d], want [2 3] in depth-first order", texts[0].ID, texts[1].ID)
	}

	if none := FindNodes(tree.Root, func(n *RenderNode) bool { return n.Type == NodeCanvas }); len(none) != 0 {
		t.Errorf("found %d canvas nodes, want 0", len(none))
	}
}

func TestTreeString(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	s := TreeString(tree.Root)
	for _, want := range []string{"box#1", "text#2 \"Hello\"", "text#3 \"World\""} {
		if !containsStr(s, want) {
			t.Errorf("TreeString missing %q:\n%s", want, s)
		}
	}

	if got := TreeString(nil); got != "(nil)" {
		t.Errorf("TreeString(nil) = %q, want %q", got, "(nil)")
	}
}

// ── Version-gated mutation tests ─────────────────────────────────

func TestRenderTreeSetTreeVersionGate(t *testing.T) {
	tree := NewRenderTree()

	if !tree.SetTree(makeSimpleTree(), 5) {
		t.Fatal("expected first SetTree at seq 5 to apply")
	}
	stale := &VNode{ID: 9, Type: NodeText}
	if tree.SetTree(stale, 3) {
		t.Fatal("expected stale SetTree at seq 3 to be rejected")
	}
	if tree.Root.ID == 9 {
		t.Fatal("stale SetTree must not have mutated the tree")
	}
	if !tree.SetTree(stale, 6) {
		t.Fatal("expected newer seq 6 to apply")
	}
}

func TestRenderTreeSetTreeUnconditionalAtZero(t *testing.T) {
	tree := NewRenderTree()
	tree.SetTree(makeSimpleTree(), 10)

	if !tree.SetTree(&VNode{ID: 9, Type: NodeText}, 0) {
		t.Fatal("expected seq=0 to always apply unconditionally")
	}
}

func TestRenderTreeDefineSlotVersionGate(t *testing.T) {
	tree := NewRenderTree()

	if !tree.DefineSlot(1, ColorSlot{Kind: "color", Role: "primary", Value: "#fff"}, 2) {
		t.Fatal("expected first DefineSlot to apply")
	}
	if tree.DefineSlot(1, ColorSlot{Kind: "color", Role: "primary", Value: "#000"}, 2) {
		t.Fatal("expected equal seq to be rejected as stale")
	}
	if tree.DefineSlot(1, ColorSlot{Kind: "color", Role: "primary", Value: "#000"}, 1) {
		t.Fatal("expected older seq to be rejected as stale")
	}
}

func TestRenderTreeApplyPatchesVersioned(t *testing.T) {
	tree := NewRenderTree()
	tree.SetTree(makeSimpleTree(), 1)

	applied, failed, err := tree.ApplyPatchesVersioned([]PatchOp{
		{Target: 2, Set: map[string]interface{}{"content": "A"}},
		{Target: 999, Set: map[string]interface{}{"content": "B"}},
	}, 2)
	if applied != 1 || failed != 1 {
		t.Errorf("applied=%d failed=%d, want 1/1", applied, failed)
	}
	if err == nil {
		t.Error("expected a non-nil aggregated error for the missing target")
	}
}
