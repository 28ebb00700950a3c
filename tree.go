package viewport

import (
	"fmt"

	"go.uber.org/multierr"
)

// NewRenderTree creates an empty render tree with initialized maps.
func NewRenderTree() *RenderTree {
	return &RenderTree{
		Root:           nil,
		Slots:          make(map[int]SlotValue),
		Schemas:        make(map[int][]SchemaColumn),
		DataRows:       make(map[int][][]interface{}),
		NodeIndex:      make(map[int]*RenderNode),
		SlotVersions:   make(map[int]uint64),
		SchemaVersions: make(map[int]uint64),
		DataVersions:   make(map[int]uint64),
		NodeVersions:   make(map[int]uint64),
	}
}

// VNodeToRenderNode converts a VNode (virtual) into a RenderNode
// (materialized) and indexes all nodes into the provided map.
func VNodeToRenderNode(vnode *VNode, index map[int]*RenderNode) *RenderNode {
	if vnode == nil {
		return nil
	}

	children := make([]*RenderNode, 0, len(vnode.Children))
	for _, c := range vnode.Children {
		children = append(children, VNodeToRenderNode(c, index))
	}

	node := &RenderNode{
		ID:       vnode.ID,
		Type:     vnode.Type,
		Props:    vnode.Props,
		Children: children,
	}

	// The node-level textAlt override takes precedence over any props.TextAlt
	// already carried on the VNode.
	if vnode.TextAlt != nil {
		node.Props.TextAlt = vnode.TextAlt
	}

	index[node.ID] = node
	return node
}

// SetTreeRoot replaces the render tree root from a VNode, rebuilding the
// node index and clearing the per-node versions along with it. It does not
// touch TreeVersion or the slot/schema/data versions; see SetTree for the
// gated entry point messages should use.
func SetTreeRoot(tree *RenderTree, root *VNode) {
	for k := range tree.NodeIndex {
		delete(tree.NodeIndex, k)
	}
	for k := range tree.NodeVersions {
		delete(tree.NodeVersions, k)
	}
	tree.Root = VNodeToRenderNode(root, tree.NodeIndex)
}

// ── Version-gated entry points ───────────────────────────────────────
//
// Every keyed table (tree, per-node props, slots, schemas, data) carries its
// own monotonic version. A seq of 0 means "no version supplied" and always
// applies unconditionally — this keeps direct, in-process (non-wire) use of
// the tree simple. For the tree, slots, schemas, and data, a non-zero seq
// that is not strictly newer than the last one recorded for that key is
// rejected without error: the caller already has the newer state, so
// silently dropping the stale update is correct, not a failure. Per-node
// patches reject only a seq strictly older than the node's recorded one, so
// several ops in one PATCH batch (sharing its seq) compose on the same node.

// SetTree replaces the tree root if seq is newer than the tree's current
// version. Returns false if seq is stale.
func (t *RenderTree) SetTree(root *VNode, seq uint64) bool {
	if seq != 0 && seq <= t.TreeVersion {
		return false
	}
	SetTreeRoot(t, root)
	if seq != 0 {
		t.TreeVersion = seq
	}
	return true
}

// DefineSlot stores a slot value if seq is newer than that slot's version.
func (t *RenderTree) DefineSlot(id int, value SlotValue, seq uint64) bool {
	if last, ok := t.SlotVersions[id]; ok && seq != 0 && seq <= last {
		return false
	}
	t.Slots[id] = value
	if seq != 0 {
		t.SlotVersions[id] = seq
	}
	return true
}

// DefineSchema stores a schema's columns if seq is newer than that schema's
// version.
func (t *RenderTree) DefineSchema(id int, columns []SchemaColumn, seq uint64) bool {
	if last, ok := t.SchemaVersions[id]; ok && seq != 0 && seq <= last {
		return false
	}
	t.Schemas[id] = columns
	if seq != 0 {
		t.SchemaVersions[id] = seq
	}
	return true
}

// AppendData appends a data row under a schema id if seq is newer than that
// schema's data version. Rows are append-only; there is no row-level
// update, only append.
func (t *RenderTree) AppendData(schemaID int, row []interface{}, seq uint64) bool {
	if last, ok := t.DataVersions[schemaID]; ok && seq != 0 && seq <= last {
		return false
	}
	t.DataRows[schemaID] = append(t.DataRows[schemaID], row)
	if seq != 0 {
		t.DataVersions[schemaID] = seq
	}
	return true
}

// ApplyPatchVersioned applies a single patch op unless seq is older than the
// target node's recorded version.
func (t *RenderTree) ApplyPatchVersioned(op PatchOp, seq uint64) bool {
	if last, ok := t.NodeVersions[op.Target]; ok && seq != 0 && seq < last {
		return false
	}
	if !ApplyPatch(t, op) {
		return false
	}
	if seq != 0 {
		t.NodeVersions[op.Target] = seq
	}
	return true
}

// ApplyPatchesVersioned applies a batch of patch ops under one shared seq
// and returns the counts plus a multierr aggregate describing which targets
// were rejected and why, for callers that want more than a bare count.
func (t *RenderTree) ApplyPatchesVersioned(ops []PatchOp, seq uint64) (applied, failed int, err error) {
	var errs []error
	for _, op := range ops {
		if t.ApplyPatchVersioned(op, seq) {
			applied++
			continue
		}
		failed++
		if last, ok := t.NodeVersions[op.Target]; ok && seq != 0 && seq < last {
			errs = append(errs, fmt.Errorf("%w: target %d at seq %d", ErrStaleVersion, op.Target, seq))
		} else if _, ok := t.NodeIndex[op.Target]; !ok {
			errs = append(errs, fmt.Errorf("%w: target %d", ErrPatchTargetMissing, op.Target))
		} else {
			errs = append(errs, fmt.Errorf("%w: target %d", ErrIDCollision, op.Target))
		}
	}
	return applied, failed, multierr.Combine(errs...)
}

// ApplyPatch applies a single patch operation to the render tree, in the
// fixed field-evaluation order: remove, replace, set, children
// insert, children remove, children move, transition. Returns true if the
// patch was applied.
func ApplyPatch(tree *RenderTree, op PatchOp) bool {
	if op.Remove {
		return removeNode(tree, op.Target)
	}

	if op.Replace != nil {
		if !replaceNode(tree, op.Target, op.Replace) {
			return false
		}
	}

	node, ok := tree.NodeIndex[op.Target]
	if !ok {
		// A replace whose new subtree carries a different root id leaves no
		// node under the old target for the remaining fields to address;
		// the op still succeeded.
		return op.Replace != nil
	}

	if op.Set != nil {
		applyPropsSet(node, op.Set)
	}

	if op.ChildrenInsert != nil {
		if !insertChild(tree, node, op.ChildrenInsert) {
			return false
		}
	}

	if op.ChildrenRemove != nil {
		removeChildAt(tree, node, op.ChildrenRemove.Index)
	}

	if op.ChildrenMove != nil {
		moveChild(node, op.ChildrenMove.From, op.ChildrenMove.To)
	}

	if op.Transition != nil {
		node.Props.Transition = op.Transition
	}

	return true
}

// ApplyPatches applies a batch of patch operations and returns the count of
// successfully applied and failed patches.
func ApplyPatches(tree *RenderTree, ops []PatchOp) (applied, failed int) {
	for _, op := range ops {
		if ApplyPatch(tree, op) {
			applied++
		} else {
			failed++
		}
	}
	return applied, failed
}

// insertChild inserts a new subtree as a child of node at the given index,
// rejecting the insert outright if any id in the new subtree already
// exists elsewhere in the tree: an id collision is rejected rather than
// silently overwritten, which would otherwise let a patch create a cycle
// or alias two parents onto one node.
func insertChild(tree *RenderTree, node *RenderNode, ci *ChildrenInsert) bool {
	if ci.Node == nil {
		return false
	}
	if hasIDCollision(tree.NodeIndex, ci.Node, nil) {
		return false
	}

	child := VNodeToRenderNode(ci.Node, tree.NodeIndex)
	idx := ci.Index
	if idx < 0 {
		idx = 0
	}
	if idx > len(node.Children) {
		idx = len(node.Children)
	}
	node.Children = append(node.Children, nil)
	copy(node.Children[idx+1:], node.Children[idx:])
	node.Children[idx] = child
	return true
}

// removeChildAt removes the child at idx (a no-op, not a failure, if idx is
// out of range).
func removeChildAt(tree *RenderTree, node *RenderNode, idx int) {
	if idx < 0 || idx >= len(node.Children) {
		return
	}
	removed := node.Children[idx]
	removeSubtreeFromIndex(tree.NodeIndex, removed)
	node.Children = append(node.Children[:idx], node.Children[idx+1:]...)
}

// moveChild relocates the child at from to to within node's sibling list.
// Out-of-range indices are a no-op.
func moveChild(node *RenderNode, from, to int) {
	if from < 0 || from >= len(node.Children) || to < 0 || to >= len(node.Children) {
		return
	}
	child := node.Children[from]
	node.Children = append(node.Children[:from], node.Children[from+1:]...)
	node.Children = append(node.Children, nil)
	copy(node.Children[to+1:], node.Children[to:])
	node.Children[to] = child
}

// hasIDCollision reports whether any id in v's subtree is already present
// in index, other than ids in exclude (used by replaceNode to permit the
// replaced subtree's own ids to be reused).
func hasIDCollision(index map[int]*RenderNode, v *VNode, exclude map[int]bool) bool {
	if v == nil {
		return false
	}
	if !exclude[v.ID] {
		if _, exists := index[v.ID]; exists {
			return true
		}
	}
	for _, c := range v.Children {
		if hasIDCollision(index, c, exclude) {
			return true
		}
	}
	return false
}

// applyPropsSet merges a set of property changes into a RenderNode. The set
// map uses Go-ergonomic camelCase keys (the same vocabulary
// nodeKeyByName/payload.go translate to and from the wire's integer keys).
// A Clear sentinel value resets that prop to its zero value; any other
// key outside the enum is preserved in
// node.Props.Extra for in-process callers.
func applyPropsSet(node *RenderNode, set map[string]interface{}) {
	for k, v := range set {
		if _, clear := v.(propClear); clear {
			clearProp(node, k)
			continue
		}
		switch k {
		case "direction":
			if s, ok := v.(string); ok {
				node.Props.Direction = s
			}
		case "wrap":
			if b, ok := v.(bool); ok {
				node.Props.Wrap = &b
			}
		case "justify":
			if s, ok := v.(string); ok {
				node.Props.Justify = s
			}
		case "align":
			if s, ok := v.(string); ok {
				node.Props.Align = s
			}
		case "gap":
			if n, ok := toInt(v); ok {
				node.Props.Gap = &n
			}
		case "padding":
			node.Props.Padding = v
		case "margin":
			node.Props.Margin = v
		case "border":
			if b, ok := v.(BorderStyle); ok {
				node.Props.Border = &b
			} else if bp, ok := v.(*BorderStyle); ok {
				node.Props.Border = bp
			}
		case "borderRadius":
			if n, ok := toInt(v); ok {
				node.Props.BorderRadius = &n
			}
		case "background":
			node.Props.Background = v
		case "opacity":
			if f, ok := toFloat(v); ok {
				node.Props.Opacity = &f
			}
		case "shadow":
			if s, ok := v.(ShadowStyle); ok {
				node.Props.Shadow = &s
			} else if sp, ok := v.(*ShadowStyle); ok {
				node.Props.Shadow = sp
			}
		case "width":
			node.Props.Width = v
		case "height":
			node.Props.Height = v
		case "flex":
			if f, ok := toFloat(v); ok {
				node.Props.Flex = &f
			}
		case "minWidth":
			if n, ok := toInt(v); ok {
				node.Props.MinWidth = &n
			}
		case "minHeight":
			if n, ok := toInt(v); ok {
				node.Props.MinHeight = &n
			}
		case "maxWidth":
			if n, ok := toInt(v); ok {
				node.Props.MaxWidth = &n
			}
		case "maxHeight":
			if n, ok := toInt(v); ok {
				node.Props.MaxHeight = &n
			}
		case "content":
			if s, ok := v.(string); ok {
				node.Props.Content = &s
			}
		case "fontFamily":
			if s, ok := v.(string); ok {
				node.Props.FontFamily = s
			}
		case "size":
			if n, ok := toInt(v); ok {
				node.Props.Size = &n
			}
		case "weight":
			if s, ok := v.(string); ok {
				node.Props.Weight = s
			}
		case "color":
			node.Props.Color = v
		case "decoration":
			if s, ok := v.(string); ok {
				node.Props.Decoration = s
			}
		case "textAlign":
			if s, ok := v.(string); ok {
				node.Props.TextAlign = s
			}
		case "italic":
			if b, ok := v.(bool); ok {
				node.Props.Italic = &b
			}
		case "virtualHeight":
			if n, ok := toInt(v); ok {
				node.Props.VirtualHeight = &n
			}
		case "virtualWidth":
			if n, ok := toInt(v); ok {
				node.Props.VirtualWidth = &n
			}
		case "scrollTop":
			if n, ok := toInt(v); ok {
				node.Props.ScrollTop = &n
			}
		case "scrollLeft":
			if n, ok := toInt(v); ok {
				node.Props.ScrollLeft = &n
			}
		case "template":
			if n, ok := toInt(v); ok {
				node.Props.Template = &n
			}
		case "schema":
			if n, ok := toInt(v); ok {
				node.Props.SchemaRef = &n
			}
		case "value":
			if s, ok := v.(string); ok {
				node.Props.Value = &s
			}
		case "placeholder":
			if s, ok := v.(string); ok {
				node.Props.Placeholder = &s
			}
		case "multiline":
			if b, ok := v.(bool); ok {
				node.Props.Multiline = &b
			}
		case "disabled":
			if b, ok := v.(bool); ok {
				node.Props.Disabled = &b
			}
		case "data":
			if b, ok := v.([]byte); ok {
				node.Props.Data = b
			}
		case "format":
			if s, ok := v.(string); ok {
				node.Props.Format = s
			}
		case "altText":
			if s, ok := v.(string); ok {
				node.Props.AltText = &s
			}
		case "mode":
			if s, ok := v.(string); ok {
				node.Props.Mode = s
			}
		case "interactive":
			if s, ok := v.(string); ok {
				node.Props.Interactive = s
			}
		case "tabIndex":
			if n, ok := toInt(v); ok {
				node.Props.TabIndex = &n
			}
		case "style":
			if n, ok := toInt(v); ok {
				node.Props.Style = &n
			}
		case "transition":
			if n, ok := toInt(v); ok {
				node.Props.Transition = &n
			}
		case "textAlt":
			if s, ok := v.(string); ok {
				node.Props.TextAlt = &s
			}
		default:
			if node.Props.Extra == nil {
				node.Props.Extra = make(map[string]interface{})
			}
			node.Props.Extra[k] = v
		}
	}
}

// clearProp resets the named prop to its zero value.
func clearProp(node *RenderNode, k string) {
	switch k {
	case "direction":
		node.Props.Direction = ""
	case "wrap":
		node.Props.Wrap = nil
	case "justify":
		node.Props.Justify = ""
	case "align":
		node.Props.Align = ""
	case "gap":
		node.Props.Gap = nil
	case "padding":
		node.Props.Padding = nil
	case "margin":
		node.Props.Margin = nil
	case "border":
		node.Props.Border = nil
	case "borderRadius":
		node.Props.BorderRadius = nil
	case "background":
		node.Props.Background = nil
	case "opacity":
		node.Props.Opacity = nil
	case "shadow":
		node.Props.Shadow = nil
	case "width":
		node.Props.Width = nil
	case "height":
		node.Props.Height = nil
	case "flex":
		node.Props.Flex = nil
	case "minWidth":
		node.Props.MinWidth = nil
	case "minHeight":
		node.Props.MinHeight = nil
	case "maxWidth":
		node.Props.MaxWidth = nil
	case "maxHeight":
		node.Props.MaxHeight = nil
	case "content":
		node.Props.Content = nil
	case "fontFamily":
		node.Props.FontFamily = ""
	case "size":
		node.Props.Size = nil
	case "weight":
		node.Props.Weight = ""
	case "color":
		node.Props.Color = nil
	case "decoration":
		node.Props.Decoration = ""
	case "textAlign":
		node.Props.TextAlign = ""
	case "italic":
		node.Props.Italic = nil
	case "virtualHeight":
		node.Props.VirtualHeight = nil
	case "virtualWidth":
		node.Props.VirtualWidth = nil
	case "scrollTop":
		node.Props.ScrollTop = nil
	case "scrollLeft":
		node.Props.ScrollLeft = nil
	case "template":
		node.Props.Template = nil
	case "schema":
		node.Props.SchemaRef = nil
	case "value":
		node.Props.Value = nil
	case "placeholder":
		node.Props.Placeholder = nil
	case "multiline":
		node.Props.Multiline = nil
	case "disabled":
		node.Props.Disabled = nil
	case "data":
		node.Props.Data = nil
	case "format":
		node.Props.Format = ""
	case "altText":
		node.Props.AltText = nil
	case "mode":
		node.Props.Mode = ""
	case "interactive":
		node.Props.Interactive = ""
	case "tabIndex":
		node.Props.TabIndex = nil
	case "style":
		node.Props.Style = nil
	case "transition":
		node.Props.Transition = nil
	case "textAlt":
		node.Props.TextAlt = nil
	default:
		if node.Props.Extra != nil {
			delete(node.Props.Extra, k)
		}
	}
}

// toInt attempts to convert an interface{} to int.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

// toFloat attempts to convert an interface{} to float64.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// removeNode removes a node and its subtree from the tree.
func removeNode(tree *RenderTree, targetID int) bool {
	_, ok := tree.NodeIndex[targetID]
	if !ok {
		return false
	}

	parent := findParent(tree.Root, targetID)
	if parent != nil {
		for i, c := range parent.Children {
			if c.ID == targetID {
				removeSubtreeFromIndex(tree.NodeIndex, c)
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
				return true
			}
		}
	} else if tree.Root != nil && tree.Root.ID == targetID {
		removeSubtreeFromIndex(tree.NodeIndex, tree.Root)
		tree.Root = nil
		return true
	}

	return false
}

// replaceNode replaces a node in the tree with a new VNode subtree,
// rejecting the replacement if it reuses an id still held by another node
// in the tree. The replaced node's own former
// subtree ids are freed first, so the replacement may reuse them.
func replaceNode(tree *RenderTree, targetID int, replacement *VNode) bool {
	existing, ok := tree.NodeIndex[targetID]
	if !ok {
		return false
	}

	freed := map[int]bool{}
	collectRenderNodeIDs(existing, freed)

	if hasIDCollision(tree.NodeIndex, replacement, freed) {
		return false
	}

	removeSubtreeFromIndex(tree.NodeIndex, existing)
	newNode := VNodeToRenderNode(replacement, tree.NodeIndex)

	parent := findParent(tree.Root, targetID)
	if parent != nil {
		for i, c := range parent.Children {
			if c.ID == targetID {
				parent.Children[i] = newNode
				return true
			}
		}
	} else if tree.Root != nil && tree.Root.ID == targetID {
		tree.Root = newNode
		return true
	}

	return false
}

// collectRenderNodeIDs gathers every id in a materialized subtree into set.
func collectRenderNodeIDs(node *RenderNode, set map[int]bool) {
	if node == nil {
		return
	}
	set[node.ID] = true
	for _, c := range node.Children {
		collectRenderNodeIDs(c, set)
	}
}

// removeSubtreeFromIndex removes a node and all its descendants from
// the index.
func removeSubtreeFromIndex(index map[int]*RenderNode, node *RenderNode) {
	if node == nil {
		return
	}
	delete(index, node.ID)
	for _, child := range node.Children {
		removeSubtreeFromIndex(index, child)
	}
}

// findParent finds the parent of a node by ID.
func findParent(root *RenderNode, targetID int) *RenderNode {
	if root == nil {
		return nil
	}
	for _, child := range root.Children {
		if child.ID == targetID {
			return root
		}
		if found := findParent(child, targetID); found != nil {
			return found
		}
	}
	return nil
}

// ── Tree query functions ─────────────────────────────────────────────

// CountNodes returns the total number of nodes in the tree.
func CountNodes(node *RenderNode) int {
	if node == nil {
		return 0
	}
	count := 1
	for _, child := range node.Children {
		count += CountNodes(child)
	}
	return count
}

// TreeDepth returns the maximum depth of the tree.
func TreeDepth(node *RenderNode) int {
	if node == nil {
		return 0
	}
	if len(node.Children) == 0 {
		return 1
	}
	maxChildDepth := 0
	for _, child := range node.Children {
		d := TreeDepth(child)
		if d > maxChildDepth {
			maxChildDepth = d
		}
	}
	return 1 + maxChildDepth
}

// WalkTree visits all nodes in depth-first order, calling visitor
// with each node and its depth.
func WalkTree(node *RenderNode, visitor func(node *RenderNode, depth int), depth int) {
	if node == nil {
		return
	}
	visitor(node, depth)
	for _, child := range node.Children {
		WalkTree(child, visitor, depth+1)
	}
}

// FindByID finds a single node by its ID in the subtree rooted at node.
func FindByID(node *RenderNode, id int) *RenderNode {
	if node == nil {
		return nil
	}
	if node.ID == id {
		return node
	}
	for _, child := range node.Children {
		if found := FindByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// FindByText finds the first text node whose content matches the given string.
func FindByText(node *RenderNode, text string) *RenderNode {
	if node == nil {
		return nil
	}
	if node.Type == NodeText && node.Props.Content != nil && *node.Props.Content == text {
		return node
	}
	for _, child := range node.Children {
		if found := FindByText(child, text); found != nil {
			return found
		}
	}
	return nil
}

// FindNodes returns all nodes matching a predicate.
func FindNodes(node *RenderNode, predicate func(*RenderNode) bool) []*RenderNode {
	var results []*RenderNode
	WalkTree(node, func(n *RenderNode, _ int) {
		if predicate(n) {
			results = append(results, n)
		}
	}, 0)
	return results
}

// TreeString returns a debug string representation of the tree.
func TreeString(node *RenderNode) string {
	if node == nil {
		return "(nil)"
	}
	result := ""
	WalkTree(node, func(n *RenderNode, depth int) {
		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		result += fmt.Sprintf("%s%s#%d", indent, n.Type, n.ID)
		if n.Type == NodeText && n.Props.Content != nil {
			result += fmt.Sprintf(" %q", *n.Props.Content)
		}
		result += "\n"
	}, 0)
	return result
}
