package viewport

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestTextProjectionSimple(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, makeSimpleTree())

	text := TextProjection(tree)
	assert.Assert(t, text != "")
	assert.Assert(t, containsStr(text, "Hello"))
	assert.Assert(t, containsStr(text, "World"))
}

func TestTextProjectionEmpty(t *testing.T) {
	tree := NewRenderTree()
	assert.Equal(t, TextProjection(tree), "")
}

func TestTextProjectionRowBox(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, &VNode{
		ID:   1,
		Type: NodeBox,
		Props: NodeProps{
			Direction: "row",
		},
		Children: []*VNode{
			{ID: 2, Type: NodeText, Props: NodeProps{Content: strPtr("A")}},
			{ID: 3, Type: NodeText, Props: NodeProps{Content: strPtr("B")}},
		},
	})

	assert.Equal(t, TextProjection(tree), "A\tB")
}

func TestTextProjectionInput(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, &VNode{
		ID:   1,
		Type: NodeInput,
		Props: NodeProps{
			Value:       strPtr("typed text"),
			Placeholder: strPtr("placeholder"),
		},
	})

	assert.Equal(t, TextProjection(tree), "typed text")
}

func TestTextProjectionInputPlaceholder(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, &VNode{
		ID:   1,
		Type: NodeInput,
		Props: NodeProps{
			Placeholder: strPtr("placeholder"),
		},
	})

	assert.Equal(t, TextProjection(tree), "placeholder")
}

func TestTextProjectionSeparator(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, &VNode{ID: 1, Type: NodeSeparator})

	assert.Equal(t, TextProjection(tree), "────────────────")
}

func TestTextProjectionImage(t *testing.T) {
	tree := NewRenderTree()
	altText := "a photo"
	SetTreeRoot(tree, &VNode{ID: 1, Type: NodeImage, Props: NodeProps{AltText: &altText}})

	assert.Equal(t, TextProjection(tree), "a photo")
}

func TestTextProjectionImageNoAlt(t *testing.T) {
	tree := NewRenderTree()
	SetTreeRoot(tree, &VNode{ID: 1, Type: NodeImage})

	assert.Equal(t, TextProjection(tree), "[image]")
}

func TestTextProjectionTextAlt(t *testing.T) {
	tree := NewRenderTree()
	alt := "override"
	SetTreeRoot(tree, &VNode{
		ID:    1,
		Type:  NodeText,
		Props: NodeProps{Content: strPtr("original"), TextAlt: &alt},
	})

	assert.Equal(t, TextProjection(tree), "override")
}

func TestTextProjectionScrollWithDataRows(t *testing.T) {
	tree := NewRenderTree()
	tree.Schemas[10] = []SchemaColumn{{Name: "name"}, {Name: "size", Format: FormatHumanBytes}}
	tree.DataRows[10] = [][]interface{}{{"a.txt", float64(2048)}}
	tree.Slots[20] = RowTemplateSlot{Kind: "row_template", Schema: 10}

	SetTreeRoot(tree, &VNode{
		ID:   1,
		Type: NodeScroll,
		Props: NodeProps{
			Template: intPtrHelper(20),
		},
	})

	text := TextProjection(tree)
	assert.Assert(t, containsStr(text, "name\tsize"))
	assert.Assert(t, containsStr(text, "2.0 KB"))
}

// TestTextProjectionDataRenderingScenario pins the exact byte output of the
// scroll-with-schema table path: header row, then one TSV row per data row
// with human_bytes formatting applied to the size column.
func TestTextProjectionDataRenderingScenario(t *testing.T) {
	tree := NewRenderTree()
	tree.Schemas[7] = []SchemaColumn{
		{Name: "file", Type: ColString},
		{Name: "size", Type: ColUint64, Format: FormatHumanBytes},
	}
	tree.DataRows[7] = [][]interface{}{
		{"a.txt", uint64(1024)},
		{"b.txt", uint64(2048)},
	}
	tree.Slots[20] = RowTemplateSlot{Kind: "row_template", Schema: 7}

	SetTreeRoot(tree, &VNode{ID: 1, Type: NodeScroll, Props: NodeProps{Template: intPtrHelper(20)}})

	assert.Equal(t, TextProjection(tree), "file\tsize\na.txt\t1.0 KB\nb.txt\t2.0 KB")
}

func TestTextProjectionHumanBytesZeroDecimalsForBytes(t *testing.T) {
	tree := NewRenderTree()
	tree.Schemas[7] = []SchemaColumn{{Name: "size", Type: ColUint64, Format: FormatHumanBytes}}
	tree.DataRows[7] = [][]interface{}{{uint64(512)}, {uint64(1536)}}
	tree.Slots[20] = RowTemplateSlot{Kind: "row_template", Schema: 7}
	SetTreeRoot(tree, &VNode{ID: 1, Type: NodeScroll, Props: NodeProps{Template: intPtrHelper(20)}})

	assert.Equal(t, TextProjection(tree), "size\n512 B\n1.5 KB")
}

// TestTextProjectionRelativeTimeFixedClock pins relative_time output against
// an injected clock across all four buckets.
func TestTextProjectionRelativeTimeFixedClock(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	tree := NewRenderTree()
	tree.Schemas[7] = []SchemaColumn{{Name: "when", Type: ColTimestamp, Format: FormatRelativeTime}}
	tree.DataRows[7] = [][]interface{}{
		{float64(now.Unix() - 30)},     // just now
		{float64(now.Unix() - 300)},    // 5m ago
		{float64(now.Unix() - 7200)},   // 2h ago
		{float64(now.Unix() - 259200)}, // 3d ago
	}
	tree.Slots[20] = RowTemplateSlot{Kind: "row_template", Schema: 7}
	SetTreeRoot(tree, &VNode{ID: 1, Type: NodeScroll, Props: NodeProps{Template: intPtrHelper(20)}})

	opts := DefaultTextProjectionOptions()
	opts.Now = now
	assert.Equal(t, TextProjectionWithOptions(tree, opts), "when\njust now\n5m ago\n2h ago\n3d ago")
}

// TestTextProjectionDeterministic: repeated projections of the same tree
// under a pinned clock must be byte-identical.
func TestTextProjectionDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tree := NewRenderTree()
	tree.Schemas[7] = []SchemaColumn{
		{Name: "file", Type: ColString},
		{Name: "size", Type: ColUint64, Format: FormatHumanBytes},
		{Name: "when", Type: ColTimestamp, Format: FormatRelativeTime},
	}
	tree.DataRows[7] = [][]interface{}{{"a.txt", uint64(4096), float64(now.Unix() - 90)}}
	tree.Slots[20] = RowTemplateSlot{Kind: "row_template", Schema: 7}
	SetTreeRoot(tree, &VNode{
		ID: 1, Type: NodeBox,
		Children: []*VNode{
			{ID: 2, Type: NodeText, Props: NodeProps{Content: strPtr("files")}},
			{ID: 3, Type: NodeScroll, Props: NodeProps{Template: intPtrHelper(20)}},
		},
	})

	opts := DefaultTextProjectionOptions()
	opts.Now = now
	first := TextProjectionWithOptions(tree, opts)
	for i := 0; i < 10; i++ {
		assert.Equal(t, TextProjectionWithOptions(tree, opts), first)
	}
}

func intPtrHelper(v int) *int { return &v }

func containsStr(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(s) > 0 && findSubstr(s, substr))
}

func findSubstr(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
