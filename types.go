// Package viewport implements the Viewport Protocol: a binary
// application-display protocol that transports a retained-mode UI scene
// graph from a producing process (the source) to a consuming process (the
// viewer).
//
// The package covers the wire frame codec, the CBOR payload codec, the
// render tree store and patch engine, text projection, and the source- and
// viewer-side local state machines. Transport implementations, concrete
// renderers, and application code are out of scope; see Transport for the
// one contract this package expects an external collaborator to satisfy.
package viewport

import "fmt"

// ── Node types ───────────────────────────────────────────────────────

// NodeType identifies the kind of a UI node.
type NodeType string

const (
	NodeBox       NodeType = "box"
	NodeText      NodeType = "text"
	NodeScroll    NodeType = "scroll"
	NodeInput     NodeType = "input"
	NodeImage     NodeType = "image"
	NodeCanvas    NodeType = "canvas"
	NodeSeparator NodeType = "separator"
)

// ── Message types (wire protocol) ────────────────────────────────────

// MessageType identifies the kind of a protocol message (the frame
// header's type byte).
type MessageType uint8

const (
	MsgDefine MessageType = 0x01
	MsgTree   MessageType = 0x02
	MsgPatch  MessageType = 0x03
	MsgData   MessageType = 0x04
	MsgInput  MessageType = 0x05
	MsgEnv    MessageType = 0x06
	MsgRegion MessageType = 0x07
	MsgAudio  MessageType = 0x08
	MsgCanvas MessageType = 0x09
	MsgSchema MessageType = 0x0a
)

// knownMessageTypes holds the enumerated set for UnknownMessageType checks.
var knownMessageTypes = map[MessageType]bool{
	MsgDefine: true, MsgTree: true, MsgPatch: true, MsgData: true,
	MsgInput: true, MsgEnv: true, MsgRegion: true, MsgAudio: true,
	MsgCanvas: true, MsgSchema: true,
}

// opaqueMessageTypes are parsed but not interpreted by the core.
var opaqueMessageTypes = map[MessageType]bool{
	MsgRegion: true, MsgAudio: true, MsgCanvas: true,
}

// ── CBOR integer property key enums ───────────────────────────
//
// These are the protocol version 1 contract: any implementation MUST use
// this exact assignment. CBOR encodes integers 0-23 in a single byte, so
// the hottest keys (id, type, children, content, direction) sit at the
// front; the remainder continue sequential assignment to cover the full
// node property vocabulary.

// NodeKey enumerates integer keys for node/props fields.
type NodeKey int

const (
	NKID NodeKey = iota // 0
	NKType
	NKChildren
	NKContent
	NKDirection
	NKWrap
	NKJustify
	NKAlign
	NKGap
	NKPadding
	NKMargin
	NKBorder
	NKBorderRadius
	NKBackground
	NKOpacity
	NKShadow
	NKWidth
	NKHeight
	NKFlex
	NKMinWidth
	NKMinHeight
	NKMaxWidth
	NKMaxHeight
	NKFontFamily
	NKSize
	NKWeight
	NKColor
	NKDecoration
	NKTextAlign
	NKItalic
	NKVirtualHeight
	NKVirtualWidth
	NKScrollTop
	NKScrollLeft
	NKTemplate
	NKSchema
	NKValue
	NKPlaceholder
	NKMultiline
	NKDisabled
	NKData
	NKFormat
	NKAltText
	NKMode
	NKInteractive
	NKTabIndex
	NKStyle
	NKTransition
	NKTextAlt
)

// PatchKey enumerates integer keys for PATCH op fields.
type PatchKey int

const (
	PKTarget PatchKey = iota // 0
	PKSet
	PKRemove
	PKReplace
	PKChildrenInsert
	PKChildrenRemove
	PKChildrenMove
	PKIndex
	PKNode
	PKFrom
	PKTo
	PKTransition
)

// InputKey enumerates integer keys for input event fields.
type InputKey int

const (
	IKTarget InputKey = iota // 0
	IKKind
	IKKey
	IKValue
	IKX
	IKY
	IKButton
	IKAction
	IKScrollTop
	IKScrollLeft
)

// SchemaKey enumerates integer keys for schema column fields.
type SchemaKey int

const (
	SCKID SchemaKey = iota // 0
	SCKName
	SCKType
	SCKUnit
	SCKFormat
)

// SlotKey enumerates the one fixed integer key of a slot value: kind. Other
// slot fields keep string keys because the slot value is open-ended.
type SlotKey int

const (
	SKKind SlotKey = iota // 0
)

// ── Node properties ──────────────────────────────────────────────────

// BorderStyle describes border appearance.
type BorderStyle struct {
	Width int    `cbor:"0,keyasint,omitempty"`
	Color string `cbor:"1,keyasint,omitempty"`
	Style string `cbor:"2,keyasint,omitempty"` // solid, dashed, dotted, none
}

// ShadowStyle describes a drop shadow.
type ShadowStyle struct {
	X     int    `cbor:"0,keyasint"`
	Y     int    `cbor:"1,keyasint"`
	Blur  int    `cbor:"2,keyasint"`
	Color string `cbor:"3,keyasint"`
}

// NodeProps holds all possible node properties. Which fields are relevant
// depends on the node type.
type NodeProps struct {
	// Layout
	Direction string `cbor:"4,keyasint,omitempty"`
	Wrap      *bool  `cbor:"5,keyasint,omitempty"`
	Justify   string `cbor:"6,keyasint,omitempty"`
	Align     string `cbor:"7,keyasint,omitempty"`
	Gap       *int   `cbor:"8,keyasint,omitempty"`

	// Spacing: uniform number, 2-tuple, or 4-tuple — left as interface{}
	// since its shape is caller-determined.
	Padding interface{} `cbor:"9,keyasint,omitempty"`
	Margin  interface{} `cbor:"10,keyasint,omitempty"`

	// Visual
	Border       *BorderStyle `cbor:"11,keyasint,omitempty"`
	BorderRadius *int         `cbor:"12,keyasint,omitempty"`
	Background   interface{}  `cbor:"13,keyasint,omitempty"` // string or slot ref
	Opacity      *float64     `cbor:"14,keyasint,omitempty"`
	Shadow       *ShadowStyle `cbor:"15,keyasint,omitempty"`

	// Sizing
	Width     interface{} `cbor:"16,keyasint,omitempty"` // number or percent-string
	Height    interface{} `cbor:"17,keyasint,omitempty"`
	Flex      *float64    `cbor:"18,keyasint,omitempty"`
	MinWidth  *int        `cbor:"19,keyasint,omitempty"`
	MinHeight *int        `cbor:"20,keyasint,omitempty"`
	MaxWidth  *int        `cbor:"21,keyasint,omitempty"`
	MaxHeight *int        `cbor:"22,keyasint,omitempty"`

	// Text
	Content    *string     `cbor:"3,keyasint,omitempty"`
	FontFamily string      `cbor:"23,keyasint,omitempty"`
	Size       *int        `cbor:"24,keyasint,omitempty"`
	Weight     string      `cbor:"25,keyasint,omitempty"`
	Color      interface{} `cbor:"26,keyasint,omitempty"` // string or slot ref
	Decoration string      `cbor:"27,keyasint,omitempty"`
	TextAlign  string      `cbor:"28,keyasint,omitempty"`
	Italic     *bool       `cbor:"29,keyasint,omitempty"`

	// Scroll
	VirtualHeight *int `cbor:"30,keyasint,omitempty"`
	VirtualWidth  *int `cbor:"31,keyasint,omitempty"`
	ScrollTop     *int `cbor:"32,keyasint,omitempty"`
	ScrollLeft    *int `cbor:"33,keyasint,omitempty"`
	Template      *int `cbor:"34,keyasint,omitempty"` // row_template slot ref
	SchemaRef     *int `cbor:"35,keyasint,omitempty"` // schema slot ref

	// Input
	Value       *string `cbor:"36,keyasint,omitempty"`
	Placeholder *string `cbor:"37,keyasint,omitempty"`
	Multiline   *bool   `cbor:"38,keyasint,omitempty"`
	Disabled    *bool   `cbor:"39,keyasint,omitempty"`

	// Image/canvas
	Data    []byte  `cbor:"40,keyasint,omitempty"`
	Format  string  `cbor:"41,keyasint,omitempty"` // png, jpeg, svg
	AltText *string `cbor:"42,keyasint,omitempty"`
	Mode    string  `cbor:"43,keyasint,omitempty"` // vector2d, webgpu, remote_stream

	// Interactive
	Interactive string `cbor:"44,keyasint,omitempty"` // clickable, focusable
	TabIndex    *int   `cbor:"45,keyasint,omitempty"`

	// References
	Style      *int    `cbor:"46,keyasint,omitempty"`
	Transition *int    `cbor:"47,keyasint,omitempty"`
	TextAlt    *string `cbor:"48,keyasint,omitempty"`

	// Extra catches any additional properties not in the fixed enum; it
	// round-trips only within slot values, never on the wire for node
	// props proper (keys absent from the enum are dropped on
	// encode). Kept here so in-process embedders (seq=0, no encode step)
	// don't lose data they never intended to put on the wire.
	Extra map[string]interface{} `cbor:"-"`
}

// propClear is the reserved sentinel written into a patch op's Set map to
// request explicit clearing of a prop, which mere key absence cannot
// express. It is never observed on NodeProps itself; it only
// appears transiently in the map[string]interface{} a PatchOp.Set carries.
type propClear struct{}

// Clear is the sentinel value: set[key] = viewport.Clear clears that prop.
var Clear = propClear{}

// ── VNode: the virtual node tree apps produce ────────────────────────

// VNode is a virtual node in the app's (source-side) tree.
type VNode struct {
	ID       int       `cbor:"0,keyasint"`
	Type     NodeType  `cbor:"1,keyasint"`
	Props    NodeProps `cbor:"-"`
	Children []*VNode  `cbor:"2,keyasint,omitempty"`
	TextAlt  *string   `cbor:"48,keyasint,omitempty"`
}

// Clone deep-copies a VNode subtree.
func (v *VNode) Clone() *VNode {
	if v == nil {
		return nil
	}
	out := *v
	if v.TextAlt != nil {
		t := *v.TextAlt
		out.TextAlt = &t
	}
	if len(v.Children) > 0 {
		out.Children = make([]*VNode, len(v.Children))
		for i, c := range v.Children {
			out.Children[i] = c.Clone()
		}
	}
	return &out
}

// ── Render tree (materialized state, viewer- or source-side) ─────────

// ComputedLayout holds the computed position and dimensions for a node.
// The protocol itself defines no layout algorithm; this
// is a passthrough slot an external layout engine may populate.
type ComputedLayout struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// RenderNode is a materialized node in the render tree.
type RenderNode struct {
	ID             int
	Type           NodeType
	Props          NodeProps
	Children       []*RenderNode
	ComputedLayout *ComputedLayout
}

// RenderTree holds the complete materialized state of one display: an
// optional root, an id index, the keyed slot/schema/data tables, and
// their matching version maps plus a per-node version map.
type RenderTree struct {
	Root      *RenderNode
	NodeIndex map[int]*RenderNode

	Slots   map[int]SlotValue
	Schemas map[int][]SchemaColumn
	// DataRows maps a schema (slot) id to its append-only row sequence.
	DataRows map[int][][]interface{}

	SlotVersions   map[int]uint64
	SchemaVersions map[int]uint64
	DataVersions   map[int]uint64
	NodeVersions   map[int]uint64

	// TreeVersion gates whole-tree replacement: a TREE message is
	// compared against this global version, not a per-node one.
	TreeVersion uint64
}

// ── Schema ───────────────────────────────────────────────────────────

// ColumnType enumerates schema column value types.
type ColumnType string

const (
	ColString    ColumnType = "string"
	ColUint64    ColumnType = "uint64"
	ColInt64     ColumnType = "int64"
	ColFloat64   ColumnType = "float64"
	ColBool      ColumnType = "bool"
	ColTimestamp ColumnType = "timestamp"
)

// Column formatting hints used by text projection.
const (
	FormatHumanBytes   = "human_bytes"
	FormatRelativeTime = "relative_time"
)

// SchemaColumn describes a single column in a data schema.
type SchemaColumn struct {
	ID     int        `cbor:"0,keyasint"`
	Name   string     `cbor:"1,keyasint"`
	Type   ColumnType `cbor:"2,keyasint"`
	Unit   string     `cbor:"3,keyasint,omitempty"`
	Format string     `cbor:"4,keyasint,omitempty"`
}

// ── Slot values ──────────────────────────────────────────────────────

// SlotValue is the interface for all slot definition values: a tagged
// record with a kind discriminant.
type SlotValue interface {
	SlotKind() string
}

// StyleSlot holds style definition properties.
type StyleSlot struct {
	Kind  string                 `cbor:"0,keyasint"`
	Props map[string]interface{} `cbor:"props,omitempty"`
}

func (s StyleSlot) SlotKind() string { return "style" }

// ColorSlot defines a named color.
type ColorSlot struct {
	Kind  string `cbor:"0,keyasint"`
	Role  string `cbor:"role"`
	Value string `cbor:"value"`
}

func (s ColorSlot) SlotKind() string { return "color" }

// KeybindSlot defines a keyboard shortcut.
type KeybindSlot struct {
	Kind   string `cbor:"0,keyasint"`
	Action string `cbor:"action"`
	Key    string `cbor:"key"`
}

func (s KeybindSlot) SlotKind() string { return "keybind" }

// TransitionSlot defines an animation transition.
type TransitionSlot struct {
	Kind       string `cbor:"0,keyasint"`
	Role       string `cbor:"role"`
	DurationMs int    `cbor:"durationMs"`
	Easing     string `cbor:"easing"`
}

func (s TransitionSlot) SlotKind() string { return "transition" }

// TextSizeSlot defines a named text size.
type TextSizeSlot struct {
	Kind  string  `cbor:"0,keyasint"`
	Role  string  `cbor:"role"`
	Value float64 `cbor:"value"`
}

func (s TextSizeSlot) SlotKind() string { return "text_size" }

// SchemaSlot defines a data schema inline as a slot value, distinct from the
// SCHEMA message, which targets the schemas table directly. Text projection
// resolves a row_template's schema id against the schemas table only; a
// SchemaSlot is stored in Slots but not consulted there.
type SchemaSlot struct {
	Kind    string         `cbor:"0,keyasint"`
	Columns []SchemaColumn `cbor:"columns"`
}

func (s SchemaSlot) SlotKind() string { return "schema" }

// RowTemplateSlot defines a template for rendering data rows; Schema
// references a schemas-table id per I7.
type RowTemplateSlot struct {
	Kind   string `cbor:"0,keyasint"`
	Schema int    `cbor:"schema"`
	Layout *VNode `cbor:"layout"`
}

func (s RowTemplateSlot) SlotKind() string { return "row_template" }

// GenericSlot is a catch-all for slot kinds not explicitly modeled.
type GenericSlot struct {
	Kind  string                 `cbor:"0,keyasint"`
	Props map[string]interface{} `cbor:"props,omitempty"`
}

func (s GenericSlot) SlotKind() string { return s.Kind }

// ── Patch operations ─────────────────────────────────────────────────

// PatchOp describes an incremental tree update operation.
type PatchOp struct {
	Target         int                    `cbor:"0,keyasint"`
	Set            map[string]interface{} `cbor:"1,keyasint,omitempty"`
	Remove         bool                   `cbor:"2,keyasint,omitempty"`
	Replace        *VNode                 `cbor:"3,keyasint,omitempty"`
	ChildrenInsert *ChildrenInsert        `cbor:"4,keyasint,omitempty"`
	ChildrenRemove *ChildrenRemove        `cbor:"5,keyasint,omitempty"`
	ChildrenMove   *ChildrenMove          `cbor:"6,keyasint,omitempty"`
	Transition     *int                   `cbor:"11,keyasint,omitempty"`
}

// ChildrenInsert describes inserting a child at an index.
type ChildrenInsert struct {
	Index int    `cbor:"7,keyasint"`
	Node  *VNode `cbor:"8,keyasint"`
}

// ChildrenRemove describes removing a child at an index.
type ChildrenRemove struct {
	Index int `cbor:"7,keyasint"`
}

// ChildrenMove describes moving a child within its sibling list.
type ChildrenMove struct {
	From int `cbor:"9,keyasint"`
	To   int `cbor:"10,keyasint"`
}

// ── Input events ─────────────────────────────────────────────────────

// InputEventKind enumerates the viewer→source event kinds.
type InputEventKind string

const (
	InputClick         InputEventKind = "click"
	InputHover         InputEventKind = "hover"
	InputFocus         InputEventKind = "focus"
	InputBlur          InputEventKind = "blur"
	InputKeyEvent      InputEventKind = "key"
	InputValueChange   InputEventKind = "value_change"
	InputCanvasPointer InputEventKind = "canvas_pointer"
	InputCanvasKey     InputEventKind = "canvas_key"
	InputScroll        InputEventKind = "scroll"
)

// InputEvent describes user input directed at a node.
type InputEvent struct {
	Target     *int           `cbor:"0,keyasint,omitempty"`
	Kind       InputEventKind `cbor:"1,keyasint"`
	Key        string         `cbor:"2,keyasint,omitempty"`
	Value      string         `cbor:"3,keyasint,omitempty"`
	X          *int           `cbor:"4,keyasint,omitempty"`
	Y          *int           `cbor:"5,keyasint,omitempty"`
	Button     *int           `cbor:"6,keyasint,omitempty"`
	Action     string         `cbor:"7,keyasint,omitempty"`
	ScrollTop  *int           `cbor:"8,keyasint,omitempty"`
	ScrollLeft *int           `cbor:"9,keyasint,omitempty"`
}

// ── Environment info ─────────────────────────────────────────────────

// EnvInfo describes the display environment.
type EnvInfo struct {
	ViewportVersion int      `cbor:"viewportVersion"`
	DisplayWidth    int      `cbor:"displayWidth"`
	DisplayHeight   int      `cbor:"displayHeight"`
	PixelDensity    float64  `cbor:"pixelDensity"`
	GPU             bool     `cbor:"gpu"`
	GPUApi          string   `cbor:"gpuApi,omitempty"`
	ColorDepth      int      `cbor:"colorDepth"`
	VideoDecode     []string `cbor:"videoDecode,omitempty"`
	Remote          bool     `cbor:"remote"`
	LatencyMs       float64  `cbor:"latencyMs"`
}

// ── Protocol messages ────────────────────────────────────────────────

// ProtocolMessage is a union type for all message kinds. Type selects
// which payload field group is populated; SCHEMA also carries its schema
// id in Slot.
type ProtocolMessage struct {
	Type MessageType

	// DEFINE (opcode 0)
	Slot      *int
	SlotValue SlotValue

	// PATCH (opcode 2)
	Ops []PatchOp

	// TREE (opcode 3)
	Root *VNode

	// DATA (opcode 4)
	Schema *int
	Row    []interface{}

	// SCHEMA (opcode 5)
	Columns []SchemaColumn

	// INPUT (opcode 6)
	Event *InputEvent

	// ENV (opcode 7)
	Env *EnvInfo

	// Raw carries the undecoded CBOR body for opaque pass-through types
	// (REGION/AUDIO/CANVAS).
	Raw []byte

	// Seq is the message's sequence number, carried alongside (not inside)
	// the payload — it comes from the frame header, not the CBOR
	// body.
	Seq uint64
}

// ── Wire format ──────────────────────────────────────────────────────

// FrameHeader is the 24-byte binary frame header.
type FrameHeader struct {
	Magic   uint16
	Version uint8
	Type    MessageType
	Length  uint32
	Session uint64
	Seq     uint64
}

func (h FrameHeader) String() string {
	return fmt.Sprintf("Frame{type=%#02x len=%d session=%d seq=%d}", byte(h.Type), h.Length, h.Session, h.Seq)
}

// ── Dirty set (viewer-side) ──────────────────────────────────────────

// DirtySet records what has changed since the last ConsumeDirty call.
type DirtySet struct {
	TreeReplaced bool
	Nodes        map[int]bool
	Slots        map[int]bool
	Schemas      map[int]bool
	Data         map[int]bool
	Inputs       []InputEvent
}

// NewDirtySet returns an empty DirtySet.
func NewDirtySet() *DirtySet {
	return &DirtySet{
		Nodes:   make(map[int]bool),
		Slots:   make(map[int]bool),
		Schemas: make(map[int]bool),
		Data:    make(map[int]bool),
	}
}

// Dirty reports whether any sub-field is non-empty or TreeReplaced is set.
func (d *DirtySet) Dirty() bool {
	if d == nil {
		return false
	}
	return d.TreeReplaced || len(d.Nodes) > 0 || len(d.Slots) > 0 ||
		len(d.Schemas) > 0 || len(d.Data) > 0 || len(d.Inputs) > 0
}

// ── Viewer metrics ───────────────────────────────────────────────────

// ViewerMetrics contains performance and state counters.
type ViewerMetrics struct {
	MessagesProcessed int
	BytesReceived     int
	LastFrameTimeMs   float64
	PeakFrameTimeMs   float64
	AvgFrameTimeMs    float64
	MemoryUsageBytes  int
	TreeNodeCount     int
	TreeDepth         int
	SlotCount         int
	DataRowCount      int
	PatchesApplied    int
	PatchesFailed     int
	FrameTimesMs      []float64
}

// ── Screenshot result ────────────────────────────────────────────────

// ScreenshotResult holds the output of a screenshot capture.
type ScreenshotResult struct {
	Format string // ansi, html, png, text
	Data   string
	Width  int
	Height int
}

// ── Render targets ───────────────────────────────────────────────────

// RenderTarget describes where viewer output is sent. Concrete renderers
// live outside this package; this is the thin selector a renderer
// adapter switches on.
type RenderTarget interface {
	TargetType() string
}

// AnsiTarget sends output to an ANSI terminal file descriptor.
type AnsiTarget struct{ FD int }

func (t AnsiTarget) TargetType() string { return "ansi" }

// FramebufferTarget sends output to a raw framebuffer pointer.
type FramebufferTarget struct{ Ptr uintptr }

func (t FramebufferTarget) TargetType() string { return "framebuffer" }

// TextureTarget sends output to a GPU texture (wgpu surface).
type TextureTarget struct{}

func (t TextureTarget) TargetType() string { return "texture" }

// HeadlessTarget produces no visual output (for testing).
type HeadlessTarget struct{}

func (t HeadlessTarget) TargetType() string { return "headless" }

// HtmlTarget renders to a DOM element by ID.
type HtmlTarget struct{ Container string }

func (t HtmlTarget) TargetType() string { return "html" }
