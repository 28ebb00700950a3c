package viewport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Viewer is the main embeddable-viewer implementation. It maintains an
// in-memory render tree, processes protocol messages (applying the
// per-key version gate), produces text projections, and collects
// performance metrics.
//
// It is safe for concurrent use; all public methods that touch mutable
// state acquire a mutex.
type Viewer struct {
	mu  sync.Mutex
	log *zap.Logger

	renderTarget RenderTarget

	tree            *RenderTree
	env             *EnvInfo
	messageHandlers []func(ProtocolMessage)
	dirty           *DirtySet

	messagesProcessed int
	bytesReceived     int
	lastFrameTimeMs   float64
	peakFrameTimeMs   float64
	patchesApplied    int
	patchesFailed     int
	frameTimes        []float64
}

// NewViewer creates a new Viewer with the specified render target. Use
// HeadlessTarget{} for testing. Pass a non-nop *zap.Logger to trace
// message dispatch and version-gate rejections at debug level.
func NewViewer(target RenderTarget, log *zap.Logger) *Viewer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Viewer{
		renderTarget: target,
		log:          log,
		tree:         NewRenderTree(),
		dirty:        NewDirtySet(),
		frameTimes:   make([]float64, 0, 128),
	}
}

// Init initializes the viewer with environment information.
func (v *Viewer) Init(env EnvInfo) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.env = &env
	v.tree = NewRenderTree()
	v.dirty = NewDirtySet()
	v.resetMetrics()
}

// SetTree sets the root tree directly (no serialization) — the
// embeddable viewer's direct-call path, bypassing the wire entirely.
func (v *Viewer) SetTree(root *VNode) {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := time.Now()
	v.messagesProcessed++

	SetTreeRoot(v.tree, root)
	v.dirty.TreeReplaced = true

	v.trackFrameTime(start)
}

// ApplyPatches applies patches directly (no serialization, no version
// gate — direct calls are assumed trusted and ordered by the caller).
// Only targets whose op actually applied are marked dirty, same as the
// wire path in ApplyMessage.
func (v *Viewer) ApplyPatches(ops []PatchOp) {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := time.Now()
	v.messagesProcessed++

	for _, op := range ops {
		if ApplyPatch(v.tree, op) {
			v.patchesApplied++
			v.dirty.Nodes[op.Target] = true
		} else {
			v.patchesFailed++
		}
	}

	v.trackFrameTime(start)
}

// DefineSlot defines a slot directly (no serialization).
func (v *Viewer) DefineSlot(slot int, value SlotValue) {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := time.Now()
	v.messagesProcessed++

	v.tree.Slots[slot] = value
	v.dirty.Slots[slot] = true

	v.trackFrameTime(start)
}

// ApplyMessage processes a decoded protocol message, updating internal
// state through the version-gated RenderTree entry points: stale
// messages — seq not newer than the last one recorded for the targeted
// key, or for PATCH ops older than it — are dropped, not applied, and do
// not mark anything dirty. This
// is the wire-protocol path; ProcessMessage is kept as an alias for the
// name used in earlier drafts of this viewer.
func (v *Viewer) ApplyMessage(msg ProtocolMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := time.Now()
	v.messagesProcessed++

	switch msg.Type {
	case MsgDefine:
		if msg.Slot != nil && msg.SlotValue != nil {
			if v.tree.DefineSlot(*msg.Slot, msg.SlotValue, msg.Seq) {
				v.dirty.Slots[*msg.Slot] = true
			} else {
				v.log.Debug("viewer: stale DEFINE dropped", zap.Int("slot", *msg.Slot), zap.Uint64("seq", msg.Seq))
			}
		}

	case MsgTree:
		if msg.Root != nil {
			if v.tree.SetTree(msg.Root, msg.Seq) {
				v.dirty.TreeReplaced = true
			} else {
				v.log.Debug("viewer: stale TREE dropped", zap.Uint64("seq", msg.Seq))
			}
		}

	case MsgPatch:
		// Mark only successfully applied targets dirty; a rejected or
		// stale op must not appear in the dirty set it never touched.
		for _, op := range msg.Ops {
			if v.tree.ApplyPatchVersioned(op, msg.Seq) {
				v.patchesApplied++
				v.dirty.Nodes[op.Target] = true
			} else {
				v.patchesFailed++
				v.log.Debug("viewer: patch op rejected", zap.Int("target", op.Target), zap.Uint64("seq", msg.Seq))
			}
		}

	case MsgSchema:
		if msg.Slot != nil {
			if v.tree.DefineSchema(*msg.Slot, msg.Columns, msg.Seq) {
				v.dirty.Schemas[*msg.Slot] = true
			} else {
				v.log.Debug("viewer: stale SCHEMA dropped", zap.Int("slot", *msg.Slot), zap.Uint64("seq", msg.Seq))
			}
		}

	case MsgData:
		schemaSlot := 0
		if msg.Schema != nil {
			schemaSlot = *msg.Schema
		}
		if msg.Row != nil {
			if v.tree.AppendData(schemaSlot, msg.Row, msg.Seq) {
				v.dirty.Data[schemaSlot] = true
			} else {
				v.log.Debug("viewer: stale DATA dropped", zap.Int("schema", schemaSlot), zap.Uint64("seq", msg.Seq))
			}
		}

	case MsgInput:
		if msg.Event != nil {
			v.dirty.Inputs = append(v.dirty.Inputs, *msg.Event)
			inputMsg := ProtocolMessage{Type: MsgInput, Event: msg.Event}
			for _, handler := range v.messageHandlers {
				handler(inputMsg)
			}
		}

	case MsgEnv:
		if msg.Env != nil {
			v.env = msg.Env
		}

	case MsgRegion, MsgAudio, MsgCanvas:
		// Opaque pass-through: parsed by DecodePayload, not
		// interpreted here, no dirty flag raised.
	}

	v.trackFrameTime(start)
}

// ProcessMessage is an alias for ApplyMessage.
func (v *Viewer) ProcessMessage(msg ProtocolMessage) { v.ApplyMessage(msg) }

// GetTree returns the current render tree state.
func (v *Viewer) GetTree() *RenderTree {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tree
}

// GetTextProjection returns the text projection of the current tree.
func (v *Viewer) GetTextProjection() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return TextProjection(v.tree)
}

// GetLayout returns the computed layout for a node, or nil if not found.
func (v *Viewer) GetLayout(nodeID int) *ComputedLayout {
	v.mu.Lock()
	defer v.mu.Unlock()

	node, ok := v.tree.NodeIndex[nodeID]
	if !ok {
		return nil
	}
	return node.ComputedLayout
}

// ConsumeDirty returns what has changed since the last call and resets the
// dirty set, decoupling render-rate polling from message-arrival rate.
func (v *Viewer) ConsumeDirty() *DirtySet {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := v.dirty
	v.dirty = NewDirtySet()
	return out
}

// Render renders to the target output if anything is dirty. Returns
// whether anything changed.
func (v *Viewer) Render() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.dirty.Dirty() {
		return false
	}

	switch v.renderTarget.TargetType() {
	case "ansi":
		_ = v.renderToAnsi()
	case "headless":
	}

	v.dirty = NewDirtySet()
	return true
}

// GetMetrics returns current performance/state metrics.
func (v *Viewer) GetMetrics() ViewerMetrics {
	v.mu.Lock()
	defer v.mu.Unlock()

	avg := 0.0
	if len(v.frameTimes) > 0 {
		sum := 0.0
		for _, t := range v.frameTimes {
			sum += t
		}
		avg = sum / float64(len(v.frameTimes))
	}

	frameTimesCopy := make([]float64, len(v.frameTimes))
	copy(frameTimesCopy, v.frameTimes)

	dataRowCount := 0
	for _, rows := range v.tree.DataRows {
		dataRowCount += len(rows)
	}

	return ViewerMetrics{
		MessagesProcessed: v.messagesProcessed,
		BytesReceived:     v.bytesReceived,
		LastFrameTimeMs:   v.lastFrameTimeMs,
		PeakFrameTimeMs:   v.peakFrameTimeMs,
		AvgFrameTimeMs:    avg,
		MemoryUsageBytes:  v.estimateMemory(),
		TreeNodeCount:     CountNodes(v.tree.Root),
		TreeDepth:         TreeDepth(v.tree.Root),
		SlotCount:         len(v.tree.Slots),
		DataRowCount:      dataRowCount,
		PatchesApplied:    v.patchesApplied,
		PatchesFailed:     v.patchesFailed,
		FrameTimesMs:      frameTimesCopy,
	}
}

// Screenshot captures a visual representation of the current state.
func (v *Viewer) Screenshot() ScreenshotResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	text := v.renderToAnsi()
	width := 800
	height := 600
	if v.env != nil {
		width = v.env.DisplayWidth
		height = v.env.DisplayHeight
	}

	return ScreenshotResult{
		Format: "ansi",
		Data:   text,
		Width:  width,
		Height: height,
	}
}

// SendInput injects an input event (for automation/testing).
func (v *Viewer) SendInput(event InputEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	msg := ProtocolMessage{Type: MsgInput, Event: &event}
	for _, handler := range v.messageHandlers {
		handler(msg)
	}
}

// OnMessage registers a callback for outbound messages (e.g. input events
// forwarded to a source over a Transport).
func (v *Viewer) OnMessage(handler func(ProtocolMessage)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messageHandlers = append(v.messageHandlers, handler)
}

// TrackBytes records received byte count for metrics (called by the
// transport harness as frames arrive).
func (v *Viewer) TrackBytes(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bytesReceived += n
}

// Destroy tears down the viewer and releases resources.
func (v *Viewer) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.messageHandlers = nil
	v.tree = NewRenderTree()
	v.dirty = NewDirtySet()
	v.resetMetrics()
}

// RenderTargetValue returns the viewer's render target.
func (v *Viewer) RenderTargetValue() RenderTarget {
	return v.renderTarget
}

// ── Internal helpers ─────────────────────────────────────────────────

// trackFrameTime records the elapsed time for a frame processing
// operation. Must be called with the mutex held.
func (v *Viewer) trackFrameTime(start time.Time) {
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0 // ms
	v.frameTimes = append(v.frameTimes, elapsed)
	if len(v.frameTimes) > 1000 {
		v.frameTimes = v.frameTimes[len(v.frameTimes)-500:]
	}
	v.lastFrameTimeMs = elapsed
	if elapsed > v.peakFrameTimeMs {
		v.peakFrameTimeMs = elapsed
	}
}

// estimateMemory returns a rough estimate of memory usage in bytes. Must
// be called with the mutex held.
func (v *Viewer) estimateMemory() int {
	bytes := 0
	bytes += CountNodes(v.tree.Root) * 200
	bytes += len(v.tree.Slots) * 100
	for _, rows := range v.tree.DataRows {
		bytes += len(rows) * 50
	}
	bytes += len(v.tree.NodeIndex) * 32
	return bytes
}

// renderToAnsi produces a simple ANSI text representation of the tree.
// Must be called with the mutex held.
func (v *Viewer) renderToAnsi() string {
	if v.tree.Root == nil {
		return "(empty tree)"
	}

	var lines []string
	WalkTree(v.tree.Root, func(node *RenderNode, depth int) {
		indent := strings.Repeat("  ", depth)
		idStr := fmt.Sprintf("#%d", node.ID)

		switch node.Type {
		case NodeText:
			content := ""
			if node.Props.Content != nil {
				content = *node.Props.Content
			}
			lines = append(lines, fmt.Sprintf("%s%s", indent, content))
		case NodeBox:
			dir := node.Props.Direction
			if dir == "" {
				dir = "col"
			}
			lines = append(lines, fmt.Sprintf("%s[box%s %s]", indent, idStr, dir))
		case NodeScroll:
			lines = append(lines, fmt.Sprintf("%s[scroll%s]", indent, idStr))
		case NodeInput:
			val := ""
			if node.Props.Value != nil {
				val = *node.Props.Value
			} else if node.Props.Placeholder != nil {
				val = *node.Props.Placeholder
			}
			lines = append(lines, fmt.Sprintf("%s[input%s: %s]", indent, idStr, val))
		case NodeSeparator:
			lines = append(lines, fmt.Sprintf("%s────────────────", indent))
		case NodeCanvas:
			alt := ""
			if node.Props.AltText != nil {
				alt = *node.Props.AltText
			}
			lines = append(lines, fmt.Sprintf("%s[canvas%s: %s]", indent, idStr, alt))
		case NodeImage:
			alt := ""
			if node.Props.AltText != nil {
				alt = *node.Props.AltText
			}
			lines = append(lines, fmt.Sprintf("%s[image%s: %s]", indent, idStr, alt))
		}
	}, 0)

	return strings.Join(lines, "\n")
}

// resetMetrics clears all metrics to initial values. Must be called with
// the mutex held.
func (v *Viewer) resetMetrics() {
	v.messagesProcessed = 0
	v.bytesReceived = 0
	v.lastFrameTimeMs = 0
	v.peakFrameTimeMs = 0
	v.patchesApplied = 0
	v.patchesFailed = 0
	v.frameTimes = make([]float64, 0, 128)
}
