package viewport

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SourceState manages pending and published state for the app (source)
// side: app mutations accumulate into a pending buffer, coalesced
// per target, until Flush bundles them into protocol messages in a fixed
// order and advances the shared sequence counter.
type SourceState struct {
	mu  sync.Mutex
	log *zap.Logger

	// Session identifies this source's connection for the frame header; it
	// is minted once per SourceState and does not change across flushes.
	Session uint64

	// Seq is the sequence number of the last message flushed. Each
	// message within a single Flush call gets its own, strictly
	// increasing Seq.
	Seq uint64

	// published mirrors what the viewer side is believed to hold: the
	// materialized tree, slots, schemas, and data rows as of the last
	// Flush. It reuses RenderTree/its versioned entry
	// points rather than a second bespoke set of tables, since a flushed
	// message and an applied one update identical shapes of state.
	published *RenderTree

	pendingTree    *VNode
	hasPendingTree bool

	// pendingPatches coalesces patch ops per target: Set maps merge
	// last-write-wins into the latest queued op, child-list ops concatenate
	// as their own ops so their relative order survives the flush, and a
	// Remove or Replace supersedes everything queued before it for that
	// target. patchOrder preserves first-touched order so Flush emits
	// patches deterministically.
	pendingPatches map[int][]PatchOp
	patchOrder     []int

	pendingSlots map[int]SlotValue
	slotOrder    []int

	pendingSchemas map[int][]SchemaColumn
	schemaOrder    []int

	pendingData []pendingRow
}

type pendingRow struct {
	schema int
	row    []interface{}
}

// NewSourceState creates a new SourceState with a freshly minted session
// id. Pass a non-nop *zap.Logger to trace flush/coalesce decisions at
// debug level.
func NewSourceState(log *zap.Logger) *SourceState {
	if log == nil {
		log = zap.NewNop()
	}
	return &SourceState{
		log:            log,
		Session:        sessionIDFromUUID(uuid.New()),
		published:      NewRenderTree(),
		pendingPatches: make(map[int][]PatchOp),
		pendingSlots:   make(map[int]SlotValue),
		pendingSchemas: make(map[int][]SchemaColumn),
	}
}

// Published returns the source's mirror of what the viewer is believed to
// hold as of the last Flush: the tree, slots, schemas, and data rows that
// have actually been emitted. It is the same RenderTree shape the
// viewer side applies messages into, kept here so a source can answer
// "what does the other end currently see" without a round trip.
func (s *SourceState) Published() *RenderTree {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

// sessionIDFromUUID folds a UUID down to the uint64 the frame header
// carries, by XORing its two halves — collisions are immaterial here since
// the session id only needs to disambiguate concurrent connections for
// diagnostics, not provide cryptographic uniqueness.
func sessionIDFromUUID(id uuid.UUID) uint64 {
	b := id[:]
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(b[i])
		lo = lo<<8 | uint64(b[i+8])
	}
	return hi ^ lo
}

// SetTree queues a full tree replacement, discarding any pending patches:
// a patch against a tree that's about to be replaced wholesale is moot.
func (s *SourceState) SetTree(root *VNode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingTree = root
	s.hasPendingTree = true
	s.pendingPatches = make(map[int][]PatchOp)
	s.patchOrder = nil
	s.log.Debug("source: tree queued, pending patches discarded")
}

// Patch queues patch operations, coalescing each by target.
func (s *SourceState) Patch(ops []PatchOp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		s.coalescePatch(op)
	}
}

func (s *SourceState) coalescePatch(op PatchOp) {
	queue, seen := s.pendingPatches[op.Target]
	if !seen {
		s.patchOrder = append(s.patchOrder, op.Target)
	}

	// A remove or replace supersedes and discards everything queued for
	// this target.
	if op.Remove || op.Replace != nil {
		s.pendingPatches[op.Target] = []PatchOp{op}
		s.log.Debug("source: patch queue superseded", zap.Int("target", op.Target))
		return
	}

	// Set-only ops (optionally with a transition hint) merge last-write-wins
	// into the latest queued op, as long as that op isn't a remove/replace;
	// after one of those the set stays its own op, applied to whatever the
	// remove/replace left under this target.
	hasChildOps := op.ChildrenInsert != nil || op.ChildrenRemove != nil || op.ChildrenMove != nil
	if !hasChildOps && len(queue) > 0 {
		last := &queue[len(queue)-1]
		if !last.Remove && last.Replace == nil {
			if len(op.Set) > 0 {
				if last.Set == nil {
					last.Set = make(map[string]interface{}, len(op.Set))
				}
				for k, v := range op.Set {
					last.Set[k] = v
				}
			}
			if op.Transition != nil {
				last.Transition = op.Transition
			}
			s.pendingPatches[op.Target] = queue
			s.log.Debug("source: patch coalesced", zap.Int("target", op.Target))
			return
		}
	}

	// Child-list ops concatenate: each keeps its own queued op so the
	// relative order of inserts, removes, and moves survives the flush.
	s.pendingPatches[op.Target] = append(queue, op)
}

// DefineSlot queues a slot definition (last-write-wins per id).
func (s *SourceState) DefineSlot(slot int, value SlotValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pendingSlots[slot]; !ok {
		s.slotOrder = append(s.slotOrder, slot)
	}
	s.pendingSlots[slot] = value
}

// DefineSchema queues a schema definition (last-write-wins per id).
func (s *SourceState) DefineSchema(id int, columns []SchemaColumn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pendingSchemas[id]; !ok {
		s.schemaOrder = append(s.schemaOrder, id)
	}
	s.pendingSchemas[id] = columns
}

// EmitData queues a data row under a schema id. Rows are append-only and
// never coalesced: every call queues a distinct row.
func (s *SourceState) EmitData(schema int, row []interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingData = append(s.pendingData, pendingRow{schema: schema, row: row})
}

// HasPending reports whether there is anything queued for the next Flush.
func (s *SourceState) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPendingTree || len(s.pendingPatches) > 0 || len(s.pendingSlots) > 0 ||
		len(s.pendingSchemas) > 0 || len(s.pendingData) > 0
}

// Flush bundles pending state into protocol messages in the fixed order
// SCHEMA, DEFINE, TREE-or-PATCH, DATA — schemas and slot definitions
// must reach the viewer before anything that references them — clears the
// pending buffer, and returns the messages ready for EncodeFrame. Each
// message receives its own strictly increasing Seq.
func (s *SourceState) Flush() []*ProtocolMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ProtocolMessage
	next := func() uint64 {
		s.Seq++
		return s.Seq
	}

	for _, id := range s.schemaOrder {
		cols := s.pendingSchemas[id]
		slot := id
		seq := next()
		out = append(out, &ProtocolMessage{Type: MsgSchema, Slot: &slot, Columns: cols, Seq: seq})
		s.published.DefineSchema(id, cols, seq)
	}

	for _, id := range s.slotOrder {
		value := s.pendingSlots[id]
		slot := id
		seq := next()
		out = append(out, &ProtocolMessage{Type: MsgDefine, Slot: &slot, SlotValue: value, Seq: seq})
		s.published.DefineSlot(id, value, seq)
	}

	if s.hasPendingTree {
		seq := next()
		out = append(out, &ProtocolMessage{Type: MsgTree, Root: s.pendingTree, Seq: seq})
		s.published.SetTree(s.pendingTree, seq)
	} else if len(s.patchOrder) > 0 {
		ops := make([]PatchOp, 0, len(s.patchOrder))
		for _, target := range s.patchOrder {
			ops = append(ops, s.pendingPatches[target]...)
		}
		seq := next()
		out = append(out, &ProtocolMessage{Type: MsgPatch, Ops: ops, Seq: seq})
		for _, op := range ops {
			s.published.ApplyPatchVersioned(op, seq)
		}
	}

	for _, pr := range s.pendingData {
		schema := pr.schema
		seq := next()
		out = append(out, &ProtocolMessage{Type: MsgData, Schema: &schema, Row: pr.row, Seq: seq})
		s.published.AppendData(schema, pr.row, seq)
	}

	s.log.Debug("source: flush", zap.Int("messages", len(out)))

	s.pendingTree = nil
	s.hasPendingTree = false
	s.pendingPatches = make(map[int][]PatchOp)
	s.patchOrder = nil
	s.pendingSlots = make(map[int]SlotValue)
	s.slotOrder = nil
	s.pendingSchemas = make(map[int][]SchemaColumn)
	s.schemaOrder = nil
	s.pendingData = nil

	return out
}
