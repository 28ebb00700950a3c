package viewport

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// TestPayloadRoundTripTree: decode(encode(m)) == m, modulo
// dropped unknown keys, for a TREE message carrying a small subtree.
func TestPayloadRoundTripTree(t *testing.T) {
	msg := &ProtocolMessage{Type: MsgTree, Root: makeSimpleTree()}

	raw, err := EncodePayload(msg)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	decoded, err := DecodePayload(MsgTree, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}

	if decoded.Root == nil || decoded.Root.ID != 1 {
		t.Fatalf("decoded root = %+v, want id 1", decoded.Root)
	}
	if len(decoded.Root.Children) != 2 {
		t.Fatalf("decoded children = %d, want 2", len(decoded.Root.Children))
	}
	if decoded.Root.Children[0].Props.Content == nil || *decoded.Root.Children[0].Props.Content != "Hello" {
		t.Errorf("first child content = %v, want Hello", decoded.Root.Children[0].Props.Content)
	}
}

func TestPayloadRoundTripPatch(t *testing.T) {
	msg := &ProtocolMessage{
		Type: MsgPatch,
		Ops: []PatchOp{
			{Target: 2, Set: map[string]interface{}{"content": "hi"}},
			{Target: 1, ChildrenInsert: &ChildrenInsert{Index: 0, Node: &VNode{ID: 9, Type: NodeText}}},
			{Target: 3, Remove: true},
		},
	}

	raw, err := EncodePayload(msg)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	decoded, err := DecodePayload(MsgPatch, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if len(decoded.Ops) != 3 {
		t.Fatalf("decoded ops = %d, want 3", len(decoded.Ops))
	}
	if decoded.Ops[0].Set["content"] != "hi" {
		t.Errorf("op0 content = %v, want hi", decoded.Ops[0].Set["content"])
	}
	if decoded.Ops[1].ChildrenInsert == nil || decoded.Ops[1].ChildrenInsert.Node.ID != 9 {
		t.Errorf("op1 children_insert = %+v", decoded.Ops[1].ChildrenInsert)
	}
	if !decoded.Ops[2].Remove {
		t.Error("op2 remove flag lost in round trip")
	}
}

func TestPayloadRoundTripSchemaAndData(t *testing.T) {
	schemaMsg := &ProtocolMessage{
		Type: MsgSchema, Slot: intPtrHelper(7),
		Columns: []SchemaColumn{
			{ID: 1, Name: "file", Type: ColString},
			{ID: 2, Name: "size", Type: ColUint64, Format: FormatHumanBytes},
		},
	}
	raw, err := EncodePayload(schemaMsg)
	if err != nil {
		t.Fatalf("EncodePayload(SCHEMA): %v", err)
	}
	decoded, err := DecodePayload(MsgSchema, raw)
	if err != nil {
		t.Fatalf("DecodePayload(SCHEMA): %v", err)
	}
	if len(decoded.Columns) != 2 || decoded.Columns[1].Format != FormatHumanBytes {
		t.Fatalf("decoded columns = %+v", decoded.Columns)
	}

	dataMsg := &ProtocolMessage{Type: MsgData, Schema: intPtrHelper(7), Row: []interface{}{"a.txt", uint64(1024)}}
	raw, err = EncodePayload(dataMsg)
	if err != nil {
		t.Fatalf("EncodePayload(DATA): %v", err)
	}
	decodedData, err := DecodePayload(MsgData, raw)
	if err != nil {
		t.Fatalf("DecodePayload(DATA): %v", err)
	}
	if decodedData.Schema == nil || *decodedData.Schema != 7 {
		t.Errorf("decoded schema id = %v, want 7", decodedData.Schema)
	}
	if len(decodedData.Row) != 2 {
		t.Fatalf("decoded row = %+v", decodedData.Row)
	}
}

func TestPayloadRoundTripDefineSlot(t *testing.T) {
	msg := &ProtocolMessage{Type: MsgDefine, Slot: intPtrHelper(5), SlotValue: ColorSlot{Kind: "color", Role: "primary", Value: "#fff"}}

	raw, err := EncodePayload(msg)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	decoded, err := DecodePayload(MsgDefine, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	cs, ok := decoded.SlotValue.(ColorSlot)
	if !ok {
		t.Fatalf("decoded slot value type = %T, want ColorSlot", decoded.SlotValue)
	}
	if cs.Value != "#fff" || cs.Role != "primary" {
		t.Errorf("decoded color slot = %+v", cs)
	}
}

func TestPayloadRoundTripInputEvent(t *testing.T) {
	msg := &ProtocolMessage{Type: MsgInput, Event: &InputEvent{Kind: InputClick, Target: intPtrHelper(2), X: intPtrHelper(10), Y: intPtrHelper(20)}}

	raw, err := EncodePayload(msg)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	decoded, err := DecodePayload(MsgInput, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Event.Kind != InputClick {
		t.Errorf("kind = %v, want click", decoded.Event.Kind)
	}
	if decoded.Event.Target == nil || *decoded.Event.Target != 2 {
		t.Errorf("target = %v, want 2", decoded.Event.Target)
	}
}

func TestPayloadRoundTripEnv(t *testing.T) {
	msg := &ProtocolMessage{Type: MsgEnv, Env: &EnvInfo{DisplayWidth: 80, DisplayHeight: 24, Remote: true}}

	raw, err := EncodePayload(msg)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	decoded, err := DecodePayload(MsgEnv, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Env.DisplayWidth != 80 || !decoded.Env.Remote {
		t.Errorf("decoded env = %+v", decoded.Env)
	}
}

// TestPayloadReservedDelOpcode: opcode 1 sits inside the defined {0..7}
// range, so it must decode cleanly (to a DEFINE with no slot value) rather
// than raise an unknown-opcode error.
func TestPayloadReservedDelOpcode(t *testing.T) {
	raw, err := cbor.Marshal([]interface{}{1, 5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodePayload(MsgDefine, raw)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Slot == nil || *decoded.Slot != 5 {
		t.Errorf("slot = %v, want 5", decoded.Slot)
	}
	if decoded.SlotValue != nil {
		t.Errorf("slot value = %v, want nil for the reserved DEL opcode", decoded.SlotValue)
	}
}

func TestPayloadUnknownOpcode(t *testing.T) {
	raw, err := cbor.Marshal([]interface{}{99})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := DecodePayload(MsgDefine, raw); err == nil {
		t.Fatal("expected an error for an unknown opcode")
	}
}

func TestPayloadMalformedCBOR(t *testing.T) {
	if _, err := DecodePayload(MsgTree, []byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatal("expected ErrMalformed for garbage bytes")
	}
}

func TestPayloadOpaquePassThrough(t *testing.T) {
	raw := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	msg := &ProtocolMessage{Type: MsgRegion, Raw: raw}

	encoded, err := EncodePayload(msg)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	decoded, err := DecodePayload(MsgRegion, encoded)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if string(decoded.Raw) != string(raw) {
		t.Errorf("raw = %v, want %v", decoded.Raw, raw)
	}
}
