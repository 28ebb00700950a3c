package viewport

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Errors from the payload codec.
var (
	ErrMalformed     = errors.New("viewport: malformed cbor payload")
	ErrUnknownOpcode = errors.New("viewport: unknown opcode")
)

// Opcode is the first element of a decoded CBOR payload array.
type Opcode int

const (
	OpSet    Opcode = 0 // DEFINE
	OpDel    Opcode = 1 // reserved
	OpPatch  Opcode = 2
	OpTree   Opcode = 3
	OpData   Opcode = 4
	OpSchema Opcode = 5
	OpInput  Opcode = 6
	OpEnv    Opcode = 7
)

func opcodeForType(t MessageType) (Opcode, bool) {
	switch t {
	case MsgDefine:
		return OpSet, true
	case MsgPatch:
		return OpPatch, true
	case MsgTree:
		return OpTree, true
	case MsgData:
		return OpData, true
	case MsgSchema:
		return OpSchema, true
	case MsgInput:
		return OpInput, true
	case MsgEnv:
		return OpEnv, true
	}
	return 0, false
}

func typeForOpcode(op Opcode) (MessageType, bool) {
	switch op {
	case OpSet, OpDel:
		return MsgDefine, true
	case OpPatch:
		return MsgPatch, true
	case OpTree:
		return MsgTree, true
	case OpData:
		return MsgData, true
	case OpSchema:
		return MsgSchema, true
	case OpInput:
		return MsgInput, true
	case OpEnv:
		return MsgEnv, true
	}
	return 0, false
}

// EncodePayload encodes a ProtocolMessage's CBOR body: a self-describing
// tuple whose first element is the opcode. REGION/AUDIO/CANVAS
// have no defined opcode schema and pass their Raw bytes through
// unmodified.
func EncodePayload(msg *ProtocolMessage) ([]byte, error) {
	if opaqueMessageTypes[msg.Type] {
		return msg.Raw, nil
	}

	op, ok := opcodeForType(msg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: message type %#02x", ErrUnknownOpcode, byte(msg.Type))
	}

	switch op {
	case OpSet:
		slot := 0
		if msg.Slot != nil {
			slot = *msg.Slot
		}
		return cbor.Marshal([]interface{}{op, slot, encodeSlotValue(msg.SlotValue)})

	case OpPatch:
		ops := make([]interface{}, len(msg.Ops))
		for i, p := range msg.Ops {
			ops[i] = encodePatchOp(p)
		}
		return cbor.Marshal([]interface{}{op, ops})

	case OpTree:
		return cbor.Marshal([]interface{}{op, encodeVNode(msg.Root)})

	case OpData:
		var schema interface{}
		if msg.Schema != nil {
			schema = *msg.Schema
		}
		return cbor.Marshal([]interface{}{op, schema, msg.Row})

	case OpSchema:
		slot := 0
		if msg.Slot != nil {
			slot = *msg.Slot
		}
		return cbor.Marshal([]interface{}{op, slot, msg.Columns})

	case OpInput:
		return cbor.Marshal([]interface{}{op, msg.Event})

	case OpEnv:
		return cbor.Marshal([]interface{}{op, msg.Env})
	}

	return nil, fmt.Errorf("%w: message type %#02x", ErrUnknownOpcode, byte(msg.Type))
}

// DecodePayload decodes a CBOR payload into a ProtocolMessage given the
// frame header's message type. Malformed CBOR or an opcode/type mismatch
// returns ErrMalformed; an opcode outside {0..7} returns ErrUnknownOpcode;
// a message type outside the enumerated set returns ErrUnknownType (the
// frame is still considered consumed by the caller — see FrameReader).
func DecodePayload(msgType MessageType, payload []byte) (*ProtocolMessage, error) {
	if opaqueMessageTypes[msgType] {
		return &ProtocolMessage{Type: msgType, Raw: payload}, nil
	}
	if !knownMessageTypes[msgType] {
		return nil, fmt.Errorf("%w: %#02x", ErrUnknownType, byte(msgType))
	}

	var arr []cbor.RawMessage
	if err := cbor.Unmarshal(payload, &arr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty payload array", ErrMalformed)
	}

	var opcodeVal int
	if err := cbor.Unmarshal(arr[0], &opcodeVal); err != nil {
		return nil, fmt.Errorf("%w: opcode not an integer", ErrMalformed)
	}
	op := Opcode(opcodeVal)

	wantType, ok := typeForOpcode(op)
	if !ok {
		return nil, fmt.Errorf("%w: opcode %d", ErrUnknownOpcode, op)
	}
	if wantType != msgType {
		return nil, fmt.Errorf("%w: frame type %#02x does not match opcode %d", ErrMalformed, byte(msgType), op)
	}

	msg := &ProtocolMessage{Type: msgType}

	switch op {
	case OpSet:
		if len(arr) < 3 {
			return nil, fmt.Errorf("%w: DEFINE requires 3 elements", ErrMalformed)
		}
		var slot int
		if err := cbor.Unmarshal(arr[1], &slot); err != nil {
			return nil, fmt.Errorf("%w: slot id: %v", ErrMalformed, err)
		}
		msg.Slot = &slot
		sv, err := decodeSlotValue(arr[2])
		if err != nil {
			return nil, err
		}
		msg.SlotValue = sv

	case OpDel:
		// Reserved. The slot id is parsed so diagnostics can name it,
		// but the message carries no slot value and appliers ignore it.
		if len(arr) > 1 {
			var slot int
			if err := cbor.Unmarshal(arr[1], &slot); err == nil {
				msg.Slot = &slot
			}
		}

	case OpPatch:
		if len(arr) < 2 {
			return nil, fmt.Errorf("%w: PATCH requires 2 elements", ErrMalformed)
		}
		var rawOps []cbor.RawMessage
		if err := cbor.Unmarshal(arr[1], &rawOps); err != nil {
			return nil, fmt.Errorf("%w: ops: %v", ErrMalformed, err)
		}
		ops := make([]PatchOp, len(rawOps))
		for i, r := range rawOps {
			km, err := decodeKeyedMap(r)
			if err != nil {
				return nil, fmt.Errorf("%w: op %d: %v", ErrMalformed, i, err)
			}
			op, err := decodePatchOp(km)
			if err != nil {
				return nil, err
			}
			ops[i] = op
		}
		msg.Ops = ops

	case OpTree:
		if len(arr) < 2 {
			return nil, fmt.Errorf("%w: TREE requires 2 elements", ErrMalformed)
		}
		km, err := decodeKeyedMap(arr[1])
		if err != nil {
			return nil, fmt.Errorf("%w: root: %v", ErrMalformed, err)
		}
		root, err := decodeVNode(km)
		if err != nil {
			return nil, err
		}
		msg.Root = root

	case OpData:
		if len(arr) < 2 {
			return nil, fmt.Errorf("%w: DATA requires at least 2 elements", ErrMalformed)
		}
		var schemaVal interface{}
		if err := cbor.Unmarshal(arr[1], &schemaVal); err == nil {
			if n, ok := toInt(schemaVal); ok {
				msg.Schema = &n
			}
		}
		if len(arr) > 2 {
			var row []interface{}
			if err := cbor.Unmarshal(arr[2], &row); err != nil {
				return nil, fmt.Errorf("%w: row: %v", ErrMalformed, err)
			}
			msg.Row = row
		}

	case OpSchema:
		if len(arr) < 2 {
			return nil, fmt.Errorf("%w: SCHEMA requires at least 2 elements", ErrMalformed)
		}
		var slot int
		if err := cbor.Unmarshal(arr[1], &slot); err != nil {
			return nil, fmt.Errorf("%w: slot id: %v", ErrMalformed, err)
		}
		msg.Slot = &slot
		if len(arr) > 2 {
			var cols []SchemaColumn
			if err := cbor.Unmarshal(arr[2], &cols); err != nil {
				return nil, fmt.Errorf("%w: columns: %v", ErrMalformed, err)
			}
			msg.Columns = cols
		}

	case OpInput:
		var ev InputEvent
		if len(arr) > 1 {
			if err := cbor.Unmarshal(arr[1], &ev); err != nil {
				return nil, fmt.Errorf("%w: event: %v", ErrMalformed, err)
			}
		}
		msg.Event = &ev

	case OpEnv:
		var env EnvInfo
		if len(arr) > 1 {
			if err := cbor.Unmarshal(arr[1], &env); err != nil {
				return nil, fmt.Errorf("%w: env: %v", ErrMalformed, err)
			}
		}
		msg.Env = &env
	}

	return msg, nil
}

// ── Node / prop key translation ──────────────────────────────────────
//
// PatchOp.Set is a Go-ergonomic map[string]interface{} (the same
// string-keyed vocabulary applyPropsSet switches on in tree.go).
// nodeKeyByName/nodeNameByKey translate those Go-side names to and from
// the wire's integer NodeKey enum.

var nodeKeyByName = map[string]NodeKey{
	"id": NKID, "type": NKType, "children": NKChildren, "content": NKContent,
	"direction": NKDirection, "wrap": NKWrap, "justify": NKJustify, "align": NKAlign, "gap": NKGap,
	"padding": NKPadding, "margin": NKMargin, "border": NKBorder, "borderRadius": NKBorderRadius,
	"background": NKBackground, "opacity": NKOpacity, "shadow": NKShadow,
	"width": NKWidth, "height": NKHeight, "flex": NKFlex, "minWidth": NKMinWidth, "minHeight": NKMinHeight,
	"maxWidth": NKMaxWidth, "maxHeight": NKMaxHeight,
	"fontFamily": NKFontFamily, "size": NKSize, "weight": NKWeight, "color": NKColor,
	"decoration": NKDecoration, "textAlign": NKTextAlign, "italic": NKItalic,
	"virtualHeight": NKVirtualHeight, "virtualWidth": NKVirtualWidth, "scrollTop": NKScrollTop, "scrollLeft": NKScrollLeft,
	"template": NKTemplate, "schema": NKSchema,
	"value": NKValue, "placeholder": NKPlaceholder, "multiline": NKMultiline, "disabled": NKDisabled,
	"data": NKData, "format": NKFormat, "altText": NKAltText, "mode": NKMode,
	"interactive": NKInteractive, "tabIndex": NKTabIndex,
	"style": NKStyle, "transition": NKTransition, "textAlt": NKTextAlt,
}

var nodeNameByKey = func() map[NodeKey]string {
	out := make(map[NodeKey]string, len(nodeKeyByName))
	for name, key := range nodeKeyByName {
		out[key] = name
	}
	return out
}()

// setMapToWire converts a patch op's Set map into the wire's integer-keyed
// form. Keys outside the enum are dropped on encode. A Clear
// sentinel value becomes CBOR null.
func setMapToWire(set map[string]interface{}) map[int]interface{} {
	out := make(map[int]interface{}, len(set))
	for name, v := range set {
		key, ok := nodeKeyByName[name]
		if !ok {
			continue
		}
		if _, isClear := v.(propClear); isClear {
			out[int(key)] = nil
			continue
		}
		out[int(key)] = v
	}
	return out
}

// isCBORNull reports whether raw encodes the CBOR simple value null.
func isCBORNull(raw cbor.RawMessage) bool {
	return len(raw) == 1 && raw[0] == 0xf6
}

// wireToSetMap converts a wire-decoded integer-keyed set map back into Set's
// Go-ergonomic string-keyed form. Unknown keys are ignored for forward
// compatibility. CBOR null decodes back to the Clear sentinel.
func wireToSetMap(m map[int]cbor.RawMessage) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for key, raw := range m {
		name, ok := nodeNameByKey[NodeKey(key)]
		if !ok {
			continue
		}
		if isCBORNull(raw) {
			out[name] = Clear
			continue
		}
		var v interface{}
		if err := cbor.Unmarshal(raw, &v); err != nil {
			continue
		}
		out[name] = v
	}
	return out
}

// ── VNode / NodeProps codec ───────────────────────────────────────────

// encodeVNode flattens a VNode (id/type/children/text_alt and every set
// prop) into one integer-keyed map, the compact wire shape a node takes
// on protocol version 1.
func encodeVNode(v *VNode) map[int]interface{} {
	if v == nil {
		return nil
	}
	m := map[int]interface{}{
		int(NKID):   v.ID,
		int(NKType): string(v.Type),
	}
	if len(v.Children) > 0 {
		children := make([]interface{}, len(v.Children))
		for i, c := range v.Children {
			children[i] = encodeVNode(c)
		}
		m[int(NKChildren)] = children
	}
	if v.TextAlt != nil {
		m[int(NKTextAlt)] = *v.TextAlt
	}
	for k, val := range encodeNodeProps(v.Props) {
		if _, exists := m[k]; !exists {
			m[k] = val
		}
	}
	return m
}

func encodeNodeProps(p NodeProps) map[int]interface{} {
	m := map[int]interface{}{}
	put := func(k NodeKey, v interface{}) { m[int(k)] = v }

	if p.Direction != "" {
		put(NKDirection, p.Direction)
	}
	if p.Wrap != nil {
		put(NKWrap, *p.Wrap)
	}
	if p.Justify != "" {
		put(NKJustify, p.Justify)
	}
	if p.Align != "" {
		put(NKAlign, p.Align)
	}
	if p.Gap != nil {
		put(NKGap, *p.Gap)
	}
	if p.Padding != nil {
		put(NKPadding, p.Padding)
	}
	if p.Margin != nil {
		put(NKMargin, p.Margin)
	}
	if p.Border != nil {
		put(NKBorder, p.Border)
	}
	if p.BorderRadius != nil {
		put(NKBorderRadius, *p.BorderRadius)
	}
	if p.Background != nil {
		put(NKBackground, p.Background)
	}
	if p.Opacity != nil {
		put(NKOpacity, *p.Opacity)
	}
	if p.Shadow != nil {
		put(NKShadow, p.Shadow)
	}
	if p.Width != nil {
		put(NKWidth, p.Width)
	}
	if p.Height != nil {
		put(NKHeight, p.Height)
	}
	if p.Flex != nil {
		put(NKFlex, *p.Flex)
	}
	if p.MinWidth != nil {
		put(NKMinWidth, *p.MinWidth)
	}
	if p.MinHeight != nil {
		put(NKMinHeight, *p.MinHeight)
	}
	if p.MaxWidth != nil {
		put(NKMaxWidth, *p.MaxWidth)
	}
	if p.MaxHeight != nil {
		put(NKMaxHeight, *p.MaxHeight)
	}
	if p.Content != nil {
		put(NKContent, *p.Content)
	}
	if p.FontFamily != "" {
		put(NKFontFamily, p.FontFamily)
	}
	if p.Size != nil {
		put(NKSize, *p.Size)
	}
	if p.Weight != "" {
		put(NKWeight, p.Weight)
	}
	if p.Color != nil {
		put(NKColor, p.Color)
	}
	if p.Decoration != "" {
		put(NKDecoration, p.Decoration)
	}
	if p.TextAlign != "" {
		put(NKTextAlign, p.TextAlign)
	}
	if p.Italic != nil {
		put(NKItalic, *p.Italic)
	}
	if p.VirtualHeight != nil {
		put(NKVirtualHeight, *p.VirtualHeight)
	}
	if p.VirtualWidth != nil {
		put(NKVirtualWidth, *p.VirtualWidth)
	}
	if p.ScrollTop != nil {
		put(NKScrollTop, *p.ScrollTop)
	}
	if p.ScrollLeft != nil {
		put(NKScrollLeft, *p.ScrollLeft)
	}
	if p.Template != nil {
		put(NKTemplate, *p.Template)
	}
	if p.SchemaRef != nil {
		put(NKSchema, *p.SchemaRef)
	}
	if p.Value != nil {
		put(NKValue, *p.Value)
	}
	if p.Placeholder != nil {
		put(NKPlaceholder, *p.Placeholder)
	}
	if p.Multiline != nil {
		put(NKMultiline, *p.Multiline)
	}
	if p.Disabled != nil {
		put(NKDisabled, *p.Disabled)
	}
	if len(p.Data) > 0 {
		put(NKData, p.Data)
	}
	if p.Format != "" {
		put(NKFormat, p.Format)
	}
	if p.AltText != nil {
		put(NKAltText, *p.AltText)
	}
	if p.Mode != "" {
		put(NKMode, p.Mode)
	}
	if p.Interactive != "" {
		put(NKInteractive, p.Interactive)
	}
	if p.TabIndex != nil {
		put(NKTabIndex, *p.TabIndex)
	}
	if p.Style != nil {
		put(NKStyle, *p.Style)
	}
	if p.Transition != nil {
		put(NKTransition, *p.Transition)
	}
	if p.TextAlt != nil {
		put(NKTextAlt, *p.TextAlt)
	}
	return m
}

// decodeKeyedMap decodes a CBOR map whose keys are (or coerce to) small
// unsigned integers, deferring each value's decode via cbor.RawMessage.
// Non-integer keys are dropped (only slot values use string keys).
func decodeKeyedMap(raw cbor.RawMessage) (map[int]cbor.RawMessage, error) {
	var generic map[interface{}]cbor.RawMessage
	if err := cbor.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	out := make(map[int]cbor.RawMessage, len(generic))
	for k, v := range generic {
		if ik, ok := toInt(k); ok {
			out[ik] = v
		}
	}
	return out, nil
}

func decodeVNode(m map[int]cbor.RawMessage) (*VNode, error) {
	v := &VNode{}
	if raw, ok := m[int(NKID)]; ok {
		if err := cbor.Unmarshal(raw, &v.ID); err != nil {
			return nil, fmt.Errorf("%w: node id: %v", ErrMalformed, err)
		}
	}
	if raw, ok := m[int(NKType)]; ok {
		var t string
		if err := cbor.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("%w: node type: %v", ErrMalformed, err)
		}
		v.Type = NodeType(t)
	}
	if raw, ok := m[int(NKChildren)]; ok {
		var rawChildren []cbor.RawMessage
		if err := cbor.Unmarshal(raw, &rawChildren); err != nil {
			return nil, fmt.Errorf("%w: children: %v", ErrMalformed, err)
		}
		for _, rc := range rawChildren {
			cm, err := decodeKeyedMap(rc)
			if err != nil {
				return nil, fmt.Errorf("%w: child: %v", ErrMalformed, err)
			}
			child, err := decodeVNode(cm)
			if err != nil {
				return nil, err
			}
			v.Children = append(v.Children, child)
		}
	}
	if raw, ok := m[int(NKTextAlt)]; ok {
		var s string
		if err := cbor.Unmarshal(raw, &s); err == nil {
			v.TextAlt = &s
		}
	}

	v.Props = decodeNodeProps(m)
	return v, nil
}

func decodeNodeProps(m map[int]cbor.RawMessage) NodeProps {
	var p NodeProps

	str := func(k NodeKey) (string, bool) {
		if raw, ok := m[int(k)]; ok {
			var s string
			if cbor.Unmarshal(raw, &s) == nil {
				return s, true
			}
		}
		return "", false
	}
	strPtr := func(k NodeKey) *string {
		if s, ok := str(k); ok {
			return &s
		}
		return nil
	}
	intPtr := func(k NodeKey) *int {
		if raw, ok := m[int(k)]; ok {
			var n int
			if cbor.Unmarshal(raw, &n) == nil {
				return &n
			}
		}
		return nil
	}
	boolPtr := func(k NodeKey) *bool {
		if raw, ok := m[int(k)]; ok {
			var b bool
			if cbor.Unmarshal(raw, &b) == nil {
				return &b
			}
		}
		return nil
	}
	floatPtr := func(k NodeKey) *float64 {
		if raw, ok := m[int(k)]; ok {
			var f float64
			if cbor.Unmarshal(raw, &f) == nil {
				return &f
			}
		}
		return nil
	}
	any := func(k NodeKey) interface{} {
		if raw, ok := m[int(k)]; ok {
			var v interface{}
			if cbor.Unmarshal(raw, &v) == nil {
				return v
			}
		}
		return nil
	}

	if s, ok := str(NKDirection); ok {
		p.Direction = s
	}
	p.Wrap = boolPtr(NKWrap)
	if s, ok := str(NKJustify); ok {
		p.Justify = s
	}
	if s, ok := str(NKAlign); ok {
		p.Align = s
	}
	p.Gap = intPtr(NKGap)
	p.Padding = any(NKPadding)
	p.Margin = any(NKMargin)
	if raw, ok := m[int(NKBorder)]; ok {
		var b BorderStyle
		if cbor.Unmarshal(raw, &b) == nil {
			p.Border = &b
		}
	}
	p.BorderRadius = intPtr(NKBorderRadius)
	p.Background = any(NKBackground)
	p.Opacity = floatPtr(NKOpacity)
	if raw, ok := m[int(NKShadow)]; ok {
		var s ShadowStyle
		if cbor.Unmarshal(raw, &s) == nil {
			p.Shadow = &s
		}
	}
	p.Width = any(NKWidth)
	p.Height = any(NKHeight)
	p.Flex = floatPtr(NKFlex)
	p.MinWidth = intPtr(NKMinWidth)
	p.MinHeight = intPtr(NKMinHeight)
	p.MaxWidth = intPtr(NKMaxWidth)
	p.MaxHeight = intPtr(NKMaxHeight)
	p.Content = strPtr(NKContent)
	if s, ok := str(NKFontFamily); ok {
		p.FontFamily = s
	}
	p.Size = intPtr(NKSize)
	if s, ok := str(NKWeight); ok {
		p.Weight = s
	}
	p.Color = any(NKColor)
	if s, ok := str(NKDecoration); ok {
		p.Decoration = s
	}
	if s, ok := str(NKTextAlign); ok {
		p.TextAlign = s
	}
	p.Italic = boolPtr(NKItalic)
	p.VirtualHeight = intPtr(NKVirtualHeight)
	p.VirtualWidth = intPtr(NKVirtualWidth)
	p.ScrollTop = intPtr(NKScrollTop)
	p.ScrollLeft = intPtr(NKScrollLeft)
	p.Template = intPtr(NKTemplate)
	p.SchemaRef = intPtr(NKSchema)
	p.Value = strPtr(NKValue)
	p.Placeholder = strPtr(NKPlaceholder)
	p.Multiline = boolPtr(NKMultiline)
	p.Disabled = boolPtr(NKDisabled)
	if raw, ok := m[int(NKData)]; ok {
		var d []byte
		if cbor.Unmarshal(raw, &d) == nil {
			p.Data = d
		}
	}
	if s, ok := str(NKFormat); ok {
		p.Format = s
	}
	p.AltText = strPtr(NKAltText)
	if s, ok := str(NKMode); ok {
		p.Mode = s
	}
	if s, ok := str(NKInteractive); ok {
		p.Interactive = s
	}
	p.TabIndex = intPtr(NKTabIndex)
	p.Style = intPtr(NKStyle)
	p.Transition = intPtr(NKTransition)
	p.TextAlt = strPtr(NKTextAlt)

	return p
}

// ── PatchOp codec ─────────────────────────────────────────────────────

func encodePatchOp(op PatchOp) map[int]interface{} {
	m := map[int]interface{}{int(PKTarget): op.Target}
	if len(op.Set) > 0 {
		m[int(PKSet)] = setMapToWire(op.Set)
	}
	if op.Remove {
		m[int(PKRemove)] = true
	}
	if op.Replace != nil {
		m[int(PKReplace)] = encodeVNode(op.Replace)
	}
	if op.ChildrenInsert != nil {
		m[int(PKChildrenInsert)] = map[int]interface{}{
			int(PKIndex): op.ChildrenInsert.Index,
			int(PKNode):  encodeVNode(op.ChildrenInsert.Node),
		}
	}
	if op.ChildrenRemove != nil {
		m[int(PKChildrenRemove)] = map[int]interface{}{int(PKIndex): op.ChildrenRemove.Index}
	}
	if op.ChildrenMove != nil {
		m[int(PKChildrenMove)] = map[int]interface{}{
			int(PKFrom): op.ChildrenMove.From,
			int(PKTo):   op.ChildrenMove.To,
		}
	}
	if op.Transition != nil {
		m[int(PKTransition)] = *op.Transition
	}
	return m
}

func decodePatchOp(m map[int]cbor.RawMessage) (PatchOp, error) {
	var op PatchOp

	if raw, ok := m[int(PKTarget)]; ok {
		if err := cbor.Unmarshal(raw, &op.Target); err != nil {
			return op, fmt.Errorf("%w: patch target: %v", ErrMalformed, err)
		}
	}
	if raw, ok := m[int(PKSet)]; ok {
		setRaw, err := decodeKeyedMap(raw)
		if err != nil {
			return op, fmt.Errorf("%w: patch set: %v", ErrMalformed, err)
		}
		op.Set = wireToSetMap(setRaw)
	}
	if raw, ok := m[int(PKRemove)]; ok {
		var b bool
		if cbor.Unmarshal(raw, &b) == nil {
			op.Remove = b
		}
	}
	if raw, ok := m[int(PKReplace)]; ok {
		rm, err := decodeKeyedMap(raw)
		if err != nil {
			return op, fmt.Errorf("%w: patch replace: %v", ErrMalformed, err)
		}
		node, err := decodeVNode(rm)
		if err != nil {
			return op, err
		}
		op.Replace = node
	}
	if raw, ok := m[int(PKChildrenInsert)]; ok {
		sub, err := decodeKeyedMap(raw)
		if err != nil {
			return op, fmt.Errorf("%w: children_insert: %v", ErrMalformed, err)
		}
		ci := &ChildrenInsert{}
		if r, ok := sub[int(PKIndex)]; ok {
			cbor.Unmarshal(r, &ci.Index)
		}
		if r, ok := sub[int(PKNode)]; ok {
			nm, err := decodeKeyedMap(r)
			if err != nil {
				return op, fmt.Errorf("%w: children_insert node: %v", ErrMalformed, err)
			}
			node, err := decodeVNode(nm)
			if err != nil {
				return op, err
			}
			ci.Node = node
		}
		op.ChildrenInsert = ci
	}
	if raw, ok := m[int(PKChildrenRemove)]; ok {
		sub, err := decodeKeyedMap(raw)
		if err != nil {
			return op, fmt.Errorf("%w: children_remove: %v", ErrMalformed, err)
		}
		cr := &ChildrenRemove{}
		if r, ok := sub[int(PKIndex)]; ok {
			cbor.Unmarshal(r, &cr.Index)
		}
		op.ChildrenRemove = cr
	}
	if raw, ok := m[int(PKChildrenMove)]; ok {
		sub, err := decodeKeyedMap(raw)
		if err != nil {
			return op, fmt.Errorf("%w: children_move: %v", ErrMalformed, err)
		}
		cm := &ChildrenMove{}
		if r, ok := sub[int(PKFrom)]; ok {
			cbor.Unmarshal(r, &cm.From)
		}
		if r, ok := sub[int(PKTo)]; ok {
			cbor.Unmarshal(r, &cm.To)
		}
		op.ChildrenMove = cm
	}
	if raw, ok := m[int(PKTransition)]; ok {
		var t int
		if cbor.Unmarshal(raw, &t) == nil {
			op.Transition = &t
		}
	}

	return op, nil
}

// ── Slot value codec ──────────────────────────────────────────────────
//
// Slot values keep string keys for every field but "kind", which takes
// integer key 0; the rest of a slot value is open-ended, so string keys
// stay legible without bloating the common case.

func encodeSlotValue(s SlotValue) map[interface{}]interface{} {
	m := map[interface{}]interface{}{}
	if s == nil {
		return m
	}
	m[int(SKKind)] = s.SlotKind()

	switch v := s.(type) {
	case StyleSlot:
		if len(v.Props) > 0 {
			m["props"] = v.Props
		}
	case ColorSlot:
		m["role"] = v.Role
		m["value"] = v.Value
	case KeybindSlot:
		m["action"] = v.Action
		m["key"] = v.Key
	case TransitionSlot:
		m["role"] = v.Role
		m["durationMs"] = v.DurationMs
		m["easing"] = v.Easing
	case TextSizeSlot:
		m["role"] = v.Role
		m["value"] = v.Value
	case SchemaSlot:
		m["columns"] = v.Columns
	case RowTemplateSlot:
		m["schema"] = v.Schema
		if v.Layout != nil {
			m["layout"] = encodeVNode(v.Layout)
		}
	case GenericSlot:
		if len(v.Props) > 0 {
			m["props"] = v.Props
		}
	}
	return m
}

// decodeSlotMap splits a slot value's CBOR map into its integer kind key
// (0) and its remaining string-keyed fields.
func decodeSlotMap(raw cbor.RawMessage) (kind string, fields map[string]cbor.RawMessage, err error) {
	var generic map[interface{}]cbor.RawMessage
	if err := cbor.Unmarshal(raw, &generic); err != nil {
		return "", nil, err
	}
	fields = make(map[string]cbor.RawMessage, len(generic))
	for k, v := range generic {
		if s, ok := k.(string); ok {
			fields[s] = v
			continue
		}
		if ik, ok := toInt(k); ok && ik == int(SKKind) {
			cbor.Unmarshal(v, &kind)
		}
	}
	return kind, fields, nil
}

func decodeSlotValue(raw cbor.RawMessage) (SlotValue, error) {
	kind, fields, err := decodeSlotMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: slot value: %v", ErrMalformed, err)
	}

	getStr := func(name string) string {
		if r, ok := fields[name]; ok {
			var s string
			cbor.Unmarshal(r, &s)
			return s
		}
		return ""
	}
	getInt := func(name string) int {
		if r, ok := fields[name]; ok {
			var n int
			cbor.Unmarshal(r, &n)
			return n
		}
		return 0
	}
	getFloat := func(name string) float64 {
		if r, ok := fields[name]; ok {
			var f float64
			cbor.Unmarshal(r, &f)
			return f
		}
		return 0
	}

	switch kind {
	case "style":
		props := map[string]interface{}{}
		if r, ok := fields["props"]; ok {
			cbor.Unmarshal(r, &props)
		}
		return StyleSlot{Kind: kind, Props: props}, nil
	case "color":
		return ColorSlot{Kind: kind, Role: getStr("role"), Value: getStr("value")}, nil
	case "keybind":
		return KeybindSlot{Kind: kind, Action: getStr("action"), Key: getStr("key")}, nil
	case "transition":
		return TransitionSlot{Kind: kind, Role: getStr("role"), DurationMs: getInt("durationMs"), Easing: getStr("easing")}, nil
	case "text_size":
		return TextSizeSlot{Kind: kind, Role: getStr("role"), Value: getFloat("value")}, nil
	case "schema":
		var cols []SchemaColumn
		if r, ok := fields["columns"]; ok {
			cbor.Unmarshal(r, &cols)
		}
		return SchemaSlot{Kind: kind, Columns: cols}, nil
	case "row_template":
		rt := RowTemplateSlot{Kind: kind, Schema: getInt("schema")}
		if r, ok := fields["layout"]; ok {
			lm, err := decodeKeyedMap(r)
			if err == nil {
				if node, err := decodeVNode(lm); err == nil {
					rt.Layout = node
				}
			}
		}
		return rt, nil
	default:
		props := map[string]interface{}{}
		if r, ok := fields["props"]; ok {
			cbor.Unmarshal(r, &props)
		}
		return GenericSlot{Kind: kind, Props: props}, nil
	}
}
