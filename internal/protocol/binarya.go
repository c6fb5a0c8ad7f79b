package protocol

import (
	"fmt"

	"github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/diffengine"
)

// Binary-a is the self-describing tagged encoding: every field is a
// (tag byte, length-prefixed value) pair, so a decoder built against an
// older schema version can skip tags it doesn't recognise instead of
// failing the whole message. It costs more bytes than binary-b; clients
// that want the smallest wire size should negotiate binary-b instead.
const (
	binaryAMagic   byte = 0xA1
	binaryAVersion byte = 1
)

// Field tags, scoped per message type since only one payload is ever
// populated on a given Message.
const (
	tagEnd byte = 0x00

	tagConnVersion byte = 0x01
	tagConnSer     byte = 0x02
	tagConnComp    byte = 0x03
	tagConnFeat    byte = 0x04

	tagNegSer  byte = 0x01
	tagNegComp byte = 0x02
	tagNegFeat byte = 0x03

	tagTUIdentity byte = 0x01
	tagTUHash     byte = 0x02
	tagTUHTML     byte = 0x03
	tagTUDynParts byte = 0x04

	tagTDIdentity byte = 0x01
	tagTDPrev     byte = 0x02
	tagTDNew      byte = 0x03
	tagTDOps      byte = 0x04

	tagBUID    byte = 0x01
	tagBUTime  byte = 0x02
	tagBUItems byte = 0x03

	tagAUKind byte = 0x01
	tagAUPath byte = 0x02

	tagFRReason byte = 0x01

	tagErrCode byte = 0x01
	tagErrMsg  byte = 0x02
	tagErrSugg byte = 0x03

	tagCapsSer  byte = 0x01
	tagCapsComp byte = 0x02
	tagCapsFeat byte = 0x03

	tagRRIdentity byte = 0x01

	tagSRInstanceID byte = 0x01
	tagSRBlob       byte = 0x02
	tagSRToken      byte = 0x03
)

var messageTypeCode = map[MessageType]byte{
	TypeConnected:           1,
	TypeProtocolNegotiated:  2,
	TypeTemplateUpdated:     3,
	TypeTemplateDeltaUpdate: 4,
	TypeBatchUpdate:         5,
	TypeAssetUpdated:        6,
	TypeFullReload:          7,
	TypeError:               8,
	TypePing:                9,
	TypeClientCapabilities:  10,
	TypePong:                11,
	TypeReloadRequest:       12,
	TypeStateResponse:       13,
}

var messageTypeFromCode = func() map[byte]MessageType {
	out := make(map[byte]MessageType, len(messageTypeCode))
	for t, c := range messageTypeCode {
		out[c] = t
	}
	return out
}()

func (w *writer) field(tag byte, encode func(*writer)) {
	var sub writer
	encode(&sub)
	w.byte(tag)
	w.bytes(sub.buf.Bytes())
}

func (r *reader) field() (byte, []byte, bool, error) {
	tag, err := r.byte()
	if err != nil {
		return 0, nil, false, ErrTruncated
	}
	if tag == tagEnd {
		return tag, nil, false, nil
	}
	val, err := r.bytes()
	if err != nil {
		return 0, nil, false, err
	}
	return tag, val, true, nil
}

// EncodeBinaryA encodes a Message in the self-describing tagged format.
func EncodeBinaryA(m *Message) ([]byte, error) {
	var w writer
	w.byte(binaryAMagic)
	w.byte(binaryAVersion)
	code, ok := messageTypeCode[m.Type]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown message type %q", m.Type)
	}
	w.byte(code)
	w.uvarint(m.Seq)

	switch m.Type {
	case TypeConnected:
		p := m.Connected
		w.field(tagConnVersion, func(s *writer) { s.str(p.Version) })
		w.field(tagConnSer, func(s *writer) { s.strs(p.Serialisation) })
		w.field(tagConnComp, func(s *writer) { s.strs(p.Compression) })
		w.field(tagConnFeat, func(s *writer) { s.strs(p.Features) })
	case TypeProtocolNegotiated:
		p := m.ProtocolNegotiated
		w.field(tagNegSer, func(s *writer) { s.str(p.Serialisation) })
		w.field(tagNegComp, func(s *writer) { s.str(p.Compression) })
		w.field(tagNegFeat, func(s *writer) { s.strs(p.Features) })
	case TypeTemplateUpdated:
		p := m.TemplateUpdated
		w.field(tagTUIdentity, func(s *writer) { writeIdentity(s, p.Identity) })
		w.field(tagTUHash, func(s *writer) { s.uvarint(p.ContentHash) })
		w.field(tagTUHTML, func(s *writer) { s.str(p.HTML) })
		w.field(tagTUDynParts, func(s *writer) { writeDynParts(s, p.DynamicParts) })
	case TypeTemplateDeltaUpdate:
		p := m.TemplateDeltaUpdate
		w.field(tagTDIdentity, func(s *writer) { writeIdentity(s, p.Identity) })
		w.field(tagTDPrev, func(s *writer) { s.uvarint(p.PrevHash) })
		w.field(tagTDNew, func(s *writer) { s.uvarint(p.NewHash) })
		w.field(tagTDOps, func(s *writer) { writeOps(s, p.Operations) })
	case TypeBatchUpdate:
		p := m.BatchUpdate
		w.field(tagBUID, func(s *writer) { s.str(p.BatchID) })
		w.field(tagBUTime, func(s *writer) { s.uvarint(uint64(p.Timestamp)) })
		w.field(tagBUItems, func(s *writer) { writeBatchItems(s, p.Items) })
	case TypeAssetUpdated:
		p := m.AssetUpdated
		w.field(tagAUKind, func(s *writer) { s.str(string(p.Kind)) })
		w.field(tagAUPath, func(s *writer) { s.str(p.Path) })
	case TypeFullReload:
		p := m.FullReload
		w.field(tagFRReason, func(s *writer) { s.str(p.Reason) })
	case TypeError:
		p := m.Error
		w.field(tagErrCode, func(s *writer) { s.str(p.Code) })
		w.field(tagErrMsg, func(s *writer) { s.str(p.Message) })
		w.field(tagErrSugg, func(s *writer) { s.strs(p.Suggestions) })
	case TypePing, TypePong:
		// no payload
	case TypeClientCapabilities:
		p := m.ClientCapabilities
		w.field(tagCapsSer, func(s *writer) { s.strs(p.Serialisation) })
		w.field(tagCapsComp, func(s *writer) { s.strs(p.Compression) })
		w.field(tagCapsFeat, func(s *writer) { s.strs(p.Features) })
	case TypeReloadRequest:
		p := m.ReloadRequest
		w.field(tagRRIdentity, func(s *writer) { writeIdentity(s, p.Identity) })
	case TypeStateResponse:
		p := m.StateResponse
		w.field(tagSRInstanceID, func(s *writer) { s.str(p.InstanceID) })
		w.field(tagSRBlob, func(s *writer) { s.bytes(p.StateBlob) })
		w.field(tagSRToken, func(s *writer) { s.str(p.InstanceToken) })
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", m.Type)
	}
	w.byte(tagEnd)
	return w.buf.Bytes(), nil
}

// DecodeBinaryA decodes a Message from the self-describing tagged format.
func DecodeBinaryA(data []byte) (*Message, error) {
	r := newReader(data)
	magic, err := r.byte()
	if err != nil || magic != binaryAMagic {
		return nil, fmt.Errorf("protocol: bad binary-a magic")
	}
	if _, err := r.byte(); err != nil { // version, currently unchecked beyond presence
		return nil, ErrTruncated
	}
	code, err := r.byte()
	if err != nil {
		return nil, ErrTruncated
	}
	typ, ok := messageTypeFromCode[code]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown message type code %d", code)
	}
	seq, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	m := &Message{Type: typ, Seq: seq}

	for {
		tag, val, more, err := r.field()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		sub := newReader(val)
		if err := applyField(m, typ, tag, sub); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func applyField(m *Message, typ MessageType, tag byte, s *reader) error {
	var err error
	switch typ {
	case TypeConnected:
		if m.Connected == nil {
			m.Connected = &ConnectedPayload{}
		}
		p := m.Connected
		switch tag {
		case tagConnVersion:
			p.Version, err = s.str()
		case tagConnSer:
			p.Serialisation, err = s.strs()
		case tagConnComp:
			p.Compression, err = s.strs()
		case tagConnFeat:
			p.Features, err = s.strs()
		}
	case TypeProtocolNegotiated:
		if m.ProtocolNegotiated == nil {
			m.ProtocolNegotiated = &ProtocolNegotiatedPayload{}
		}
		p := m.ProtocolNegotiated
		switch tag {
		case tagNegSer:
			p.Serialisation, err = s.str()
		case tagNegComp:
			p.Compression, err = s.str()
		case tagNegFeat:
			p.Features, err = s.strs()
		}
	case TypeTemplateUpdated:
		if m.TemplateUpdated == nil {
			m.TemplateUpdated = &TemplateUpdatedPayload{}
		}
		p := m.TemplateUpdated
		switch tag {
		case tagTUIdentity:
			p.Identity, err = readIdentity(s)
		case tagTUHash:
			p.ContentHash, err = s.uvarint()
		case tagTUHTML:
			p.HTML, err = s.str()
		case tagTUDynParts:
			p.DynamicParts, err = readDynParts(s)
		}
	case TypeTemplateDeltaUpdate:
		if m.TemplateDeltaUpdate == nil {
			m.TemplateDeltaUpdate = &TemplateDeltaUpdatePayload{}
		}
		p := m.TemplateDeltaUpdate
		switch tag {
		case tagTDIdentity:
			p.Identity, err = readIdentity(s)
		case tagTDPrev:
			p.PrevHash, err = s.uvarint()
		case tagTDNew:
			p.NewHash, err = s.uvarint()
		case tagTDOps:
			p.Operations, err = readOps(s)
		}
	case TypeBatchUpdate:
		if m.BatchUpdate == nil {
			m.BatchUpdate = &BatchUpdatePayload{}
		}
		p := m.BatchUpdate
		switch tag {
		case tagBUID:
			p.BatchID, err = s.str()
		case tagBUTime:
			var v uint64
			v, err = s.uvarint()
			p.Timestamp = int64(v)
		case tagBUItems:
			p.Items, err = readBatchItems(s)
		}
	case TypeAssetUpdated:
		if m.AssetUpdated == nil {
			m.AssetUpdated = &AssetUpdatedPayload{}
		}
		p := m.AssetUpdated
		switch tag {
		case tagAUKind:
			var v string
			v, err = s.str()
			p.Kind = AssetKind(v)
		case tagAUPath:
			p.Path, err = s.str()
		}
	case TypeFullReload:
		if m.FullReload == nil {
			m.FullReload = &FullReloadPayload{}
		}
		if tag == tagFRReason {
			m.FullReload.Reason, err = s.str()
		}
	case TypeError:
		if m.Error == nil {
			m.Error = &ErrorPayload{}
		}
		p := m.Error
		switch tag {
		case tagErrCode:
			p.Code, err = s.str()
		case tagErrMsg:
			p.Message, err = s.str()
		case tagErrSugg:
			p.Suggestions, err = s.strs()
		}
	case TypeClientCapabilities:
		if m.ClientCapabilities == nil {
			m.ClientCapabilities = &Capabilities{}
		}
		p := m.ClientCapabilities
		switch tag {
		case tagCapsSer:
			p.Serialisation, err = s.strs()
		case tagCapsComp:
			p.Compression, err = s.strs()
		case tagCapsFeat:
			p.Features, err = s.strs()
		}
	case TypeReloadRequest:
		if m.ReloadRequest == nil {
			m.ReloadRequest = &ReloadRequestPayload{}
		}
		if tag == tagRRIdentity {
			m.ReloadRequest.Identity, err = readIdentity(s)
		}
	case TypeStateResponse:
		if m.StateResponse == nil {
			m.StateResponse = &StateResponsePayload{}
		}
		p := m.StateResponse
		switch tag {
		case tagSRInstanceID:
			p.InstanceID, err = s.str()
		case tagSRBlob:
			p.StateBlob, err = s.bytes()
		case tagSRToken:
			p.InstanceToken, err = s.str()
		}
	}
	return err
}

func writeIdentity(w *writer, id IdentityWire) {
	w.str(id.SourcePath)
	w.uvarint(uint64(id.Line))
	w.uvarint(uint64(id.Column))
}

func readIdentity(r *reader) (IdentityWire, error) {
	path, err := r.str()
	if err != nil {
		return IdentityWire{}, err
	}
	line, err := r.uvarint()
	if err != nil {
		return IdentityWire{}, err
	}
	col, err := r.uvarint()
	if err != nil {
		return IdentityWire{}, err
	}
	return IdentityWire{SourcePath: path, Line: int(line), Column: int(col)}, nil
}

func writeDynParts(w *writer, parts []DynamicPartWire) {
	w.uvarint(uint64(len(parts)))
	for _, p := range parts {
		w.uvarint(uint64(p.Index))
		w.str(p.Kind)
	}
}

func readDynParts(r *reader) ([]DynamicPartWire, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]DynamicPartWire, n)
	for i := range out {
		idx, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		kind, err := r.str()
		if err != nil {
			return nil, err
		}
		out[i] = DynamicPartWire{Index: int(idx), Kind: kind}
	}
	return out, nil
}

func writeOps(w *writer, ops []diffengine.DeltaOp) {
	w.uvarint(uint64(len(ops)))
	for _, op := range ops {
		w.uvarint(uint64(op.Kind))
		w.ints(op.Path)
		w.str(op.NewText)
		w.str(op.AttrName)
		w.uvarint(uint64(op.AttrKind))
		w.str(op.AttrValue)
		w.ints(op.ParentPath)
		w.uvarint(uint64(op.Index))
		w.bool(op.Node != nil)
		if op.Node != nil {
			writeASTNode(w, op.Node)
		}
		w.uvarint(uint64(op.From))
		w.uvarint(uint64(op.To))
	}
}

func readOps(r *reader) ([]diffengine.DeltaOp, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]diffengine.DeltaOp, n)
	for i := range out {
		kind, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		path, err := r.ints()
		if err != nil {
			return nil, err
		}
		newText, err := r.str()
		if err != nil {
			return nil, err
		}
		attrName, err := r.str()
		if err != nil {
			return nil, err
		}
		attrKind, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		attrValue, err := r.str()
		if err != nil {
			return nil, err
		}
		parentPath, err := r.ints()
		if err != nil {
			return nil, err
		}
		index, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		hasNode, err := r.boolean()
		if err != nil {
			return nil, err
		}
		var node *ast.Node
		if hasNode {
			node, err = readASTNode(r)
			if err != nil {
				return nil, err
			}
		}
		from, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		to, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		out[i] = diffengine.DeltaOp{
			Kind:       diffengine.OpKind(kind),
			Path:       path,
			NewText:    newText,
			AttrName:   attrName,
			AttrKind:   ast.AttrKind(attrKind),
			AttrValue:  attrValue,
			ParentPath: parentPath,
			Index:      int(index),
			Node:       node,
			From:       int(from),
			To:         int(to),
		}
	}
	return out, nil
}

// writeASTNode serialises the subset of ast.Node needed on the wire: an
// InsertChild/ReplaceNode payload is always a fully-resolved subtree, so
// opaque expression sources travel as plain strings, never evaluated.
func writeASTNode(w *writer, n *ast.Node) {
	w.uvarint(uint64(n.Kind))
	w.str(n.Tag)
	w.uvarint(uint64(len(n.Attrs)))
	for _, a := range n.Attrs {
		w.str(a.Name)
		w.uvarint(uint64(a.Kind))
		w.str(a.Value)
		w.uvarint(uint64(a.Index))
	}
	w.uvarint(uint64(len(n.Children)))
	for _, c := range n.Children {
		writeASTNode(w, c)
	}
	w.str(n.Literal)
	w.str(n.ExprSource)
	w.uvarint(uint64(n.DynIndex))
}

func readASTNode(r *reader) (*ast.Node, error) {
	kind, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	tag, err := r.str()
	if err != nil {
		return nil, err
	}
	nAttrs, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	attrs := make([]ast.Attribute, nAttrs)
	for i := range attrs {
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		ak, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		val, err := r.str()
		if err != nil {
			return nil, err
		}
		idx, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		attrs[i] = ast.Attribute{Name: name, Kind: ast.AttrKind(ak), Value: val, Index: int(idx)}
	}
	nChildren, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	children := make([]*ast.Node, nChildren)
	for i := range children {
		children[i], err = readASTNode(r)
		if err != nil {
			return nil, err
		}
	}
	literal, err := r.str()
	if err != nil {
		return nil, err
	}
	exprSource, err := r.str()
	if err != nil {
		return nil, err
	}
	dynIndex, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	return &ast.Node{
		Kind:       ast.NodeKind(kind),
		Tag:        tag,
		Attrs:      attrs,
		Children:   children,
		Literal:    literal,
		ExprSource: exprSource,
		DynIndex:   int(dynIndex),
	}, nil
}

func writeBatchItems(w *writer, items []BatchItem) {
	w.uvarint(uint64(len(items)))
	for _, it := range items {
		w.bool(it.Update != nil)
		if it.Update != nil {
			writeIdentity(w, it.Update.Identity)
			w.uvarint(it.Update.ContentHash)
			w.str(it.Update.HTML)
			writeDynParts(w, it.Update.DynamicParts)
		}
		w.bool(it.DeltaUpdate != nil)
		if it.DeltaUpdate != nil {
			writeIdentity(w, it.DeltaUpdate.Identity)
			w.uvarint(it.DeltaUpdate.PrevHash)
			w.uvarint(it.DeltaUpdate.NewHash)
			writeOps(w, it.DeltaUpdate.Operations)
		}
	}
}

func readBatchItems(r *reader) ([]BatchItem, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	out := make([]BatchItem, n)
	for i := range out {
		hasUpdate, err := r.boolean()
		if err != nil {
			return nil, err
		}
		if hasUpdate {
			id, err := readIdentity(r)
			if err != nil {
				return nil, err
			}
			hash, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			html, err := r.str()
			if err != nil {
				return nil, err
			}
			parts, err := readDynParts(r)
			if err != nil {
				return nil, err
			}
			out[i].Update = &TemplateUpdatedPayload{Identity: id, ContentHash: hash, HTML: html, DynamicParts: parts}
		}
		hasDelta, err := r.boolean()
		if err != nil {
			return nil, err
		}
		if hasDelta {
			id, err := readIdentity(r)
			if err != nil {
				return nil, err
			}
			prev, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			neu, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			ops, err := readOps(r)
			if err != nil {
				return nil, err
			}
			out[i].DeltaUpdate = &TemplateDeltaUpdatePayload{Identity: id, PrevHash: prev, NewHash: neu, Operations: ops}
		}
	}
	return out, nil
}
