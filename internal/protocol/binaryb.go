package protocol

import "fmt"

// Binary-b is the compact positional encoding: fields are written in a
// fixed order with no tag bytes, matched to exactly one schema version.
// It is smaller on the wire than binary-a but a client pinned to an
// older version cannot skip fields it doesn't know about. Negotiate picks
// it for any client that lists it (and not binary-a) without checking
// features or schema version; DecodeBinaryB rejects any version byte
// other than binaryBVersion.
const (
	binaryBMagic   byte = 0xB2
	binaryBVersion byte = 1
)

// EncodeBinaryB encodes a Message in the compact positional format.
func EncodeBinaryB(m *Message) ([]byte, error) {
	var w writer
	w.byte(binaryBMagic)
	w.byte(binaryBVersion)
	code, ok := messageTypeCode[m.Type]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown message type %q", m.Type)
	}
	w.byte(code)
	w.uvarint(m.Seq)

	switch m.Type {
	case TypeConnected:
		p := m.Connected
		w.str(p.Version)
		w.strs(p.Serialisation)
		w.strs(p.Compression)
		w.strs(p.Features)
	case TypeProtocolNegotiated:
		p := m.ProtocolNegotiated
		w.str(p.Serialisation)
		w.str(p.Compression)
		w.strs(p.Features)
	case TypeTemplateUpdated:
		p := m.TemplateUpdated
		writeIdentity(&w, p.Identity)
		w.uvarint(p.ContentHash)
		w.str(p.HTML)
		writeDynParts(&w, p.DynamicParts)
	case TypeTemplateDeltaUpdate:
		p := m.TemplateDeltaUpdate
		writeIdentity(&w, p.Identity)
		w.uvarint(p.PrevHash)
		w.uvarint(p.NewHash)
		writeOps(&w, p.Operations)
	case TypeBatchUpdate:
		p := m.BatchUpdate
		w.str(p.BatchID)
		w.uvarint(uint64(p.Timestamp))
		writeBatchItems(&w, p.Items)
	case TypeAssetUpdated:
		p := m.AssetUpdated
		w.str(string(p.Kind))
		w.str(p.Path)
	case TypeFullReload:
		w.str(m.FullReload.Reason)
	case TypeError:
		p := m.Error
		w.str(p.Code)
		w.str(p.Message)
		w.strs(p.Suggestions)
	case TypePing, TypePong:
		// no payload
	case TypeClientCapabilities:
		p := m.ClientCapabilities
		w.strs(p.Serialisation)
		w.strs(p.Compression)
		w.strs(p.Features)
	case TypeReloadRequest:
		writeIdentity(&w, m.ReloadRequest.Identity)
	case TypeStateResponse:
		p := m.StateResponse
		w.str(p.InstanceID)
		w.bytes(p.StateBlob)
		w.str(p.InstanceToken)
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", m.Type)
	}
	return w.buf.Bytes(), nil
}

// DecodeBinaryB decodes a Message from the compact positional format.
func DecodeBinaryB(data []byte) (*Message, error) {
	r := newReader(data)
	magic, err := r.byte()
	if err != nil || magic != binaryBMagic {
		return nil, fmt.Errorf("protocol: bad binary-b magic")
	}
	version, err := r.byte()
	if err != nil {
		return nil, ErrTruncated
	}
	if version != binaryBVersion {
		return nil, fmt.Errorf("protocol: unsupported binary-b version %d", version)
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

	switch typ {
	case TypeConnected:
		p := &ConnectedPayload{}
		if p.Version, err = r.str(); err != nil {
			return nil, err
		}
		if p.Serialisation, err = r.strs(); err != nil {
			return nil, err
		}
		if p.Compression, err = r.strs(); err != nil {
			return nil, err
		}
		if p.Features, err = r.strs(); err != nil {
			return nil, err
		}
		m.Connected = p
	case TypeProtocolNegotiated:
		p := &ProtocolNegotiatedPayload{}
		if p.Serialisation, err = r.str(); err != nil {
			return nil, err
		}
		if p.Compression, err = r.str(); err != nil {
			return nil, err
		}
		if p.Features, err = r.strs(); err != nil {
			return nil, err
		}
		m.ProtocolNegotiated = p
	case TypeTemplateUpdated:
		p := &TemplateUpdatedPayload{}
		if p.Identity, err = readIdentity(r); err != nil {
			return nil, err
		}
		if p.ContentHash, err = r.uvarint(); err != nil {
			return nil, err
		}
		if p.HTML, err = r.str(); err != nil {
			return nil, err
		}
		if p.DynamicParts, err = readDynParts(r); err != nil {
			return nil, err
		}
		m.TemplateUpdated = p
	case TypeTemplateDeltaUpdate:
		p := &TemplateDeltaUpdatePayload{}
		if p.Identity, err = readIdentity(r); err != nil {
			return nil, err
		}
		if p.PrevHash, err = r.uvarint(); err != nil {
			return nil, err
		}
		if p.NewHash, err = r.uvarint(); err != nil {
			return nil, err
		}
		if p.Operations, err = readOps(r); err != nil {
			return nil, err
		}
		m.TemplateDeltaUpdate = p
	case TypeBatchUpdate:
		p := &BatchUpdatePayload{}
		if p.BatchID, err = r.str(); err != nil {
			return nil, err
		}
		var ts uint64
		if ts, err = r.uvarint(); err != nil {
			return nil, err
		}
		p.Timestamp = int64(ts)
		if p.Items, err = readBatchItems(r); err != nil {
			return nil, err
		}
		m.BatchUpdate = p
	case TypeAssetUpdated:
		p := &AssetUpdatedPayload{}
		var kind string
		if kind, err = r.str(); err != nil {
			return nil, err
		}
		p.Kind = AssetKind(kind)
		if p.Path, err = r.str(); err != nil {
			return nil, err
		}
		m.AssetUpdated = p
	case TypeFullReload:
		p := &FullReloadPayload{}
		if p.Reason, err = r.str(); err != nil {
			return nil, err
		}
		m.FullReload = p
	case TypeError:
		p := &ErrorPayload{}
		if p.Code, err = r.str(); err != nil {
			return nil, err
		}
		if p.Message, err = r.str(); err != nil {
			return nil, err
		}
		if p.Suggestions, err = r.strs(); err != nil {
			return nil, err
		}
		m.Error = p
	case TypePing, TypePong:
		// no payload
	case TypeClientCapabilities:
		p := &Capabilities{}
		if p.Serialisation, err = r.strs(); err != nil {
			return nil, err
		}
		if p.Compression, err = r.strs(); err != nil {
			return nil, err
		}
		if p.Features, err = r.strs(); err != nil {
			return nil, err
		}
		m.ClientCapabilities = p
	case TypeReloadRequest:
		p := &ReloadRequestPayload{}
		if p.Identity, err = readIdentity(r); err != nil {
			return nil, err
		}
		m.ReloadRequest = p
	case TypeStateResponse:
		p := &StateResponsePayload{}
		if p.InstanceID, err = r.str(); err != nil {
			return nil, err
		}
		if p.StateBlob, err = r.bytes(); err != nil {
			return nil, err
		}
		if p.InstanceToken, err = r.str(); err != nil {
			return nil, err
		}
		m.StateResponse = p
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", typ)
	}
	return m, nil
}
