// Package protocol defines the wire message schema, its three
// encodings, optional compression, and capability negotiation described
// in spec §4.6 and §6.
package protocol

import (
	"github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/diffengine"
)

// MessageType tags which payload field of Message is populated.
type MessageType string

const (
	TypeConnected           MessageType = "connected"
	TypeProtocolNegotiated  MessageType = "protocol_negotiated"
	TypeTemplateUpdated     MessageType = "template_updated"
	TypeTemplateDeltaUpdate MessageType = "template_delta_update"
	TypeBatchUpdate         MessageType = "batch_update"
	TypeAssetUpdated        MessageType = "asset_updated"
	TypeFullReload          MessageType = "full_reload"
	TypeError               MessageType = "error"
	TypePing                MessageType = "ping"

	// client -> server
	TypeClientCapabilities MessageType = "client_capabilities"
	TypePong               MessageType = "pong"
	TypeReloadRequest      MessageType = "reload_request"
	TypeStateResponse      MessageType = "state_response"
)

// Message is the single envelope every wire format encodes. Only the
// field matching Type is populated; this mirrors a tagged union using
// Go's zero-value-friendly JSON marshalling (omitempty on every payload).
type Message struct {
	Type MessageType `json:"type"`
	Seq  uint64      `json:"seq,omitempty"` // broadcast server's monotonic sequence counter

	Connected           *ConnectedPayload           `json:"connected,omitempty"`
	ProtocolNegotiated  *ProtocolNegotiatedPayload  `json:"protocol_negotiated,omitempty"`
	TemplateUpdated     *TemplateUpdatedPayload     `json:"template_updated,omitempty"`
	TemplateDeltaUpdate *TemplateDeltaUpdatePayload `json:"template_delta_update,omitempty"`
	BatchUpdate         *BatchUpdatePayload         `json:"batch_update,omitempty"`
	AssetUpdated        *AssetUpdatedPayload        `json:"asset_updated,omitempty"`
	FullReload          *FullReloadPayload          `json:"full_reload,omitempty"`
	Error               *ErrorPayload               `json:"error,omitempty"`

	ClientCapabilities *Capabilities       `json:"client_capabilities,omitempty"`
	ReloadRequest      *ReloadRequestPayload `json:"reload_request,omitempty"`
	StateResponse      *StateResponsePayload `json:"state_response,omitempty"`
}

// IdentityWire is the wire form of internal/identity.Identity.
type IdentityWire struct {
	SourcePath string `json:"source_path"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
}

type ConnectedPayload struct {
	Version      string   `json:"version"`
	Serialisation []string `json:"serialisation"`
	Compression   []string `json:"compression"`
	Features      []string `json:"features"`
}

type ProtocolNegotiatedPayload struct {
	Serialisation string `json:"serialisation"`
	Compression   string `json:"compression"`
	Features      []string `json:"features"`
}

type DynamicPartWire struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
}

type TemplateUpdatedPayload struct {
	Identity     IdentityWire      `json:"identity"`
	ContentHash  uint64            `json:"content_hash"`
	HTML         string            `json:"html"`
	DynamicParts []DynamicPartWire `json:"dynamic_parts"`
}

type TemplateDeltaUpdatePayload struct {
	Identity   IdentityWire        `json:"identity"`
	PrevHash   uint64              `json:"prev_hash"`
	NewHash    uint64              `json:"new_hash"`
	Operations []diffengine.DeltaOp `json:"operations"`
}

type BatchItem struct {
	Update     *TemplateUpdatedPayload     `json:"update,omitempty"`
	DeltaUpdate *TemplateDeltaUpdatePayload `json:"delta_update,omitempty"`
}

type BatchUpdatePayload struct {
	BatchID   string      `json:"batch_id"`
	Timestamp int64       `json:"timestamp"` // unix millis
	Items     []BatchItem `json:"items"`
}

type AssetKind string

const (
	AssetCSS AssetKind = "css"
	AssetJS  AssetKind = "js"
)

type AssetUpdatedPayload struct {
	Kind AssetKind `json:"kind"`
	Path string    `json:"path"`
}

type FullReloadPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type ReloadRequestPayload struct {
	Identity IdentityWire `json:"identity"`
}

type StateResponsePayload struct {
	InstanceID string `json:"instance_id"`
	StateBlob  []byte `json:"state_blob"`
	// InstanceToken proves the blob belongs to the instance token issued
	// for this identity (internal/token), so a reconnect cannot smuggle
	// in a stale or forged blob. See spec §4.9 (SPEC_FULL).
	InstanceToken string `json:"instance_token,omitempty"`
}

// DynamicPartsWire converts the AST's dynamic-part sequence to its wire
// form; expression source is never included (spec §3: "opaque strings;
// the engine never evaluates them").
func DynamicPartsWire(parts []ast.DynamicPart) []DynamicPartWire {
	out := make([]DynamicPartWire, len(parts))
	for i, p := range parts {
		out[i] = DynamicPartWire{Index: p.Index, Kind: p.Kind.String()}
	}
	return out
}
