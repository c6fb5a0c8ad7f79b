package protocol

import (
	"testing"

	"github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/diffengine"
)

func sampleMessages() []*Message {
	return []*Message{
		{Type: TypePing},
		{Type: TypePong},
		{
			Type: TypeConnected,
			Connected: &ConnectedPayload{
				Version:       "1",
				Serialisation: []string{SerialisationBinaryA, SerialisationText},
				Compression:   []string{CompressionGzip, CompressionNone},
				Features:      []string{"delta-update"},
			},
		},
		{
			Type: TypeTemplateUpdated,
			Seq:  7,
			TemplateUpdated: &TemplateUpdatedPayload{
				Identity:    IdentityWire{SourcePath: "views/home.go", Line: 12, Column: 4},
				ContentHash: 0xDEADBEEF,
				HTML:        "<div>hi</div>",
				DynamicParts: []DynamicPartWire{
					{Index: 0, Kind: "expression"},
					{Index: 1, Kind: "conditional"},
				},
			},
		},
		{
			Type: TypeTemplateDeltaUpdate,
			Seq:  8,
			TemplateDeltaUpdate: &TemplateDeltaUpdatePayload{
				Identity: IdentityWire{SourcePath: "views/home.go", Line: 12, Column: 4},
				PrevHash: 1,
				NewHash:  2,
				Operations: []diffengine.DeltaOp{
					{Kind: diffengine.UpdateText, Path: []int{0, 1}, NewText: "bye"},
					{
						Kind:       diffengine.InsertChild,
						ParentPath: []int{0},
						Index:      2,
						Node: &ast.Node{
							Kind: ast.Element,
							Tag:  "li",
							Attrs: []ast.Attribute{
								{Name: "class", Kind: ast.AttrStatic, Value: "item"},
							},
							Children: []*ast.Node{
								{Kind: ast.Text, Literal: "three"},
							},
						},
					},
					{Kind: diffengine.MoveChild, ParentPath: []int{}, From: 0, To: 2},
				},
			},
		},
		{
			Type: TypeBatchUpdate,
			BatchUpdate: &BatchUpdatePayload{
				BatchID:   "b1",
				Timestamp: 1234,
				Items: []BatchItem{
					{Update: &TemplateUpdatedPayload{Identity: IdentityWire{SourcePath: "a.go", Line: 1, Column: 1}, HTML: "x"}},
					{DeltaUpdate: &TemplateDeltaUpdatePayload{Identity: IdentityWire{SourcePath: "b.go", Line: 2, Column: 2}}},
				},
			},
		},
		{Type: TypeAssetUpdated, AssetUpdated: &AssetUpdatedPayload{Kind: AssetCSS, Path: "/style.css"}},
		{Type: TypeFullReload, FullReload: &FullReloadPayload{Reason: "backpressure"}},
		{Type: TypeError, Error: &ErrorPayload{Code: "parse_error", Message: "bad template", Suggestions: []string{"check line 4"}}},
		{Type: TypeClientCapabilities, ClientCapabilities: &Capabilities{Serialisation: []string{"text"}, Compression: []string{"none"}}},
		{Type: TypeReloadRequest, ReloadRequest: &ReloadRequestPayload{Identity: IdentityWire{SourcePath: "a.go", Line: 1, Column: 1}}},
		{Type: TypeStateResponse, StateResponse: &StateResponsePayload{InstanceID: "i1", StateBlob: []byte{1, 2, 3}, InstanceToken: "tok"}},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, serialisation := range []string{SerialisationText, SerialisationBinaryA, SerialisationBinaryB} {
		for _, msg := range sampleMessages() {
			encoded, err := EncodeMessage(msg, serialisation)
			if err != nil {
				t.Fatalf("%s: encode %s: %v", serialisation, msg.Type, err)
			}
			decoded, err := DecodeMessage(encoded, serialisation)
			if err != nil {
				t.Fatalf("%s: decode %s: %v", serialisation, msg.Type, err)
			}
			if decoded.Type != msg.Type {
				t.Fatalf("%s: %s: type mismatch got %s", serialisation, msg.Type, decoded.Type)
			}
		}
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, to pad this past the compression floor. " +
		"the quick brown fox jumps over the lazy dog, repeatedly, to pad this past the compression floor.")
	for _, scheme := range []string{CompressionNone, CompressionGzip, CompressionBrotli} {
		frame, err := Compress(payload, scheme)
		if err != nil {
			t.Fatalf("%s: compress: %v", scheme, err)
		}
		got, err := Decompress(frame)
		if err != nil {
			t.Fatalf("%s: decompress: %v", scheme, err)
		}
		if string(got) != string(payload) {
			t.Fatalf("%s: round trip mismatch", scheme)
		}
	}
}

func TestNegotiatePrefersRichestMutual(t *testing.T) {
	n := Negotiate(Capabilities{
		Serialisation: []string{SerialisationText, SerialisationBinaryB},
		Compression:   []string{CompressionNone, CompressionGzip},
		Features:      []string{"delta-update", "unknown-feature"},
	})
	if n.Serialisation != SerialisationBinaryB {
		t.Fatalf("expected binary-b, got %s", n.Serialisation)
	}
	if n.Compression != CompressionGzip {
		t.Fatalf("expected gzip, got %s", n.Compression)
	}
	if len(n.Features) != 1 || n.Features[0] != "delta-update" {
		t.Fatalf("expected only delta-update, got %v", n.Features)
	}
}

func TestNegotiateFallsBackWhenClientAnnouncesNothing(t *testing.T) {
	n := Negotiate(Capabilities{})
	if n.Serialisation != SerialisationText {
		t.Fatalf("expected text fallback, got %s", n.Serialisation)
	}
	if n.Compression != CompressionNone {
		t.Fatalf("expected none fallback, got %s", n.Compression)
	}
}

func TestGuardFrameRejectsOversize(t *testing.T) {
	big := make([]byte, MaxFrameBytes+1)
	if _, err := GuardFrame(big); err == nil {
		t.Fatal("expected oversize error")
	}
	small := make([]byte, 10)
	out, err := GuardFrame(small)
	if err != nil || len(out) != 10 {
		t.Fatalf("expected pass-through, got %v, err %v", out, err)
	}
}
