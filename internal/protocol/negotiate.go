package protocol

// Capabilities is what a client announces in its client_capabilities
// message and what the server answers with in protocol_negotiated.
type Capabilities struct {
	Serialisation []string `json:"serialisation"`
	Compression   []string `json:"compression"`
	Features      []string `json:"features"`
}

// Serialisation names, in the server's preference order (spec §4.6):
// binary-a (richest, self-describing) beats binary-b (compact positional)
// beats text (plain JSON, always supported as the universal fallback).
const (
	SerialisationBinaryA = "binary-a"
	SerialisationBinaryB = "binary-b"
	SerialisationText    = "text"
)

var serialisationPreference = []string{SerialisationBinaryA, SerialisationBinaryB, SerialisationText}

// Compression names, in preference order: brotli compresses better than
// gzip for the repetitive HTML/JSON payloads this protocol carries; none
// is preferred below the size-guard floor where compression overhead
// isn't worth paying (the broadcast server applies that floor per message
// through ShouldCompress, not at negotiation time).
const (
	CompressionBrotli = "brotli"
	CompressionGzip   = "gzip"
	CompressionNone   = "none"
)

var compressionPreference = []string{CompressionBrotli, CompressionGzip, CompressionNone}

// ServerCapabilities is the fixed feature/format set this server supports.
func ServerCapabilities() Capabilities {
	return Capabilities{
		Serialisation: append([]string(nil), serialisationPreference...),
		Compression:   append([]string(nil), compressionPreference...),
		Features:      []string{"delta-update", "batch-update", "state-preservation"},
	}
}

// Negotiated is the result of matching a client's announced capabilities
// against the server's, picking the most-preferred mutually supported
// option for each axis.
type Negotiated struct {
	Serialisation string
	Compression   string
	Features      []string
}

// Negotiate picks the server's most-preferred serialisation and
// compression that the client also announced. A client that announces
// nothing on an axis gets the universal fallback for that axis (text,
// none) rather than a negotiation failure -- spec §6 requires the
// engine to degrade gracefully rather than refuse a connection.
func Negotiate(client Capabilities) Negotiated {
	return Negotiated{
		Serialisation: pickPreferred(serialisationPreference, client.Serialisation, SerialisationText),
		Compression:   pickPreferred(compressionPreference, client.Compression, CompressionNone),
		Features:      intersect(ServerCapabilities().Features, client.Features),
	}
}

func pickPreferred(serverOrder, clientOffered []string, fallback string) string {
	offered := make(map[string]bool, len(clientOffered))
	for _, c := range clientOffered {
		offered[c] = true
	}
	for _, s := range serverOrder {
		if offered[s] {
			return s
		}
	}
	return fallback
}

func intersect(a, b []string) []string {
	bSet := make(map[string]bool, len(b))
	for _, v := range b {
		bSet[v] = true
	}
	var out []string
	for _, v := range a {
		if bSet[v] {
			out = append(out, v)
		}
	}
	return out
}
