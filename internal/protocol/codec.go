package protocol

import (
	"encoding/json"
	"fmt"
)

// EncodeMessage serialises m using the named serialisation, as returned
// by Negotiate. It does not compress; call Compress on the result if the
// negotiated compression is not CompressionNone.
func EncodeMessage(m *Message, serialisation string) ([]byte, error) {
	switch serialisation {
	case SerialisationText:
		return json.Marshal(m)
	case SerialisationBinaryA:
		return EncodeBinaryA(m)
	case SerialisationBinaryB:
		return EncodeBinaryB(m)
	default:
		return nil, fmt.Errorf("protocol: unknown serialisation %q", serialisation)
	}
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(data []byte, serialisation string) (*Message, error) {
	switch serialisation {
	case SerialisationText:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case SerialisationBinaryA:
		return DecodeBinaryA(data)
	case SerialisationBinaryB:
		return DecodeBinaryB(data)
	default:
		return nil, fmt.Errorf("protocol: unknown serialisation %q", serialisation)
	}
}
