package graphstore

import (
	"fmt"

	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/vmihailenco/msgpack/v5"
)

// Record framing: a short magic so a corrupted or foreign value is rejected
// instead of being half-decoded, followed by a format version byte.
const (
	recordMagic   = "\xffPLG"
	recordVersion = byte(1)
)

// encodeAttributes serializes an attribute snapshot for storage.
func encodeAttributes(attrs *element.AttributeMap) ([]byte, error) {
	if attrs == nil {
		return nil, ErrInvalidData
	}
	body, err := msgpack.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes %s: %w", attrs.Ref, err)
	}
	out := make([]byte, 0, len(recordMagic)+1+len(body))
	out = append(out, recordMagic...)
	out = append(out, recordVersion)
	out = append(out, body...)
	return out, nil
}

// decodeAttributes deserializes a stored attribute snapshot.
func decodeAttributes(data []byte) (*element.AttributeMap, error) {
	if len(data) < len(recordMagic)+1 || string(data[:len(recordMagic)]) != recordMagic {
		return nil, fmt.Errorf("%w: bad record framing", ErrInvalidData)
	}
	if v := data[len(recordMagic)]; v != recordVersion {
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrInvalidData, v)
	}
	var attrs element.AttributeMap
	if err := msgpack.Unmarshal(data[len(recordMagic)+1:], &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return &attrs, nil
}
