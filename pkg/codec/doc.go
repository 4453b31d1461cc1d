// Package codec encodes values as CBOR for stores and relays shared between
// nodes.
//
// Encoding is deterministic and keeps timestamps with nanosecond precision.
// Untyped maps decode as map[string]any.
//
//	data, err := codec.Marshal(msg)
//	if err != nil {
//		return err
//	}
//	var out broadcaster.Message
//	err = codec.Unmarshal(data, &out)
package codec
