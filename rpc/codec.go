package rpc

import (
	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

// CodecName is the content subtype the raw codec registers under.
const CodecName = "raw"

// Codec moves frames to and from the wire without interpretation.
// Protobuf messages are marshaled normally; everything else must be a
// *[]byte and passes through untouched.
type Codec struct{}

// Marshal implements grpc encoding.Codec.
func (Codec) Marshal(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case proto.Message:
		return proto.Marshal(m)
	case *[]byte:
		return *m, nil
	}
	return nil, errors.Errorf("raw codec cannot marshal %T", v)
}

// Unmarshal implements grpc encoding.Codec.
func (Codec) Unmarshal(data []byte, v interface{}) error {
	switch m := v.(type) {
	case proto.Message:
		return proto.Unmarshal(data, m)
	case *[]byte:
		*m = data
		return nil
	}
	return errors.Errorf("raw codec cannot unmarshal into %T", v)
}

// Name implements grpc encoding.Codec.
func (Codec) Name() string {
	return CodecName
}

func (Codec) String() string {
	return CodecName
}
