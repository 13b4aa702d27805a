package probe

import (
	"errors"
	"fmt"
	"math"

	"TSNSpectra/internal/model"

	"google.golang.org/protobuf/encoding/protowire"
)

// Batch is a run of observations published by one probe. Seq increases by
// one per batch so that a subscriber can tell when batches went missing.
//
// Wire format (protobuf):
//
//	message Batch {
//	  string probe_id = 1;
//	  uint64 seq = 2;
//	  repeated Observation observations = 3;
//	}
//	message Observation {
//	  uint64 timestamp_ns = 1;
//	  uint32 length = 2;
//	  uint32 class = 3;
//	}
type Batch struct {
	ProbeID      string
	Seq          uint64
	Observations []model.Observation
}

const (
	fieldProbeID      protowire.Number = 1
	fieldSeq          protowire.Number = 2
	fieldObservations protowire.Number = 3

	fieldTimestamp protowire.Number = 1
	fieldLength    protowire.Number = 2
	fieldClass     protowire.Number = 3
)

// MarshalBatch encodes b.
func MarshalBatch(b *Batch) []byte {
	buf := make([]byte, 0, 16+len(b.ProbeID)+len(b.Observations)*16)
	if b.ProbeID != "" {
		buf = protowire.AppendTag(buf, fieldProbeID, protowire.BytesType)
		buf = protowire.AppendString(buf, b.ProbeID)
	}
	if b.Seq != 0 {
		buf = protowire.AppendTag(buf, fieldSeq, protowire.VarintType)
		buf = protowire.AppendVarint(buf, b.Seq)
	}
	var obs []byte
	for _, o := range b.Observations {
		obs = obs[:0]
		obs = protowire.AppendTag(obs, fieldTimestamp, protowire.VarintType)
		obs = protowire.AppendVarint(obs, o.TimestampNs)
		obs = protowire.AppendTag(obs, fieldLength, protowire.VarintType)
		obs = protowire.AppendVarint(obs, uint64(o.Length))
		obs = protowire.AppendTag(obs, fieldClass, protowire.VarintType)
		obs = protowire.AppendVarint(obs, uint64(o.Class))

		buf = protowire.AppendTag(buf, fieldObservations, protowire.BytesType)
		buf = protowire.AppendBytes(buf, obs)
	}
	return buf
}

// UnmarshalBatch decodes data. Unknown fields are skipped.
func UnmarshalBatch(data []byte) (*Batch, error) {
	b := &Batch{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("batch tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldProbeID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("probe_id: %w", protowire.ParseError(n))
			}
			b.ProbeID = v
			data = data[n:]
		case num == fieldSeq && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("seq: %w", protowire.ParseError(n))
			}
			b.Seq = v
			data = data[n:]
		case num == fieldObservations && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("observation: %w", protowire.ParseError(n))
			}
			o, err := unmarshalObservation(v)
			if err != nil {
				return nil, err
			}
			b.Observations = append(b.Observations, o)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return b, nil
}

var errFieldRange = errors.New("value out of range")

func unmarshalObservation(data []byte) (model.Observation, error) {
	var o model.Observation
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return o, fmt.Errorf("observation tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return o, fmt.Errorf("observation field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return o, fmt.Errorf("observation field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldTimestamp:
			o.TimestampNs = v
		case fieldLength:
			if v > math.MaxUint16 {
				return o, fmt.Errorf("length %d: %w", v, errFieldRange)
			}
			o.Length = uint16(v)
		case fieldClass:
			if v > math.MaxUint8 {
				return o, fmt.Errorf("class %d: %w", v, errFieldRange)
			}
			o.Class = uint8(v)
		}
	}
	return o, nil
}
