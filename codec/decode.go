package codec

import (
	"math"

	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/view"
	"github.com/anirudhraja/zenwire/wire"
)

type decodeFn func(dec *decoder, fc *fieldCodec, v view.View) (interface{}, error)

type skipFn func(v view.View, limit int) error

// state is the position of the decode loop within a message.
type state int

const (
	readingTag state = iota
	decodingField
	skippingUnknown
	done
)

// decoder carries per-call state; a Dispatcher never mutates its tables.
type decoder struct {
	cfg   wire.Config
	depth int
}

// Decode reads one message from v. The message ends where v ends. On failure
// the returned error is a *wire.FieldError and no record is returned.
func (d *Dispatcher) Decode(v view.View) (Record, error) {
	dec := decoder{cfg: d.cfg}
	rec := make(Record)
	if err := dec.message(d.root, v, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeBytes decodes the message held in b. Decoded bytes fields are copies.
func (d *Dispatcher) DecodeBytes(b []byte) (Record, error) {
	return d.Decode(view.NewSlice(b))
}

// DecodeInto decodes a message from v and merges it into dst the way a
// second occurrence of a message merges into the first: scalars are
// replaced, repeated and map fields are appended to and embedded messages are
// merged field by field. dst is left untouched when decoding fails.
func (d *Dispatcher) DecodeInto(v view.View, dst Record) error {
	rec, err := d.Decode(v)
	if err != nil {
		return err
	}
	merge(d.root, dst, rec)
	return nil
}

func (dec *decoder) message(mc *messageCodec, v view.View, rec Record) error {
	var (
		st    = readingTag
		fc    *fieldCodec
		wt    wire.WireType
		start int64
	)
	for {
		switch st {
		case readingTag:
			start = v.Offset()
			b := v.ReadBytes(1)
			if len(b) == 0 {
				if err := v.Err(); err != nil {
					return wire.NewDecodeError(err, start)
				}
				st = done
				continue
			}
			if fc = mc.table[b[0]]; fc != nil {
				v.Advance(1)
				st = decodingField
				continue
			}

			num, t, err := view.ReadTag(v)
			if err != nil {
				return wire.NewDecodeError(err, start)
			}
			if num < wire.MinFieldNumber {
				return wire.NewDecodeError(wire.ErrInvalidFieldNumber, start)
			}
			wt = t
			fc = mc.byNumber[num]
			switch {
			case fc == nil:
				st = skippingUnknown
			case fc.field.WireType == wt:
				st = decodingField
			case dec.cfg.StrictWireType && wt.Supported():
				return wire.WrapDecodingField(wire.NewDecodeError(wire.ErrWireTypeMismatch, start), fc.field.Name)
			default:
				st = skippingUnknown
			}

		case decodingField:
			value, err := fc.decode(dec, fc, v)
			if err != nil {
				return wire.WrapDecodingField(wire.NewDecodeError(err, v.Offset()), fc.field.Name)
			}
			store(rec, fc, value)
			st = readingTag

		case skippingUnknown:
			if err := skipTable[wt&7](v, dec.cfg.MaxLengthDelimited); err != nil {
				return wire.NewDecodeError(err, v.Offset())
			}
			st = readingTag

		case done:
			return nil
		}
	}
}

// store places a decoded value into rec according to the field's cardinality.
func store(rec Record, fc *fieldCodec, value interface{}) {
	f := fc.field
	switch {
	case f.Repeated && fc.sub != nil && fc.sub.msg.MapEntry:
		m, _ := rec[f.Name].(map[interface{}]interface{})
		if m == nil {
			m = make(map[interface{}]interface{})
			rec[f.Name] = m
		}
		entry := value.(Record)
		key, ok := entry["key"]
		if !ok {
			key = zeroValue(fc.sub.fields[0].field)
		}
		val, ok := entry["value"]
		if !ok && len(fc.sub.fields) > 1 {
			val = zeroValue(fc.sub.fields[1].field)
		}
		m[key] = val
	case f.Repeated:
		list, _ := rec[f.Name].([]interface{})
		rec[f.Name] = append(list, value)
	case fc.sub != nil && !fc.sub.msg.Wrapper:
		if prev, ok := rec[f.Name].(Record); ok {
			merge(fc.sub, prev, value.(Record))
			return
		}
		rec[f.Name] = value
	default:
		rec[f.Name] = value
	}
}

// merge folds src into dst, both records of mc's message type.
func merge(mc *messageCodec, dst, src Record) {
	for name, value := range src {
		f := mc.msg.FieldByName(name)
		if f == nil {
			dst[name] = value
			continue
		}
		fc := mc.byNumber[f.Number]
		switch v := value.(type) {
		case []interface{}:
			list, _ := dst[name].([]interface{})
			dst[name] = append(list, v...)
		case map[interface{}]interface{}:
			m, ok := dst[name].(map[interface{}]interface{})
			if !ok {
				dst[name] = v
				continue
			}
			for k, x := range v {
				m[k] = x
			}
		case Record:
			if prev, ok := dst[name].(Record); ok && fc.sub != nil {
				merge(fc.sub, prev, v)
				continue
			}
			dst[name] = v
		default:
			dst[name] = v
		}
	}
}

// zeroValue is the value an absent scalar or message decodes as.
func zeroValue(f *plan.Field) interface{} {
	switch f.Kind {
	case plan.KindBool:
		return false
	case plan.KindInt32, plan.KindSint32, plan.KindSfixed32, plan.KindEnum:
		return int32(0)
	case plan.KindUint32, plan.KindFixed32:
		return uint32(0)
	case plan.KindInt64, plan.KindSint64, plan.KindSfixed64:
		return int64(0)
	case plan.KindUint64, plan.KindFixed64:
		return uint64(0)
	case plan.KindFloat:
		return float32(0)
	case plan.KindDouble:
		return float64(0)
	case plan.KindString:
		return ""
	case plan.KindBytes:
		return []byte{}
	case plan.KindMessage:
		if f.Message != nil && f.Message.Wrapper && len(f.Message.Fields) == 1 {
			return zeroValue(f.Message.Fields[0])
		}
		return Record{}
	}
	return nil
}

var decoders = map[plan.Kind]decodeFn{
	plan.KindBool:     decodeBool,
	plan.KindEnum:     decodeInt32,
	plan.KindInt32:    decodeInt32,
	plan.KindUint32:   decodeUint32,
	plan.KindSint32:   decodeSint32,
	plan.KindInt64:    decodeInt64,
	plan.KindUint64:   decodeUint64,
	plan.KindSint64:   decodeSint64,
	plan.KindFixed32:  decodeFixed32,
	plan.KindSfixed32: decodeSfixed32,
	plan.KindFloat:    decodeFloat,
	plan.KindFixed64:  decodeFixed64,
	plan.KindSfixed64: decodeSfixed64,
	plan.KindDouble:   decodeDouble,
	plan.KindString:   decodeString,
	plan.KindBytes:    decodeBytes,
	plan.KindMessage:  decodeMessage,
}

func decodeBool(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadVarint64(v)
	return x != 0, err
}

// decodeInt32 reads the full 10-byte form: negative int32 and enum values are
// sign extended by encoders.
func decodeInt32(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadVarint64(v)
	return int32(x), err
}

func decodeUint32(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	return view.ReadVarint32(v)
}

func decodeSint32(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadVarint32(v)
	return wire.DecodeZigZag32(x), err
}

func decodeInt64(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadVarint64(v)
	return int64(x), err
}

func decodeUint64(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	return view.ReadVarint64(v)
}

func decodeSint64(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadVarint64(v)
	return wire.DecodeZigZag64(x), err
}

func decodeFixed32(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	return view.ReadFixed32(v)
}

func decodeSfixed32(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadFixed32(v)
	return int32(x), err
}

func decodeFloat(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadFixed32(v)
	return math.Float32frombits(x), err
}

func decodeFixed64(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	return view.ReadFixed64(v)
}

func decodeSfixed64(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadFixed64(v)
	return int64(x), err
}

func decodeDouble(_ *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	x, err := view.ReadFixed64(v)
	return math.Float64frombits(x), err
}

func decodeString(dec *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	b, err := view.ReadLengthDelimited(v, dec.cfg.MaxLengthDelimited, false)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodeBytes returns memory the record may keep: a copy, or for owned views
// a sub-slice of the view's buffer.
func decodeBytes(dec *decoder, _ *fieldCodec, v view.View) (interface{}, error) {
	b, err := view.ReadLengthDelimited(v, dec.cfg.MaxLengthDelimited, true)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func decodeMessage(dec *decoder, fc *fieldCodec, v view.View) (interface{}, error) {
	if dec.depth >= dec.cfg.MaxDepth {
		return nil, wire.ErrMaxDepth
	}
	payload, err := view.ReadLengthDelimited(v, dec.cfg.MaxLengthDelimited, false)
	if err != nil {
		return nil, err
	}
	start := v.Offset() - int64(len(payload))

	rec := make(Record)
	dec.depth++
	err = dec.message(fc.sub, view.Window(v, start, payload), rec)
	dec.depth--
	if err != nil {
		return nil, err
	}
	if fc.sub.msg.Wrapper {
		if x, ok := rec["value"]; ok {
			return x, nil
		}
		return zeroValue(fc.field), nil
	}
	return rec, nil
}

var skipTable = [8]skipFn{
	wire.WireVarint:     skipVarint,
	wire.WireFixed64:    skipFixed64,
	wire.WireBytes:      skipBytes,
	wire.WireStartGroup: skipInvalid,
	wire.WireEndGroup:   skipInvalid,
	wire.WireFixed32:    skipFixed32,
	6:                   skipInvalid,
	7:                   skipInvalid,
}

func skipVarint(v view.View, _ int) error {
	_, err := view.ReadVarint64(v)
	return err
}

func skipFixed64(v view.View, _ int) error {
	_, err := view.ReadFixed64(v)
	return err
}

func skipBytes(v view.View, limit int) error {
	_, err := view.ReadLengthDelimited(v, limit, false)
	return err
}

func skipFixed32(v view.View, _ int) error {
	_, err := view.ReadFixed32(v)
	return err
}

func skipInvalid(view.View, int) error {
	return wire.ErrInvalidWireType
}
