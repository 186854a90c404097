package codec

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/anirudhraja/zenwire/mempool"
	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/wire"
)

// Size returns the exact number of bytes Append would add for rec.
func (d *Dispatcher) Size(rec Record) (int, error) {
	return sizeMessage(d.root, rec)
}

// Append encodes rec and appends it to dst. Fields are written in field
// number order; record keys without a matching field are ignored.
func (d *Dispatcher) Append(dst []byte, rec Record) ([]byte, error) {
	enc := wire.NewEncoderBuffer(dst)
	if err := encodeMessage(enc, d.root, rec); err != nil {
		return dst, err
	}
	return enc.Bytes(), nil
}

// Marshal encodes rec into a new buffer of exactly the encoded size.
func (d *Dispatcher) Marshal(rec Record) ([]byte, error) {
	n, err := d.Size(rec)
	if err != nil {
		return nil, err
	}
	return d.Append(make([]byte, 0, n), rec)
}

// MarshalWith encodes rec into a buffer taken from alloc. The caller returns
// the buffer to alloc once done with it.
func (d *Dispatcher) MarshalWith(rec Record, alloc mempool.Allocator) ([]byte, error) {
	n, err := d.Size(rec)
	if err != nil {
		return nil, err
	}
	buf, err := alloc.Get(n)
	if err != nil {
		return nil, err
	}
	out, err := d.Append(buf[:0], rec)
	if err != nil {
		alloc.Put(buf)
		return nil, err
	}
	return out, nil
}

// lookup finds the value of f in rec by field name or JSON name.
func lookup(rec Record, f *plan.Field) (interface{}, bool) {
	if v, ok := rec[f.Name]; ok && v != nil {
		return v, true
	}
	if f.JSONName != "" && f.JSONName != f.Name {
		if v, ok := rec[f.JSONName]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func sizeMessage(mc *messageCodec, rec Record) (int, error) {
	n := 0
	for _, fc := range mc.fields {
		value, ok := lookup(rec, fc.field)
		if !ok {
			continue
		}
		values, err := occurrences(fc, value)
		if err != nil {
			return 0, wire.WrapEncodingField(err, fc.field.Name)
		}
		for _, v := range values {
			m, err := sizeValue(fc, v)
			if err != nil {
				return 0, wire.WrapEncodingField(err, fc.field.Name)
			}
			n += len(fc.tag) + m
		}
	}
	return n, nil
}

func encodeMessage(enc *wire.Encoder, mc *messageCodec, rec Record) error {
	for _, fc := range mc.fields {
		value, ok := lookup(rec, fc.field)
		if !ok {
			continue
		}
		values, err := occurrences(fc, value)
		if err != nil {
			return wire.WrapEncodingField(err, fc.field.Name)
		}
		for _, v := range values {
			enc.EncodeTag(fc.field.Number, fc.field.WireType)
			if err := encodeValue(enc, fc, v); err != nil {
				return wire.WrapEncodingField(err, fc.field.Name)
			}
		}
	}
	return nil
}

// sizeValue returns the encoded size of one occurrence without its tag.
func sizeValue(fc *fieldCodec, v interface{}) (int, error) {
	f := fc.field
	switch f.Strategy {
	case plan.Fixed32:
		_, err := scalarBits(f, v)
		return wire.Fixed32Size(), err
	case plan.Fixed64:
		_, err := scalarBits(f, v)
		return wire.Fixed64Size(), err
	case plan.Bytes:
		switch f.Kind {
		case plan.KindString:
			s, err := wire.CoerceString(v)
			return wire.StringSize(s), err
		case plan.KindBytes:
			b, err := wire.CoerceBytes(v)
			return wire.BytesSize(b), err
		}
		rec, err := messageRecord(fc, v)
		if err != nil {
			return 0, err
		}
		n, err := sizeMessage(fc.sub, rec)
		return wire.LengthDelimitedSize(n), err
	}
	bits, err := scalarBits(f, v)
	return wire.VarintSize(bits), err
}

func encodeValue(enc *wire.Encoder, fc *fieldCodec, v interface{}) error {
	f := fc.field
	switch f.Strategy {
	case plan.Bytes:
		switch f.Kind {
		case plan.KindString:
			s, err := wire.CoerceString(v)
			if err != nil {
				return err
			}
			enc.EncodeString(s)
			return nil
		case plan.KindBytes:
			b, err := wire.CoerceBytes(v)
			if err != nil {
				return err
			}
			enc.EncodeBytes(b)
			return nil
		}
		rec, err := messageRecord(fc, v)
		if err != nil {
			return err
		}
		n, err := sizeMessage(fc.sub, rec)
		if err != nil {
			return err
		}
		enc.EncodeLength(n)
		return encodeMessage(enc, fc.sub, rec)
	}
	return encodeScalar(enc, f, v)
}

// encodeScalar writes one varint or fixed-width value with the typed encoder
// of its kind.
func encodeScalar(enc *wire.Encoder, f *plan.Field, v interface{}) error {
	ve, fe := wire.NewVarintEncoder(enc), wire.NewFixedEncoder(enc)
	switch f.Kind {
	case plan.KindBool:
		b, err := wire.CoerceBool(v)
		if err != nil {
			return err
		}
		ve.EncodeBool(b)
	case plan.KindEnum:
		n, err := enumNumber(f, v)
		if err != nil {
			return err
		}
		ve.EncodeInt32(n)
	case plan.KindInt32:
		n, err := coerceInt32(v)
		if err != nil {
			return err
		}
		ve.EncodeInt32(n)
	case plan.KindSint32:
		n, err := coerceInt32(v)
		if err != nil {
			return err
		}
		ve.EncodeSint32(n)
	case plan.KindUint32:
		n, err := coerceUint32(v)
		if err != nil {
			return err
		}
		ve.EncodeUint32(n)
	case plan.KindInt64:
		n, err := wire.CoerceInt64(v)
		if err != nil {
			return err
		}
		ve.EncodeInt64(n)
	case plan.KindSint64:
		n, err := wire.CoerceInt64(v)
		if err != nil {
			return err
		}
		ve.EncodeSint64(n)
	case plan.KindUint64:
		n, err := wire.CoerceUint64(v)
		if err != nil {
			return err
		}
		ve.EncodeUint64(n)
	case plan.KindFixed32:
		n, err := coerceUint32(v)
		if err != nil {
			return err
		}
		fe.EncodeFixed32(n)
	case plan.KindSfixed32:
		n, err := coerceInt32(v)
		if err != nil {
			return err
		}
		fe.EncodeSfixed32(n)
	case plan.KindFixed64:
		n, err := wire.CoerceUint64(v)
		if err != nil {
			return err
		}
		fe.EncodeFixed64(n)
	case plan.KindSfixed64:
		n, err := wire.CoerceInt64(v)
		if err != nil {
			return err
		}
		fe.EncodeSfixed64(n)
	case plan.KindFloat:
		x, err := wire.CoerceFloat64(v)
		if err != nil {
			return err
		}
		fe.EncodeFloat32(float32(x))
	case plan.KindDouble:
		x, err := wire.CoerceFloat64(v)
		if err != nil {
			return err
		}
		fe.EncodeFloat64(x)
	default:
		return fmt.Errorf("kind %s has no scalar encoding", f.Kind)
	}
	return nil
}

// scalarBits converts a non length-delimited value to the integer its
// strategy writes: the varint payload, or the raw fixed-width bits.
func scalarBits(f *plan.Field, v interface{}) (uint64, error) {
	switch f.Kind {
	case plan.KindBool:
		b, err := wire.CoerceBool(v)
		if b {
			return 1, err
		}
		return 0, err
	case plan.KindEnum:
		n, err := enumNumber(f, v)
		return uint64(int64(n)), err
	case plan.KindInt32:
		n, err := coerceInt32(v)
		return uint64(int64(n)), err
	case plan.KindSint32:
		n, err := coerceInt32(v)
		return uint64(wire.EncodeZigZag32(n)), err
	case plan.KindSfixed32:
		n, err := coerceInt32(v)
		return uint64(uint32(n)), err
	case plan.KindUint32, plan.KindFixed32:
		n, err := coerceUint32(v)
		return uint64(n), err
	case plan.KindInt64, plan.KindSfixed64:
		n, err := wire.CoerceInt64(v)
		return uint64(n), err
	case plan.KindSint64:
		n, err := wire.CoerceInt64(v)
		return wire.EncodeZigZag64(n), err
	case plan.KindUint64, plan.KindFixed64:
		return wire.CoerceUint64(v)
	case plan.KindFloat:
		x, err := wire.CoerceFloat64(v)
		return uint64(math.Float32bits(float32(x))), err
	case plan.KindDouble:
		x, err := wire.CoerceFloat64(v)
		return math.Float64bits(x), err
	}
	return 0, fmt.Errorf("kind %s has no scalar encoding", f.Kind)
}

func coerceInt32(v interface{}) (int32, error) {
	n, err := wire.CoerceInt64(v)
	if err != nil {
		return 0, err
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("value %d overflows int32", n)
	}
	return int32(n), nil
}

func coerceUint32(v interface{}) (uint32, error) {
	n, err := wire.CoerceUint64(v)
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("value %d overflows uint32", n)
	}
	return uint32(n), nil
}

// enumNumber accepts an enum value as a number or, when the enum type is
// known, as the name of one of its constants.
func enumNumber(f *plan.Field, v interface{}) (int32, error) {
	if name, ok := v.(string); ok && f.Enum != nil {
		if n, ok := f.Enum.Number(name); ok {
			return n, nil
		}
	}
	n, err := coerceInt32(v)
	if err != nil {
		return 0, fmt.Errorf("invalid enum value %v for %s", v, f.TypeName)
	}
	return n, nil
}

// messageRecord returns the record an embedded message value is written
// from. Wrapper fields also accept their bare scalar.
func messageRecord(fc *fieldCodec, v interface{}) (Record, error) {
	switch t := v.(type) {
	case Record:
		return t, nil
	case map[interface{}]interface{}:
		rec := make(Record, len(t))
		for k, x := range t {
			rec[fmt.Sprint(k)] = x
		}
		return rec, nil
	}
	if fc.sub.msg.Wrapper {
		return Record{"value": v}, nil
	}
	return nil, fmt.Errorf("expected message record for %s, got %T", fc.field.TypeName, v)
}

// occurrences expands a field value into the values written with one tag
// each: the elements of a repeated field, the entries of a map field, or the
// value itself.
func occurrences(fc *fieldCodec, value interface{}) ([]interface{}, error) {
	f := fc.field
	if !f.Repeated {
		return []interface{}{value}, nil
	}
	if fc.sub != nil && fc.sub.msg.MapEntry {
		if entries, ok := mapEntries(value); ok {
			return entries, nil
		}
	}
	if list, ok := value.([]interface{}); ok {
		return list, nil
	}
	if _, ok := value.([]byte); ok && f.Kind == plan.KindBytes {
		return nil, fmt.Errorf("expected list of bytes for repeated field, got %T", value)
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected list for repeated field, got %T", value)
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// mapEntries converts a Go map into key/value entry records sorted by key so
// that encoding is deterministic.
func mapEntries(value interface{}) ([]interface{}, bool) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return lessKey(keys[i].Interface(), keys[j].Interface())
	})
	entries := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Record{"key": k.Interface(), "value": rv.MapIndex(k).Interface()})
	}
	return entries, true
}

func lessKey(a, b interface{}) bool {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	case bool:
		if y, ok := b.(bool); ok {
			return !x && y
		}
	default:
		if x, err := wire.CoerceInt64(a); err == nil {
			if y, err := wire.CoerceInt64(b); err == nil {
				return x < y
			}
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
