package codec

import (
	"io"
	"math"

	"github.com/richardartoul/molecule"

	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/wire"
)

// EncodeTo streams the encoding of rec to w and returns the number of bytes
// written. The output is byte-identical to Marshal; embedded messages are
// staged one level at a time instead of sizing the whole record up front.
func (d *Dispatcher) EncodeTo(w io.Writer, rec Record) (int, error) {
	cw := &countingWriter{w: w}
	ps := molecule.NewProtoStream(cw)
	err := streamMessage(ps, d.root, rec)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

func streamMessage(ps *molecule.ProtoStream, mc *messageCodec, rec Record) error {
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
			if err := streamValue(ps, fc, v); err != nil {
				return wire.WrapEncodingField(err, fc.field.Name)
			}
		}
	}
	return nil
}

func streamValue(ps *molecule.ProtoStream, fc *fieldCodec, v interface{}) error {
	f := fc.field
	num := int(f.Number)

	if f.Kind == plan.KindMessage {
		rec, err := messageRecord(fc, v)
		if err != nil {
			return err
		}
		return ps.Embedded(num, func(inner *molecule.ProtoStream) error {
			return streamMessage(inner, fc.sub, rec)
		})
	}
	switch f.Kind {
	case plan.KindString:
		s, err := wire.CoerceString(v)
		if err != nil {
			return err
		}
		if s == "" {
			return writeRaw(ps, fc, v)
		}
		return ps.String(num, s)
	case plan.KindBytes:
		b, err := wire.CoerceBytes(v)
		if err != nil {
			return err
		}
		if len(b) == 0 {
			return writeRaw(ps, fc, v)
		}
		return ps.Bytes(num, b)
	}

	bits, err := scalarBits(f, v)
	if err != nil {
		return err
	}
	// ProtoStream drops zero scalars, negative zero included; present zero
	// values are written as is.
	if bits == 0 || isFloatZero(f.Kind, bits) {
		return writeRaw(ps, fc, v)
	}
	switch f.Kind {
	case plan.KindBool:
		return ps.Bool(num, true)
	case plan.KindInt32, plan.KindEnum:
		return ps.Int32(num, int32(bits))
	case plan.KindUint32:
		return ps.Uint32(num, uint32(bits))
	case plan.KindSint32:
		return ps.Sint32(num, wire.DecodeZigZag32(uint32(bits)))
	case plan.KindInt64:
		return ps.Int64(num, int64(bits))
	case plan.KindUint64:
		return ps.Uint64(num, bits)
	case plan.KindSint64:
		return ps.Sint64(num, wire.DecodeZigZag64(bits))
	case plan.KindFixed32:
		return ps.Fixed32(num, uint32(bits))
	case plan.KindSfixed32:
		return ps.Sfixed32(num, int32(bits))
	case plan.KindFloat:
		return ps.Float(num, math.Float32frombits(uint32(bits)))
	case plan.KindFixed64:
		return ps.Fixed64(num, bits)
	case plan.KindSfixed64:
		return ps.Sfixed64(num, int64(bits))
	case plan.KindDouble:
		return ps.Double(num, math.Float64frombits(bits))
	}
	return writeRaw(ps, fc, v)
}

func isFloatZero(k plan.Kind, bits uint64) bool {
	switch k {
	case plan.KindFloat:
		return math.Float32frombits(uint32(bits)) == 0
	case plan.KindDouble:
		return math.Float64frombits(bits) == 0
	}
	return false
}

// writeRaw writes one tagged occurrence through the buffer encoder.
func writeRaw(ps *molecule.ProtoStream, fc *fieldCodec, v interface{}) error {
	enc := wire.NewEncoderBuffer(append([]byte(nil), fc.tag...))
	if err := encodeValue(enc, fc, v); err != nil {
		return err
	}
	_, err := ps.Write(enc.Bytes())
	return err
}
