// Package codec decodes and encodes messages described by a plan.Message.
//
// A Dispatcher is compiled once per root message and is safe for concurrent
// use; every call keeps its state on the stack.
package codec

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/wire"
)

// Record is a decoded message keyed by field name. Embedded messages are
// Records, repeated fields are []interface{} and map fields are
// map[interface{}]interface{}.
type Record = map[string]interface{}

// Option configures Compile.
type Option func(*options)

type options struct {
	cfg    wire.Config
	logger log.Logger
}

// WithConfig sets decode limits. Zero limits take their defaults.
func WithConfig(cfg wire.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger used while compiling.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Dispatcher routes the fields of one message type, and of every message
// reachable from it, to their decoders and encoders.
type Dispatcher struct {
	root *messageCodec
	cfg  wire.Config
}

// messageCodec holds the dispatch tables of one message type.
type messageCodec struct {
	msg *plan.Message

	// table is indexed by a single-byte tag; it is populated for fields 1-15
	// under their expected wire type.
	table    [256]*fieldCodec
	byNumber map[wire.FieldNumber]*fieldCodec
	fields   []*fieldCodec // ordered by number
}

// fieldCodec binds a field plan to its decode routine.
type fieldCodec struct {
	field  *plan.Field
	tag    []byte
	decode decodeFn
	sub    *messageCodec // embedded message type, nil for scalars
}

// Compile builds the dispatcher for msg. Message types are compiled once
// each, so recursive types terminate.
func Compile(msg *plan.Message, opts ...Option) (*Dispatcher, error) {
	o := options{cfg: wire.DefaultConfig(), logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if msg == nil {
		return nil, wire.NewFieldError("nil message plan")
	}
	c := &compiler{compiled: make(map[*plan.Message]*messageCodec), logger: o.logger}
	root, err := c.compile(msg)
	if err != nil {
		return nil, err
	}
	level.Debug(o.logger).Log("msg", "compiled dispatcher", "message", msg.FullName, "types", len(c.compiled))
	return &Dispatcher{root: root, cfg: o.cfg.WithDefaults()}, nil
}

// Message returns the plan the dispatcher was compiled from.
func (d *Dispatcher) Message() *plan.Message {
	return d.root.msg
}

// Config returns the limits the dispatcher decodes with.
func (d *Dispatcher) Config() wire.Config {
	return d.cfg
}

type compiler struct {
	compiled map[*plan.Message]*messageCodec
	logger   log.Logger
}

func (c *compiler) compile(msg *plan.Message) (*messageCodec, error) {
	if mc, ok := c.compiled[msg]; ok {
		return mc, nil
	}
	mc := &messageCodec{msg: msg, byNumber: make(map[wire.FieldNumber]*fieldCodec, len(msg.Fields))}
	c.compiled[msg] = mc

	for _, f := range msg.Fields {
		fn, ok := decoders[f.Kind]
		if !ok {
			return nil, wire.WrapEncodingField(wire.NewFieldError("unsupported kind %s", f.Kind), f.Name)
		}
		fc := &fieldCodec{
			field:  f,
			tag:    wire.AppendTag(nil, f.Number, f.WireType),
			decode: fn,
		}
		if f.Kind == plan.KindMessage {
			if f.Message == nil {
				return nil, wire.WrapEncodingField(wire.NewFieldError("message type %s is not linked", f.TypeName), f.Name)
			}
			sub, err := c.compile(f.Message)
			if err != nil {
				return nil, wire.WrapEncodingField(err, f.Name)
			}
			fc.sub = sub
		}
		if len(fc.tag) == 1 {
			mc.table[fc.tag[0]] = fc
		}
		mc.byNumber[f.Number] = fc
		mc.fields = append(mc.fields, fc)
	}
	return mc, nil
}
