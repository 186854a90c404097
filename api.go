// Package zenwire decodes and encodes Protocol Buffers messages from .proto
// schemas loaded at runtime, without generated code.
package zenwire

import (
	"context"
	"io"
	"runtime"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/anirudhraja/zenwire/codec"
	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/registry"
	"github.com/anirudhraja/zenwire/schema"
	"github.com/anirudhraja/zenwire/view"
	"github.com/anirudhraja/zenwire/wire"
)

// ===== SCHEMA-AWARE API =====

// Option configures a Zenwire instance.
type Option func(*Zenwire)

// WithProtoPaths sets the directories imports are resolved against.
func WithProtoPaths(dirs ...string) Option {
	return func(z *Zenwire) {
		z.protoPaths = append(z.protoPaths, dirs...)
	}
}

// WithConfig sets decode limits.
func WithConfig(cfg wire.Config) Option {
	return func(z *Zenwire) {
		z.cfg = cfg
	}
}

// WithLogger sets the logger for schema loading and plan building.
func WithLogger(logger log.Logger) Option {
	return func(z *Zenwire) {
		if logger != nil {
			z.logger = logger
		}
	}
}

// WithRegisterer registers the decode and encode counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(z *Zenwire) {
		z.reg = reg
	}
}

// Zenwire provides schema-aware protobuf operations without generated code.
// It is safe for concurrent use once schemas are loaded.
type Zenwire struct {
	protoPaths []string
	cfg        wire.Config
	logger     log.Logger
	reg        prometheus.Registerer
	metrics    *metrics

	registry *registry.Registry

	mtx         sync.RWMutex
	sourcePlans *plan.Set
	descriptors []*descriptorpb.FileDescriptorProto
	binaryPlans *plan.Set
	dispatchers map[string]*codec.Dispatcher
}

// New creates a new Zenwire instance
func New(opts ...Option) *Zenwire {
	z := &Zenwire{
		cfg:         wire.DefaultConfig(),
		logger:      log.NewNopLogger(),
		dispatchers: make(map[string]*codec.Dispatcher),
	}
	for _, opt := range opts {
		opt(z)
	}
	z.cfg = z.cfg.WithDefaults()
	z.metrics = newMetrics(z.reg)
	z.registry = registry.NewRegistry(z.protoPaths...)
	z.registry.SetLogger(z.logger)
	return z
}

// LoadSchemaFromFile loads a .proto file, relative to the proto paths, and
// everything it imports.
func (z *Zenwire) LoadSchemaFromFile(path string) error {
	if err := z.registry.LoadSchemaFromFile(path); err != nil {
		return err
	}
	return z.rebuild()
}

// LoadSchema loads a .proto file or every .proto file under a directory.
func (z *Zenwire) LoadSchema(path string) error {
	if err := z.registry.LoadSchema(path); err != nil {
		return err
	}
	return z.rebuild()
}

// LoadRepo loads a protobuf repository (collection of .proto files)
func (z *Zenwire) LoadRepo(repo *schema.ProtoRepo) error {
	if err := z.registry.LoadRepo(repo); err != nil {
		return err
	}
	return z.rebuild()
}

// LoadDescriptors loads compiled file descriptors.
func (z *Zenwire) LoadDescriptors(fds ...*descriptorpb.FileDescriptorProto) error {
	z.mtx.Lock()
	defer z.mtx.Unlock()

	all := append(append([]*descriptorpb.FileDescriptorProto{}, z.descriptors...), dedupe(z.descriptors, fds)...)
	set, err := plan.FromDescriptor(all, plan.WithLogger(z.logger))
	if err != nil {
		return err
	}
	z.descriptors = all
	z.binaryPlans = set
	z.dispatchers = make(map[string]*codec.Dispatcher)
	return nil
}

// LoadCompiled compiles .proto files with the full protobuf front end,
// resolving imports against the proto paths, and loads the result.
func (z *Zenwire) LoadCompiled(ctx context.Context, files ...string) error {
	fds, err := registry.CompileDescriptors(ctx, z.protoPaths, files...)
	if err != nil {
		return err
	}
	return z.LoadDescriptors(fds...)
}

func dedupe(have, add []*descriptorpb.FileDescriptorProto) []*descriptorpb.FileDescriptorProto {
	seen := make(map[string]bool, len(have))
	for _, fd := range have {
		seen[fd.GetName()] = true
	}
	var out []*descriptorpb.FileDescriptorProto
	for _, fd := range add {
		if !seen[fd.GetName()] {
			seen[fd.GetName()] = true
			out = append(out, fd)
		}
	}
	return out
}

func (z *Zenwire) rebuild() error {
	set, err := plan.Build(z.registry, plan.WithLogger(z.logger))
	if err != nil {
		return err
	}
	z.mtx.Lock()
	z.sourcePlans = set
	z.dispatchers = make(map[string]*codec.Dispatcher)
	z.mtx.Unlock()
	level.Debug(z.logger).Log("msg", "rebuilt codec plans", "messages", len(set.MessageNames()))
	return nil
}

// Plan returns the codec plan of a message type.
func (z *Zenwire) Plan(messageType string) (*plan.Message, error) {
	z.mtx.RLock()
	defer z.mtx.RUnlock()
	return z.plan(messageType)
}

func (z *Zenwire) plan(messageType string) (*plan.Message, error) {
	var firstErr error
	for _, set := range []*plan.Set{z.sourcePlans, z.binaryPlans} {
		if set == nil {
			continue
		}
		msg, err := set.Message(messageType)
		if err == nil {
			return msg, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = errors.Errorf("message type not found: %s (no schema loaded)", messageType)
	}
	return nil, firstErr
}

// Dispatcher returns the compiled dispatcher of a message type. Dispatchers
// are compiled on first use and cached until the next schema load.
func (z *Zenwire) Dispatcher(messageType string) (*codec.Dispatcher, error) {
	z.mtx.RLock()
	d, ok := z.dispatchers[messageType]
	z.mtx.RUnlock()
	if ok {
		return d, nil
	}

	z.mtx.Lock()
	defer z.mtx.Unlock()
	if d, ok := z.dispatchers[messageType]; ok {
		return d, nil
	}
	msg, err := z.plan(messageType)
	if err != nil {
		return nil, err
	}
	d, err = codec.Compile(msg, codec.WithConfig(z.cfg), codec.WithLogger(z.logger))
	if err != nil {
		return nil, err
	}
	z.dispatchers[messageType] = d
	return d, nil
}

// Parse decodes protobuf bytes using the schema of messageType.
func (z *Zenwire) Parse(data []byte, messageType string) (codec.Record, error) {
	return z.decode(view.NewSlice(data), messageType)
}

// ParseReader decodes one message read from r until EOF.
func (z *Zenwire) ParseReader(r io.Reader, messageType string) (codec.Record, error) {
	return z.decode(view.NewStreamSize(r, z.cfg.StreamBufferSize), messageType)
}

func (z *Zenwire) decode(v view.View, messageType string) (codec.Record, error) {
	d, err := z.Dispatcher(messageType)
	if err != nil {
		return nil, err
	}
	rec, err := d.Decode(v)
	z.metrics.observeDecode(v.Offset(), err)
	return rec, err
}

// ParseBatch decodes independent payloads concurrently. Results keep the
// order of payloads; the first failure cancels the batch.
func (z *Zenwire) ParseBatch(ctx context.Context, payloads [][]byte, messageType string) ([]codec.Record, error) {
	d, err := z.Dispatcher(messageType)
	if err != nil {
		return nil, err
	}
	out := make([]codec.Record, len(payloads))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, payload := range payloads {
		i, payload := i, payload
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			v := view.NewSlice(payload)
			rec, err := d.Decode(v)
			z.metrics.observeDecode(v.Offset(), err)
			if err != nil {
				return errors.Wrapf(err, "payload %d", i)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal encodes a record to protobuf bytes using the schema of messageType.
func (z *Zenwire) Marshal(data codec.Record, messageType string) ([]byte, error) {
	d, err := z.Dispatcher(messageType)
	if err != nil {
		return nil, err
	}
	out, err := d.Marshal(data)
	z.metrics.observeEncode(err)
	return out, err
}

// AppendMarshal appends the encoding of data to dst.
func (z *Zenwire) AppendMarshal(dst []byte, data codec.Record, messageType string) ([]byte, error) {
	d, err := z.Dispatcher(messageType)
	if err != nil {
		return dst, err
	}
	out, err := d.Append(dst, data)
	z.metrics.observeEncode(err)
	return out, err
}

// EncodeTo streams the encoding of data to w.
func (z *Zenwire) EncodeTo(w io.Writer, data codec.Record, messageType string) (int, error) {
	d, err := z.Dispatcher(messageType)
	if err != nil {
		return 0, err
	}
	n, err := d.EncodeTo(w, data)
	z.metrics.observeEncode(err)
	return n, err
}

// ===== REGISTRY ACCESS =====

// Registry returns the registry .proto schemas are loaded into.
func (z *Zenwire) Registry() *registry.Registry { return z.registry }

// ListEnums lists the enum types of loaded .proto schemas.
func (z *Zenwire) ListEnums() []string { return z.registry.ListEnums() }

// ListServices lists the services of loaded .proto schemas.
func (z *Zenwire) ListServices() []string { return z.registry.ListServices() }

// ListMessages lists the message types of every loaded schema, including
// compiled descriptors.
func (z *Zenwire) ListMessages() []string {
	names := z.registry.ListMessages()
	z.mtx.RLock()
	if z.binaryPlans != nil {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			seen[n] = true
		}
		for _, n := range z.binaryPlans.MessageNames() {
			if !seen[n] {
				names = append(names, n)
			}
		}
		sort.Strings(names)
	}
	z.mtx.RUnlock()
	return names
}
