// Command zenwire inspects, decodes and encodes protobuf messages using .proto
// schemas loaded at runtime.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/anirudhraja/zenwire"
	"github.com/anirudhraja/zenwire/codec"
	"github.com/anirudhraja/zenwire/plan"
	"github.com/anirudhraja/zenwire/wire"
)

// fileConfig is the layout of --config.file.
type fileConfig struct {
	ProtoPaths []string    `yaml:"proto_paths"`
	Wire       wire.Config `yaml:"wire"`
}

type globalFlags struct {
	configFile string
	protoPaths []string
	logLevel   string
}

func main() {
	app := kingpin.New("zenwire", "Decode and encode protobuf messages without generated code.")
	app.HelpFlag.Short('h')

	g := &globalFlags{}
	app.Flag("config.file", "YAML file with decode limits and proto paths.").StringVar(&g.configFile)
	app.Flag("proto-path", "Directory imports are resolved against. Repeatable.").Short('I').StringsVar(&g.protoPaths)
	app.Flag("log.level", "Only log messages with the given severity or above.").Default("info").EnumVar(&g.logLevel, "debug", "info", "warn", "error")

	addPlanCommand(app, g, os.Stdout)
	addDecodeCommand(app, g, os.Stdin, os.Stdout)
	addEncodeCommand(app, g, os.Stdin, os.Stdout)

	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	var opt level.Option
	switch lvl {
	case "debug":
		opt = level.AllowDebug()
	case "warn":
		opt = level.AllowWarn()
	case "error":
		opt = level.AllowError()
	default:
		opt = level.AllowInfo()
	}
	return log.With(level.NewFilter(logger, opt), "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config file")
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config file %s", path)
	}
	return cfg, nil
}

// open builds a Zenwire instance from the global flags and loads schemaFile,
// either through the source parser or, with compiled set, through the full
// protobuf compiler.
func (g *globalFlags) open(schemaFile string, compiled bool) (*zenwire.Zenwire, error) {
	cfg, err := loadConfig(g.configFile)
	if err != nil {
		return nil, err
	}
	logger := newLogger(g.logLevel)
	z := zenwire.New(
		zenwire.WithProtoPaths(append(cfg.ProtoPaths, g.protoPaths...)...),
		zenwire.WithConfig(cfg.Wire),
		zenwire.WithLogger(logger),
	)
	if compiled {
		err = z.LoadCompiled(context.Background(), schemaFile)
	} else if len(cfg.ProtoPaths)+len(g.protoPaths) > 0 {
		err = z.LoadSchemaFromFile(schemaFile)
	} else {
		err = z.LoadSchema(schemaFile)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", schemaFile)
	}
	level.Debug(logger).Log("msg", "schema loaded", "file", schemaFile, "messages", len(z.ListMessages()))
	return z, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

type planCommand struct {
	g          *globalFlags
	out        io.Writer
	schema     string
	message    string
	descriptor bool
}

func addPlanCommand(app *kingpin.Application, g *globalFlags, out io.Writer) {
	cmd := &planCommand{g: g, out: out}
	c := app.Command("plan", "Print the codec plans of a schema as YAML.").Action(cmd.run)
	c.Arg("schema", "The .proto file to load.").Required().StringVar(&cmd.schema)
	c.Flag("message", "Only print the plan of this message type.").StringVar(&cmd.message)
	c.Flag("descriptor", "Compile the schema with the full protobuf compiler.").BoolVar(&cmd.descriptor)
}

func (cmd *planCommand) run(_ *kingpin.ParseContext) error {
	z, err := cmd.g.open(cmd.schema, cmd.descriptor)
	if err != nil {
		return err
	}
	names := z.ListMessages()
	if cmd.message != "" {
		names = []string{cmd.message}
	}
	plans := make([]*plan.Message, 0, len(names))
	for _, name := range names {
		p, err := z.Plan(name)
		if err != nil {
			return err
		}
		plans = append(plans, p)
	}
	return writeYAML(cmd.out, plans)
}

type decodeCommand struct {
	g       *globalFlags
	in      io.Reader
	out     io.Writer
	schema  string
	message string
	input   string
}

func addDecodeCommand(app *kingpin.Application, g *globalFlags, in io.Reader, out io.Writer) {
	cmd := &decodeCommand{g: g, in: in, out: out}
	c := app.Command("decode", "Decode a binary message and print it as YAML.").Action(cmd.run)
	c.Arg("schema", "The .proto file to load.").Required().StringVar(&cmd.schema)
	c.Flag("message", "Fully qualified message type.").Required().StringVar(&cmd.message)
	c.Flag("input", "File holding the encoded message. Defaults to stdin.").StringVar(&cmd.input)
}

func (cmd *decodeCommand) run(_ *kingpin.ParseContext) error {
	z, err := cmd.g.open(cmd.schema, false)
	if err != nil {
		return err
	}
	var r io.Reader = cmd.in
	if cmd.input != "" && cmd.input != "-" {
		f, err := os.Open(cmd.input)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	rec, err := z.ParseReader(r, cmd.message)
	if err != nil {
		return err
	}
	return writeYAML(cmd.out, yamlValue(rec))
}

// yamlValue rewrites bytes values as base64 strings, the form encode reads
// them back in.
func yamlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case codec.Record:
		out := make(codec.Record, len(t))
		for k, x := range t {
			out[k] = yamlValue(x)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[interface{}]interface{}, len(t))
		for k, x := range t {
			out[k] = yamlValue(x)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, x := range t {
			out[i] = yamlValue(x)
		}
		return out
	}
	return v
}

type encodeCommand struct {
	g       *globalFlags
	in      io.Reader
	out     io.Writer
	schema  string
	message string
	input   string
}

func addEncodeCommand(app *kingpin.Application, g *globalFlags, in io.Reader, out io.Writer) {
	cmd := &encodeCommand{g: g, in: in, out: out}
	c := app.Command("encode", "Encode a YAML document and write the binary message.").Action(cmd.run)
	c.Arg("schema", "The .proto file to load.").Required().StringVar(&cmd.schema)
	c.Flag("message", "Fully qualified message type.").Required().StringVar(&cmd.message)
	c.Flag("input", "YAML file holding the message. Defaults to stdin.").StringVar(&cmd.input)
}

func (cmd *encodeCommand) run(_ *kingpin.ParseContext) error {
	z, err := cmd.g.open(cmd.schema, false)
	if err != nil {
		return err
	}
	buf, err := readInput(cmd.input, cmd.in)
	if err != nil {
		return err
	}
	rec := codec.Record{}
	if err := yaml.Unmarshal(buf, &rec); err != nil {
		return errors.Wrap(err, "parsing input")
	}
	_, err = z.EncodeTo(cmd.out, rec, cmd.message)
	return err
}

func writeYAML(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}
