package registry

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	protoparserparser "github.com/yoheimuta/go-protoparser/v4/parser"

	"github.com/anirudhraja/zenwire/schema"
)

// Registry allows us to store the schema of the protobuf messages. We look this up when we build codec plans.
type Registry struct {
	ProtoDirectories []string

	repo     *schema.ProtoRepo
	messages map[string]*schema.Message // fully qualified name -> message
	enums    map[string]*schema.Enum    // fully qualified name -> enum
	services map[string]*schema.Service // fully qualified name -> service
	packages map[*schema.Message]string // message -> fully qualified name

	parsedProtoBody map[string]*protoparserparser.Proto
	protoEntities   map[string]*protoFileEntity
	resolved        map[*schema.ProtoFile]bool

	logger log.Logger
}

type protoFileEntity struct {
	imports []string
}

// NewRegistry creates a registry that resolves imports against protoDirs.
func NewRegistry(protoDirs ...string) *Registry {
	return &Registry{
		ProtoDirectories: protoDirs,
		logger:           log.NewNopLogger(),
	}
}

// SetLogger sets the logger used while loading schemas.
func (r *Registry) SetLogger(logger log.Logger) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	r.logger = logger
}

func (r *Registry) init() {
	// Initialize the registry maps if not already done
	if r.messages == nil {
		r.messages = make(map[string]*schema.Message)
	}
	if r.enums == nil {
		r.enums = make(map[string]*schema.Enum)
	}
	if r.services == nil {
		r.services = make(map[string]*schema.Service)
	}
	if r.packages == nil {
		r.packages = make(map[*schema.Message]string)
	}
	if r.repo == nil {
		r.repo = &schema.ProtoRepo{ProtoFiles: make(map[string]*schema.ProtoFile)}
	}
	if r.parsedProtoBody == nil {
		r.parsedProtoBody = make(map[string]*protoparserparser.Proto)
	}
	if r.protoEntities == nil {
		r.protoEntities = make(map[string]*protoFileEntity)
	}
	if r.resolved == nil {
		r.resolved = make(map[*schema.ProtoFile]bool)
	}
}

// LoadSchema Given a path it will recursively scan all *proto files inside it and add them to the registry
func (r *Registry) LoadSchema(protoPath string) error {
	r.init()

	// Check if the path exists
	info, err := os.Stat(protoPath)
	if err != nil {
		return errors.Wrap(err, "path does not exist")
	}

	// If it's a single file, process it directly
	if !info.IsDir() {
		if !strings.HasSuffix(protoPath, ".proto") {
			return errors.Errorf("file %s is not a .proto file", protoPath)
		}
		if err := r.loadSingleProtoFile(protoPath); err != nil {
			return errors.Wrap(err, "failed to load proto file")
		}
	} else {
		// If it's a directory, walk through it recursively
		err = filepath.WalkDir(protoPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			// Skip directories and non-proto files
			if d.IsDir() || !strings.HasSuffix(path, ".proto") {
				return nil
			}

			if err := r.loadSingleProtoFile(path); err != nil {
				return errors.Wrapf(err, "failed to load proto file %s", path)
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "failed to walk directory")
		}
	}

	// After loading all files, populate the registry maps
	if err := r.buildSymbolTable(); err != nil {
		return errors.Wrap(err, "failed to build symbol table")
	}
	return nil
}

// LoadSchemaFromFile loads a file relative to the proto directories together
// with everything it imports.
func (r *Registry) LoadSchemaFromFile(protoFile string) error {
	r.init()
	files, err := r.getAllProtoInfo(protoFile)
	if err != nil {
		return err
	}
	for _, file := range files {
		r.addProtoFile(file, convertProto(r.parsedProtoBody[file], file))
	}
	if err := r.buildSymbolTable(); err != nil {
		return errors.Wrap(err, "failed to build symbol table")
	}
	return nil
}

// LoadRepo registers an already built schema tree.
func (r *Registry) LoadRepo(repo *schema.ProtoRepo) error {
	if repo == nil {
		return errors.New("repo is nil")
	}
	r.init()
	for name, file := range repo.ProtoFiles {
		r.repo.ProtoFiles[name] = file
	}
	return r.buildSymbolTable()
}

// loadSingleProtoFile loads and parses a single .proto file
func (r *Registry) loadSingleProtoFile(filePath string) error {
	parsed, err := parseProtoFile(filePath)
	if err != nil {
		return err
	}
	r.parsedProtoBody[filePath] = parsed
	r.addProtoFile(filePath, convertProto(parsed, filePath))
	return nil
}

func (r *Registry) addProtoFile(path string, protoFile *schema.ProtoFile) {
	r.repo.ProtoFiles[path] = protoFile
	level.Debug(r.logger).Log("msg", "loaded proto file", "file", path, "package", protoFile.Package, "messages", len(protoFile.Messages))
}

// buildSymbolTable builds the symbol table from the loaded repository
func (r *Registry) buildSymbolTable() error {
	// Pass 1: Register all message and enum names
	for _, protoFile := range r.repo.ProtoFiles {
		r.registerNames(protoFile)
	}

	// Pass 2: Resolve field type references of files not resolved yet
	for _, path := range sortedKeys(r.repo.ProtoFiles) {
		protoFile := r.repo.ProtoFiles[path]
		if r.resolved[protoFile] {
			continue
		}
		if err := r.buildDefinitions(protoFile); err != nil {
			return errors.Wrap(err, path)
		}
		r.resolved[protoFile] = true
	}
	return nil
}

// registerNames registers all message, enum, and service names
func (r *Registry) registerNames(protoFile *schema.ProtoFile) {
	pkg := protoFile.Package
	for _, msg := range protoFile.Messages {
		r.registerMessage(r.getFullName(pkg, msg.Name), msg)
	}
	for _, enum := range protoFile.Enums {
		r.enums[r.getFullName(pkg, enum.Name)] = enum
	}
	for _, service := range protoFile.Services {
		r.services[r.getFullName(pkg, service.Name)] = service
	}
}

// registerMessage registers a message and, recursively, its nested types
func (r *Registry) registerMessage(fullName string, msg *schema.Message) {
	r.messages[fullName] = msg
	r.packages[msg] = fullName
	for _, nestedMsg := range msg.NestedTypes {
		r.registerMessage(fullName+"."+nestedMsg.Name, nestedMsg)
	}
	for _, nestedEnum := range msg.NestedEnums {
		r.enums[fullName+"."+nestedEnum.Name] = nestedEnum
	}
}

// buildDefinitions resolves every type reference of the file's messages and services
func (r *Registry) buildDefinitions(protoFile *schema.ProtoFile) error {
	for _, msg := range protoFile.Messages {
		if err := r.resolveMessageFields(msg, r.getFullName(protoFile.Package, msg.Name)); err != nil {
			return err
		}
	}
	for _, service := range protoFile.Services {
		for _, m := range service.Methods {
			var err error
			if m.InputType, err = r.ResolveType(m.InputType, protoFile.Package); err != nil {
				return errors.Wrapf(err, "service %s method %s", service.Name, m.Name)
			}
			if m.OutputType, err = r.ResolveType(m.OutputType, protoFile.Package); err != nil {
				return errors.Wrapf(err, "service %s method %s", service.Name, m.Name)
			}
		}
	}
	return nil
}

// resolveMessageFields replaces the type names written in the .proto source
// with fully qualified names, recursing into nested messages.
func (r *Registry) resolveMessageFields(msg *schema.Message, scope string) error {
	fields := append([]*schema.Field{}, msg.Fields...)
	for _, oneof := range msg.OneofGroups {
		fields = append(fields, oneof.Fields...)
	}
	for _, field := range fields {
		if err := r.resolveFieldType(&field.Type, scope); err != nil {
			return errors.Wrapf(err, "field %s.%s", scope, field.Name)
		}
	}
	for _, nested := range msg.NestedTypes {
		if err := r.resolveMessageFields(nested, scope+"."+nested.Name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) resolveFieldType(ft *schema.FieldType, scope string) error {
	switch ft.Kind {
	case schema.KindMessage, schema.KindEnum:
		name := ft.MessageType
		if ft.Kind == schema.KindEnum {
			name = ft.EnumType
		}
		if _, ok := schema.WrappedPrimitive(schema.WrapperType(strings.TrimPrefix(name, "."))); ok {
			*ft = schema.FieldType{Kind: schema.KindWrapper, WrapperType: schema.WrapperType(strings.TrimPrefix(name, "."))}
			return nil
		}
		resolved, err := r.ResolveType(name, scope)
		if err != nil {
			return err
		}
		if _, isEnum := r.enums[resolved]; isEnum {
			*ft = schema.FieldType{Kind: schema.KindEnum, EnumType: resolved}
		} else {
			*ft = schema.FieldType{Kind: schema.KindMessage, MessageType: resolved}
		}
	case schema.KindGroup:
		ft.MessageType = scope + "." + ft.MessageType
	case schema.KindMap:
		if ft.MapKey != nil {
			if err := r.resolveFieldType(ft.MapKey, scope); err != nil {
				return err
			}
		}
		if ft.MapValue != nil {
			if err := r.resolveFieldType(ft.MapValue, scope); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResolveType resolves a type name as written inside scope (a package or a
// fully qualified message name) to the fully qualified message or enum name.
func (r *Registry) ResolveType(typeName, scope string) (string, error) {
	return getReferencedType(typeName, scope, r.symbols())
}

func (r *Registry) symbols() map[string]struct{} {
	all := make(map[string]struct{}, len(r.messages)+len(r.enums))
	for name := range r.messages {
		all[name] = struct{}{}
	}
	for name := range r.enums {
		all[name] = struct{}{}
	}
	return all
}

func (r *Registry) getFullName(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}

// FullName returns the fully qualified name a message is registered under.
func (r *Registry) FullName(msg *schema.Message) string {
	return r.packages[msg]
}

// GetMessage retrieves a message definition by name
func (r *Registry) GetMessage(name string) (*schema.Message, error) {
	name = strings.TrimPrefix(name, ".")
	if msg, exists := r.messages[name]; exists {
		return msg, nil
	}

	// Try without package prefix
	for _, fullName := range sortedKeys(r.messages) {
		if strings.HasSuffix(fullName, "."+name) {
			return r.messages[fullName], nil
		}
	}

	return nil, errors.Errorf("message not found: %s", name)
}

// GetEnum retrieves an enum definition by name
func (r *Registry) GetEnum(name string) (*schema.Enum, error) {
	name = strings.TrimPrefix(name, ".")
	if enum, exists := r.enums[name]; exists {
		return enum, nil
	}

	for _, fullName := range sortedKeys(r.enums) {
		if strings.HasSuffix(fullName, "."+name) {
			return r.enums[fullName], nil
		}
	}

	return nil, errors.Errorf("enum not found: %s", name)
}

// GetService retrieves a service definition by name
func (r *Registry) GetService(name string) (*schema.Service, error) {
	name = strings.TrimPrefix(name, ".")
	if service, exists := r.services[name]; exists {
		return service, nil
	}

	for _, fullName := range sortedKeys(r.services) {
		if strings.HasSuffix(fullName, "."+name) {
			return r.services[fullName], nil
		}
	}

	return nil, errors.Errorf("service not found: %s", name)
}

// Files returns the loaded files keyed by path.
func (r *Registry) Files() map[string]*schema.ProtoFile {
	if r.repo == nil {
		return nil
	}
	return r.repo.ProtoFiles
}

// ListMessages returns all registered message names
func (r *Registry) ListMessages() []string { return sortedKeys(r.messages) }

// ListEnums returns all registered enum names
func (r *Registry) ListEnums() []string { return sortedKeys(r.enums) }

// ListServices returns all registered service names
func (r *Registry) ListServices() []string { return sortedKeys(r.services) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
