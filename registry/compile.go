package registry

import (
	"context"

	"github.com/bufbuild/protocompile"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// CompileDescriptors compiles .proto files with protocompile and returns
// their descriptors together with every file they import, dependencies first.
// Paths are relative to importPaths; the well-known types are always
// available.
func CompileDescriptors(ctx context.Context, importPaths []string, files ...string) ([]*descriptorpb.FileDescriptorProto, error) {
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: importPaths,
		}),
	}
	compiled, err := compiler.Compile(ctx, files...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile proto files")
	}

	var (
		out  []*descriptorpb.FileDescriptorProto
		seen = make(map[string]struct{})
	)
	var add func(fd protoreflect.FileDescriptor)
	add = func(fd protoreflect.FileDescriptor) {
		if _, ok := seen[fd.Path()]; ok {
			return
		}
		seen[fd.Path()] = struct{}{}
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			add(imports.Get(i).FileDescriptor)
		}
		out = append(out, protodesc.ToFileDescriptorProto(fd))
	}
	for _, f := range compiled {
		add(f)
	}
	return out, nil
}
