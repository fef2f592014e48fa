package server

import (
	_ "embed"
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
)

//go:embed eval.proto
var evalProto string

const (
	protoFile   = "eval.proto"
	protoPkg    = "duet.v1"
	ServiceName = protoPkg + ".Evaluator"
)

// Method names of the Evaluator service.
const (
	MethodEvaluate    = "Evaluate"
	MethodCompare     = "Compare"
	MethodDisassemble = "Disassemble"
)

// Schema is the parsed service definition. Messages are handled as
// dynamic messages built from it; there is no generated code.
type Schema struct {
	File    *desc.FileDescriptor
	Service *desc.ServiceDescriptor
}

// LoadSchema parses the embedded service definition.
func LoadSchema() (*Schema, error) {
	parser := protoparse.Parser{
		Accessor: protoparse.FileContentsFromMap(map[string]string{protoFile: evalProto}),
	}
	fds, err := parser.ParseFiles(protoFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proto: %w", err)
	}
	sd := fds[0].FindService(ServiceName)
	if sd == nil {
		return nil, fmt.Errorf("service %s not found in %s", ServiceName, protoFile)
	}
	return &Schema{File: fds[0], Service: sd}, nil
}

// Method returns the descriptor of a service method.
func (s *Schema) Method(name string) (*desc.MethodDescriptor, error) {
	md := s.Service.FindMethodByName(name)
	if md == nil {
		return nil, fmt.Errorf("method %s not found in %s", name, ServiceName)
	}
	return md, nil
}

// Message returns the descriptor of a message declared in the schema.
func (s *Schema) Message(name string) (*desc.MessageDescriptor, error) {
	md := s.File.FindMessage(protoPkg + "." + name)
	if md == nil {
		return nil, fmt.Errorf("message %s not found in %s", name, protoFile)
	}
	return md, nil
}

// FullMethod is the path a client invokes, e.g. /duet.v1.Evaluator/Evaluate.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}
