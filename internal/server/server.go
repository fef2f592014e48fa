// Package server exposes both engines as the gRPC service duet.v1.Evaluator.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/tliron/commonlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/funvibe/duet/internal/backend"
	"github.com/funvibe/duet/internal/config"
	"github.com/funvibe/duet/internal/diagnostics"
	"github.com/funvibe/duet/internal/journal"
	"github.com/funvibe/duet/internal/pipeline"
	"github.com/funvibe/duet/internal/value"
)

var log = commonlog.GetLogger("duet.server")

// Server serves evaluations. Every request gets its own pipeline context and
// engine instance; nothing mutable is shared between requests.
type Server struct {
	cfg     config.Config
	journal *journal.Journal
	schema  *Schema
	grpc    *grpc.Server
}

// unaryFunc handles one decoded request.
type unaryFunc func(s *Server, ctx context.Context, req Request) (*dynamic.Message, error)

// New builds a server using cfg for defaults. j may be nil.
func New(cfg config.Config, j *journal.Journal, opts ...grpc.ServerOption) (*Server, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, journal: j, schema: schema, grpc: grpc.NewServer(opts...)}

	sd := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Methods:     []grpc.MethodDesc{},
		Streams:     []grpc.StreamDesc{},
		Metadata:    protoFile,
	}
	handlers := map[string]unaryFunc{
		MethodEvaluate:    (*Server).evaluate,
		MethodCompare:     (*Server).compare,
		MethodDisassemble: (*Server).disassemble,
	}
	for _, method := range schema.Service.GetMethods() {
		h, ok := handlers[method.GetName()]
		if !ok {
			return nil, fmt.Errorf("no handler for %s", method.GetFullyQualifiedName())
		}
		sd.Methods = append(sd.Methods, grpc.MethodDesc{
			MethodName: method.GetName(),
			Handler:    s.unaryHandler(method, h),
		})
	}
	s.grpc.RegisterService(sd, s)
	return s, nil
}

func (s *Server) unaryHandler(md *desc.MethodDescriptor, h unaryFunc) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := dynamic.NewMessage(md.GetInputType())
		if err := dec(in); err != nil {
			return nil, err
		}
		call := func(ctx context.Context, req any) (any, error) {
			r, err := decodeRequest(req.(*dynamic.Message))
			if err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return h(s, ctx, r)
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: s, FullMethod: FullMethod(md.GetName())}
		return interceptor(ctx, in, info, call)
	}
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Infof("serving %s on %s", ServiceName, lis.Addr())
	return s.grpc.Serve(lis)
}

// ListenAndServe listens on addr, falling back to the configured address.
func (s *Server) ListenAndServe(addr string) error {
	if addr == "" {
		addr = s.cfg.Listen
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Stop finishes in-flight requests and stops serving.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// newContext prepares a pipeline context for req.
func (s *Server) newContext(ctx context.Context, req Request) *pipeline.PipelineContext {
	cfg := s.cfg
	cfg.Debug = cfg.Debug || req.Debug
	pctx := pipeline.NewContext(req.Source, cfg)
	pctx.Context = ctx
	pctx.FilePath = req.File
	pctx.EvalID = uuid.NewString()
	return pctx
}

func (s *Server) outputType(method string) (*desc.MessageDescriptor, error) {
	md, err := s.schema.Method(method)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return md.GetOutputType(), nil
}

func (s *Server) evaluate(ctx context.Context, req Request) (*dynamic.Message, error) {
	engine := req.Engine
	if engine == "" {
		engine = s.cfg.Engine
	}
	b, err := backend.New(engine)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var out bytes.Buffer
	pctx := s.newContext(ctx, req)
	pctx.Out = &out
	pctx = backend.Evaluate(pctx, b)
	if s.journal != nil {
		(&journal.Processor{Journal: s.journal}).Process(pctx)
	}

	ev := Evaluation{EvalID: pctx.EvalID, Engine: b.Name(), Output: out.String()}
	switch {
	case pctx.HasErrors():
		ev.Diagnostics = diagnosticStrings(pctx.Errors)
	case pctx.Fault != nil:
		if errors.Is(pctx.Fault, context.Canceled) || errors.Is(pctx.Fault, context.DeadlineExceeded) {
			return nil, status.FromContextError(pctx.Fault).Err()
		}
		ev.Fault = toFault(pctx.Fault)
	default:
		ev.Result = value.Display(pctx.Result)
		ev.ResultType = value.TypeName(pctx.Result)
		ev.Advisories = pctx.Advisories
	}

	md, err := s.outputType(MethodEvaluate)
	if err != nil {
		return nil, err
	}
	return encodeEvaluation(md, ev)
}

func (s *Server) compare(ctx context.Context, req Request) (*dynamic.Message, error) {
	pctx := s.newContext(ctx, req)
	c := Comparison{EvalID: pctx.EvalID}

	report, err := backend.Compare(pctx)
	var diags diagnostics.Errors
	switch {
	case errors.As(err, &diags):
		c.Diagnostics = diagnosticStrings(diags)
	case err != nil:
		return nil, status.Error(codes.Internal, err.Error())
	default:
		c.Match = report.Match()
		c.Mismatches = report.Mismatches
		c.TreeWalk = fromOutcome(report.EvalID, report.TreeWalk)
		c.VM = fromOutcome(report.EvalID, report.VM)
	}

	md, err := s.outputType(MethodCompare)
	if err != nil {
		return nil, err
	}
	return encodeComparison(md, c)
}

func (s *Server) disassemble(ctx context.Context, req Request) (*dynamic.Message, error) {
	pctx := backend.Prepare(s.newContext(ctx, req))
	var l Listing
	if pctx.HasErrors() {
		l.Diagnostics = diagnosticStrings(pctx.Errors)
	} else {
		listing, err := backend.NewVM().Disassemble(pctx)
		if err != nil {
			l.Diagnostics = []string{err.Error()}
		}
		l.Listing = listing
	}

	md, err := s.outputType(MethodDisassemble)
	if err != nil {
		return nil, err
	}
	return encodeListing(md, l), nil
}

func fromOutcome(id string, o backend.Outcome) Evaluation {
	ev := Evaluation{EvalID: id, Engine: o.Engine, Output: o.Output}
	if o.Fault != nil {
		ev.Fault = toFault(o.Fault)
		return ev
	}
	ev.Result = value.Display(o.Value)
	ev.ResultType = value.TypeName(o.Value)
	ev.Advisories = o.Advisories
	return ev
}

func toFault(err error) *Fault {
	f := &Fault{Message: err.Error()}
	if rt, ok := diagnostics.AsRuntime(err); ok {
		f.Code = string(rt.Code)
		f.Line = rt.Line
		f.Column = rt.Column
		for _, fr := range rt.StackTrace {
			f.Trace = append(f.Trace, fmt.Sprintf("%s (line %d)", fr.Name, fr.Line))
		}
	}
	return f
}

func diagnosticStrings(errs []*diagnostics.DiagnosticError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
