package server

import (
	"context"

	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
)

// Client calls a duet.v1.Evaluator service.
type Client struct {
	conn   grpc.ClientConnInterface
	schema *Schema
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) (*Client, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, schema: schema}, nil
}

func (c *Client) invoke(ctx context.Context, method string, req Request) (*dynamic.Message, error) {
	md, err := c.schema.Method(method)
	if err != nil {
		return nil, err
	}
	in, err := encodeRequest(md.GetInputType(), req)
	if err != nil {
		return nil, err
	}
	out := dynamic.NewMessage(md.GetOutputType())
	if err := c.conn.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Evaluate runs req.Source on the requested engine.
func (c *Client) Evaluate(ctx context.Context, req Request) (Evaluation, error) {
	out, err := c.invoke(ctx, MethodEvaluate, req)
	if err != nil {
		return Evaluation{}, err
	}
	return decodeEvaluation(out), nil
}

// Compare runs req.Source on both engines.
func (c *Client) Compare(ctx context.Context, req Request) (Comparison, error) {
	out, err := c.invoke(ctx, MethodCompare, req)
	if err != nil {
		return Comparison{}, err
	}
	return decodeComparison(out), nil
}

// Disassemble returns the bytecode listing of req.Source.
func (c *Client) Disassemble(ctx context.Context, req Request) (Listing, error) {
	out, err := c.invoke(ctx, MethodDisassemble, req)
	if err != nil {
		return Listing{}, err
	}
	return decodeListing(out), nil
}
