package server

import (
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/funvibe/duet/internal/diagnostics"
)

// Request is an EvaluateRequest.
type Request struct {
	Source string
	File   string
	Engine string
	Debug  bool
}

// Fault is a runtime fault as sent over the wire.
type Fault struct {
	Code    string
	Message string
	Line    int
	Column  int
	Trace   []string
}

// Evaluation is an EvaluateResponse.
type Evaluation struct {
	EvalID      string
	Engine      string
	Result      string
	ResultType  string
	Output      string
	Advisories  []diagnostics.Advisory
	Fault       *Fault
	Diagnostics []string
}

// Comparison is a CompareResponse.
type Comparison struct {
	EvalID      string
	Match       bool
	TreeWalk    Evaluation
	VM          Evaluation
	Mismatches  []string
	Diagnostics []string
}

// Listing is a DisassembleResponse.
type Listing struct {
	Listing     string
	Diagnostics []string
}

// decodeRequest copies an EvaluateRequest field by field, checking each
// field's wire type against what the server reads from it.
func decodeRequest(msg *dynamic.Message) (Request, error) {
	var req Request
	for _, fd := range msg.GetMessageDescriptor().GetFields() {
		v := msg.GetField(fd)
		switch fd.GetType() {
		case descriptorpb.FieldDescriptorProto_TYPE_STRING:
			s, _ := v.(string)
			switch fd.GetName() {
			case "source":
				req.Source = s
			case "file":
				req.File = s
			case "engine":
				req.Engine = s
			}
		case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
			if fd.GetName() == "debug" {
				req.Debug, _ = v.(bool)
			}
		default:
			return req, fmt.Errorf("unexpected field %s of type %s", fd.GetName(), fd.GetType())
		}
	}
	return req, nil
}

func encodeRequest(md *desc.MessageDescriptor, req Request) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(md)
	for name, v := range map[string]any{
		"source": req.Source,
		"file":   req.File,
		"engine": req.Engine,
		"debug":  req.Debug,
	} {
		if err := msg.TrySetFieldByName(name, v); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func encodeEvaluation(md *desc.MessageDescriptor, ev Evaluation) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(md)
	for name, v := range map[string]any{
		"eval_id":     ev.EvalID,
		"engine":      ev.Engine,
		"result":      ev.Result,
		"result_type": ev.ResultType,
		"output":      ev.Output,
	} {
		if err := msg.TrySetFieldByName(name, v); err != nil {
			return nil, err
		}
	}

	advType := md.FindFieldByName("advisories").GetMessageType()
	for _, a := range ev.Advisories {
		am := dynamic.NewMessage(advType)
		am.SetFieldByName("code", string(a.Code))
		am.SetFieldByName("message", a.Message)
		am.SetFieldByName("line", int32(a.Line))
		am.SetFieldByName("column", int32(a.Column))
		if err := msg.TryAddRepeatedFieldByName("advisories", am); err != nil {
			return nil, err
		}
	}

	if f := ev.Fault; f != nil {
		fm := dynamic.NewMessage(md.FindFieldByName("fault").GetMessageType())
		fm.SetFieldByName("code", f.Code)
		fm.SetFieldByName("message", f.Message)
		fm.SetFieldByName("line", int32(f.Line))
		fm.SetFieldByName("column", int32(f.Column))
		for _, t := range f.Trace {
			fm.AddRepeatedFieldByName("trace", t)
		}
		if err := msg.TrySetFieldByName("fault", fm); err != nil {
			return nil, err
		}
	}

	for _, d := range ev.Diagnostics {
		if err := msg.TryAddRepeatedFieldByName("diagnostics", d); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func decodeEvaluation(msg *dynamic.Message) Evaluation {
	ev := Evaluation{
		EvalID:      stringField(msg, "eval_id"),
		Engine:      stringField(msg, "engine"),
		Result:      stringField(msg, "result"),
		ResultType:  stringField(msg, "result_type"),
		Output:      stringField(msg, "output"),
		Diagnostics: stringsField(msg, "diagnostics"),
	}
	for _, item := range repeated(msg, "advisories") {
		am, ok := item.(*dynamic.Message)
		if !ok {
			continue
		}
		ev.Advisories = append(ev.Advisories, diagnostics.Advisory{
			Code:    diagnostics.ErrorCode(stringField(am, "code")),
			Message: stringField(am, "message"),
			Line:    intField(am, "line"),
			Column:  intField(am, "column"),
		})
	}
	if msg.HasFieldName("fault") {
		if fm, ok := msg.GetFieldByName("fault").(*dynamic.Message); ok {
			ev.Fault = &Fault{
				Code:    stringField(fm, "code"),
				Message: stringField(fm, "message"),
				Line:    intField(fm, "line"),
				Column:  intField(fm, "column"),
				Trace:   stringsField(fm, "trace"),
			}
		}
	}
	return ev
}

func encodeComparison(md *desc.MessageDescriptor, c Comparison) (*dynamic.Message, error) {
	msg := dynamic.NewMessage(md)
	msg.SetFieldByName("eval_id", c.EvalID)
	msg.SetFieldByName("match", c.Match)

	evType := md.FindFieldByName("vm").GetMessageType()
	for name, ev := range map[string]Evaluation{"tree_walk": c.TreeWalk, "vm": c.VM} {
		em, err := encodeEvaluation(evType, ev)
		if err != nil {
			return nil, err
		}
		msg.SetFieldByName(name, em)
	}
	for _, m := range c.Mismatches {
		msg.AddRepeatedFieldByName("mismatches", m)
	}
	for _, d := range c.Diagnostics {
		msg.AddRepeatedFieldByName("diagnostics", d)
	}
	return msg, nil
}

func decodeComparison(msg *dynamic.Message) Comparison {
	c := Comparison{
		EvalID:      stringField(msg, "eval_id"),
		Mismatches:  stringsField(msg, "mismatches"),
		Diagnostics: stringsField(msg, "diagnostics"),
	}
	c.Match, _ = msg.GetFieldByName("match").(bool)
	if em, ok := msg.GetFieldByName("tree_walk").(*dynamic.Message); ok {
		c.TreeWalk = decodeEvaluation(em)
	}
	if em, ok := msg.GetFieldByName("vm").(*dynamic.Message); ok {
		c.VM = decodeEvaluation(em)
	}
	return c
}

func encodeListing(md *desc.MessageDescriptor, l Listing) *dynamic.Message {
	msg := dynamic.NewMessage(md)
	msg.SetFieldByName("listing", l.Listing)
	for _, d := range l.Diagnostics {
		msg.AddRepeatedFieldByName("diagnostics", d)
	}
	return msg
}

func decodeListing(msg *dynamic.Message) Listing {
	return Listing{
		Listing:     stringField(msg, "listing"),
		Diagnostics: stringsField(msg, "diagnostics"),
	}
}

func stringField(msg *dynamic.Message, name string) string {
	s, _ := msg.GetFieldByName(name).(string)
	return s
}

func intField(msg *dynamic.Message, name string) int {
	n, _ := msg.GetFieldByName(name).(int32)
	return int(n)
}

func repeated(msg *dynamic.Message, name string) []any {
	items, _ := msg.GetFieldByName(name).([]any)
	return items
}

func stringsField(msg *dynamic.Message, name string) []string {
	var out []string
	for _, item := range repeated(msg, name) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
