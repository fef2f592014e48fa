package vm

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/funvibe/duet/internal/ownership"
	"github.com/funvibe/duet/internal/value"
)

// Bundle format:
//   - Magic number (4 bytes): "DUET"
//   - Version (1 byte)
//   - Canonical CBOR document (bundleDoc)
var bundleMagic = []byte{'D', 'U', 'E', 'T'}

const bundleVersion byte = 0x01

var (
	ErrBadMagic           = errors.New("not a duet bundle")
	ErrUnsupportedVersion = errors.New("unsupported bundle version")
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Constant tags in the serialized pool.
const (
	constNumber uint8 = iota
	constString
	constBool
	constNull
	constFunction
)

type bundleConstant struct {
	Tag  uint8   `cbor:"1,keyasint"`
	Num  float64 `cbor:"2,keyasint,omitempty"`
	Str  string  `cbor:"3,keyasint,omitempty"`
	Bool bool    `cbor:"4,keyasint,omitempty"`
	Func int     `cbor:"5,keyasint,omitempty"` // index into bundleDoc.Functions
}

type bundleFunction struct {
	Name            string   `cbor:"1,keyasint"`
	Arity           int      `cbor:"2,keyasint"`
	Entry           int      `cbor:"3,keyasint"`
	LocalCount      int      `cbor:"4,keyasint"`
	ParamNames      []string `cbor:"5,keyasint,omitempty"`
	ParamOwnership  []uint8  `cbor:"6,keyasint,omitempty"`
	ReturnOwnership uint8    `cbor:"7,keyasint,omitempty"`
	LocalNames      []string `cbor:"8,keyasint,omitempty"`
}

type bundleDoc struct {
	Code      []byte           `cbor:"1,keyasint"`
	Constants []bundleConstant `cbor:"2,keyasint,omitempty"`
	Functions []bundleFunction `cbor:"3,keyasint,omitempty"`
	Spans     [][3]int         `cbor:"4,keyasint,omitempty"`
	Main      bundleFunction   `cbor:"5,keyasint"`
	Debug     bool             `cbor:"6,keyasint,omitempty"`
	File      string           `cbor:"7,keyasint,omitempty"`
}

// Serialize converts a chunk to the binary bundle format.
func Serialize(chunk *Chunk) ([]byte, error) {
	if chunk == nil || chunk.Main == nil {
		return nil, fmt.Errorf("bundle: chunk has no main function")
	}
	doc := bundleDoc{
		Code:  chunk.Code,
		Main:  encodeFunction(chunk.Main),
		Debug: chunk.Debug,
		File:  chunk.File,
	}
	for _, k := range chunk.Constants {
		bc, err := encodeConstant(k, &doc)
		if err != nil {
			return nil, err
		}
		doc.Constants = append(doc.Constants, bc)
	}
	for _, sp := range chunk.Spans {
		doc.Spans = append(doc.Spans, [3]int{sp.Offset, sp.Line, sp.Column})
	}

	payload, err := cborEncMode.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("bundle: cbor encoding failed: %w", err)
	}
	buf := new(bytes.Buffer)
	buf.Write(bundleMagic)
	buf.WriteByte(bundleVersion)
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Deserialize reads a bundle back into a chunk. The chunk is never marked
// validated; callers must run Validate before executing it.
func Deserialize(data []byte) (*Chunk, error) {
	if len(data) < len(bundleMagic)+1 || !bytes.Equal(data[:len(bundleMagic)], bundleMagic) {
		return nil, ErrBadMagic
	}
	if v := data[len(bundleMagic)]; v != bundleVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	var doc bundleDoc
	if err := cbor.Unmarshal(data[len(bundleMagic)+1:], &doc); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}

	fns := make([]*value.Function, len(doc.Functions))
	for i, bf := range doc.Functions {
		fn, err := decodeFunction(bf)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	main, err := decodeFunction(doc.Main)
	if err != nil {
		return nil, err
	}

	chunk := &Chunk{
		Code:      doc.Code,
		Constants: make([]value.Value, 0, len(doc.Constants)),
		Spans:     make([]Span, 0, len(doc.Spans)),
		Main:      main,
		Debug:     doc.Debug,
		File:      doc.File,
	}
	for i, bc := range doc.Constants {
		k, err := decodeConstant(bc, fns)
		if err != nil {
			return nil, fmt.Errorf("bundle: constant %d: %w", i, err)
		}
		chunk.Constants = append(chunk.Constants, k)
	}
	for _, sp := range doc.Spans {
		chunk.Spans = append(chunk.Spans, Span{Offset: sp[0], Line: sp[1], Column: sp[2]})
	}
	return chunk, nil
}

func encodeConstant(k value.Value, doc *bundleDoc) (bundleConstant, error) {
	switch v := k.(type) {
	case value.Number:
		return bundleConstant{Tag: constNumber, Num: float64(v)}, nil
	case value.String:
		return bundleConstant{Tag: constString, Str: string(v)}, nil
	case value.Bool:
		return bundleConstant{Tag: constBool, Bool: bool(v)}, nil
	case value.Null:
		return bundleConstant{Tag: constNull}, nil
	case *value.Function:
		if v.IsBuiltin() {
			return bundleConstant{}, fmt.Errorf("bundle: builtin %s cannot be serialized", v.Name)
		}
		doc.Functions = append(doc.Functions, encodeFunction(v))
		return bundleConstant{Tag: constFunction, Func: len(doc.Functions) - 1}, nil
	}
	return bundleConstant{}, fmt.Errorf("bundle: constant of type %s cannot be serialized", value.TypeName(k))
}

func decodeConstant(bc bundleConstant, fns []*value.Function) (value.Value, error) {
	switch bc.Tag {
	case constNumber:
		return value.Number(bc.Num), nil
	case constString:
		return value.String(bc.Str), nil
	case constBool:
		return value.Bool(bc.Bool), nil
	case constNull:
		return value.Null{}, nil
	case constFunction:
		if bc.Func < 0 || bc.Func >= len(fns) {
			return nil, fmt.Errorf("function index %d out of range", bc.Func)
		}
		return fns[bc.Func], nil
	}
	return nil, fmt.Errorf("unknown constant tag %d", bc.Tag)
}

func encodeFunction(fn *value.Function) bundleFunction {
	bf := bundleFunction{
		Name:            fn.Name,
		Arity:           fn.Arity,
		Entry:           fn.Entry,
		LocalCount:      fn.LocalCount,
		ParamNames:      fn.ParamNames,
		ReturnOwnership: fn.ReturnOwnership.Tag(),
		LocalNames:      fn.LocalNames,
	}
	for _, a := range fn.ParamOwnership {
		bf.ParamOwnership = append(bf.ParamOwnership, a.Tag())
	}
	return bf
}

func decodeFunction(bf bundleFunction) (*value.Function, error) {
	fn := &value.Function{
		Name:       bf.Name,
		Arity:      bf.Arity,
		Entry:      bf.Entry,
		LocalCount: bf.LocalCount,
		ParamNames: bf.ParamNames,
		LocalNames: bf.LocalNames,
	}
	ret, err := ownership.FromTag(bf.ReturnOwnership)
	if err != nil {
		return nil, fmt.Errorf("bundle: function %s: %w", bf.Name, err)
	}
	fn.ReturnOwnership = ret
	for _, tag := range bf.ParamOwnership {
		a, err := ownership.FromTag(tag)
		if err != nil {
			return nil, fmt.Errorf("bundle: function %s: %w", bf.Name, err)
		}
		fn.ParamOwnership = append(fn.ParamOwnership, a)
	}
	return fn, nil
}
