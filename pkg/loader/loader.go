// Package loader reads classes from the YAML program format.
//
// A program lists classes with their fields and methods. Method bodies are
// given as basic blocks of instruction text, identified by position, with
// successor lists and try regions referring to block positions:
//
//	classes:
//	  - name: com.example.Foo
//	    super: java.lang.Object
//	    fields: [{name: F, type: float, static: true, final: true, value: "1.0"}]
//	    methods:
//	      - name: <init>
//	        proto: ()V
//	        this: 0
//	        blocks:
//	          - insns: ["invoke-direct {r0}, java.lang.Object.<init>()V", "return"]
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-dex/pkg/dex"
)

// ErrInvalid is wrapped by every error caused by malformed input
var ErrInvalid = errors.New("invalid program")

// Program is the top-level document
type Program struct {
	Classes []ClassSpec `yaml:"classes"`
}

// ClassSpec describes one class
type ClassSpec struct {
	Name    string       `yaml:"name"`
	Super   string       `yaml:"super,omitempty"`
	Enum    bool         `yaml:"enum,omitempty"`
	Fields  []FieldSpec  `yaml:"fields,omitempty"`
	Methods []MethodSpec `yaml:"methods,omitempty"`
}

// FieldSpec describes a field; Value is parsed according to Type
type FieldSpec struct {
	Name   string  `yaml:"name"`
	Type   string  `yaml:"type"`
	Static bool    `yaml:"static,omitempty"`
	Final  bool    `yaml:"final,omitempty"`
	Value  *string `yaml:"value,omitempty"`
}

// MethodSpec describes a method and its body
type MethodSpec struct {
	Name   string      `yaml:"name"`
	Proto  string      `yaml:"proto"`
	Static bool        `yaml:"static,omitempty"`
	NoCode bool        `yaml:"nocode,omitempty"`
	This   *int        `yaml:"this,omitempty"`
	Params []ParamSpec `yaml:"params,omitempty"`
	Blocks []BlockSpec `yaml:"blocks,omitempty"`
	Tries  []TrySpec   `yaml:"tries,omitempty"`
}

// ParamSpec describes a formal parameter
type ParamSpec struct {
	Reg  int    `yaml:"reg"`
	Name string `yaml:"name,omitempty"`
	Type string `yaml:"type,omitempty"`
}

// BlockSpec is a basic block; Succ lists successor block positions
type BlockSpec struct {
	Succ  []int    `yaml:"succ,omitempty"`
	Insns []string `yaml:"insns"`
}

// TrySpec is a try region
type TrySpec struct {
	Handlers []HandlerSpec `yaml:"handlers"`
}

// HandlerSpec is an exception handler. Blocks is the extent; the entry is
// added to it when missing.
type HandlerSpec struct {
	Entry    int      `yaml:"entry"`
	CatchAll bool     `yaml:"catchall,omitempty"`
	Blocks   []int    `yaml:"blocks,omitempty"`
	Types    []string `yaml:"types,omitempty"`
}

// LoadFile reads a program from path
func LoadFile(path string) ([]*dex.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	classes, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return classes, nil
}

// Load reads a program from r
func Load(r io.Reader) ([]*dex.Class, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Decode parses a YAML program and builds its classes. Classes are frozen.
func Decode(data []byte) ([]*dex.Class, error) {
	var prog Program
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&prog); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Build(&prog)
}

// Build converts a decoded program into classes
func Build(prog *Program) ([]*dex.Class, error) {
	classes := make([]*dex.Class, 0, len(prog.Classes))
	seen := make(map[string]bool)
	for i := range prog.Classes {
		cs := &prog.Classes[i]
		if cs.Name == "" {
			return nil, fmt.Errorf("%w: class #%d: missing name", ErrInvalid, i)
		}
		if seen[cs.Name] {
			return nil, fmt.Errorf("%w: class %s: declared twice", ErrInvalid, cs.Name)
		}
		seen[cs.Name] = true
		c, err := buildClass(cs)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

func buildClass(cs *ClassSpec) (*dex.Class, error) {
	super := cs.Super
	if super == "" {
		super = dex.ObjectClass
	}
	c := dex.NewClass(cs.Name, super)
	c.Enum = cs.Enum

	for _, fs := range cs.Fields {
		f := &dex.Field{Name: fs.Name, Type: dex.ArgType(fs.Type), Static: fs.Static, Final: fs.Final}
		if fs.Value != nil {
			v, err := ParseValue(f.Type, *fs.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: class %s: field %s: %v", ErrInvalid, cs.Name, fs.Name, err)
			}
			f.Value = v
		}
		if err := c.AddField(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	for i := range cs.Methods {
		ms := &cs.Methods[i]
		m, err := buildMethod(c, ms)
		if err != nil {
			return nil, fmt.Errorf("%w: class %s: method %s%s: %w", ErrInvalid, cs.Name, ms.Name, ms.Proto, err)
		}
		if c.FindMethod(m.ShortID()) != nil {
			return nil, fmt.Errorf("%w: class %s: method %s declared twice", ErrInvalid, cs.Name, m.ShortID())
		}
		c.AddMethod(m)
	}
	c.Freeze()
	return c, nil
}

func buildMethod(c *dex.Class, ms *MethodSpec) (*dex.Method, error) {
	if ms.Name == "" || ms.Proto == "" {
		return nil, errors.New("missing name or proto")
	}
	m := dex.NewMethod(ms.Name, ms.Proto)
	m.Static = ms.Static
	m.NoCode = ms.NoCode

	switch {
	case ms.This != nil && ms.Static:
		return nil, errors.New("static method has a receiver")
	case ms.This != nil:
		m.This = &dex.RegArg{Reg: dex.Reg(*ms.This), Type: dex.ArgType(c.Name)}
	case !ms.Static && !ms.NoCode:
		return nil, errors.New("instance method needs a receiver register")
	}
	for _, p := range ms.Params {
		m.Params = append(m.Params, &dex.RegArg{Reg: dex.Reg(p.Reg), Name: p.Name, Type: dex.ArgType(p.Type)})
	}

	if ms.NoCode {
		if len(ms.Blocks) > 0 {
			return nil, errors.New("method without code has blocks")
		}
		return m, nil
	}
	if len(ms.Blocks) == 0 {
		return nil, errors.New("no blocks")
	}

	for bi, bs := range ms.Blocks {
		b := m.AddBlock()
		for ii, line := range bs.Insns {
			insn, err := dex.ParseInsn(line)
			if err != nil {
				return nil, fmt.Errorf("B%d[%d]: %w", bi, ii, err)
			}
			b.Insns = append(b.Insns, insn)
		}
	}
	n := len(ms.Blocks)
	for bi, bs := range ms.Blocks {
		for _, s := range bs.Succ {
			if s < 0 || s >= n {
				return nil, fmt.Errorf("B%d: successor B%d out of range", bi, s)
			}
			m.AddEdge(dex.BlockID(bi), dex.BlockID(s))
		}
	}

	for ti, ts := range ms.Tries {
		try := m.AddTry()
		for hi, hs := range ts.Handlers {
			h := &dex.Handler{Entry: dex.BlockID(hs.Entry), CatchAll: hs.CatchAll, Types: hs.Types}
			for _, b := range hs.Blocks {
				if b < 0 {
					return nil, fmt.Errorf("try %d handler %d: block B%d out of range", ti, hi, b)
				}
				h.Extent = append(h.Extent, dex.BlockID(b))
			}
			if hs.Entry < 0 {
				return nil, fmt.Errorf("try %d handler %d: entry B%d out of range", ti, hi, hs.Entry)
			}
			if !hs.CatchAll && len(hs.Types) == 0 {
				return nil, fmt.Errorf("try %d handler %d: no exception types", ti, hi)
			}
			if err := m.AddHandler(try.ID, h); err != nil {
				return nil, fmt.Errorf("try %d handler %d: %v", ti, hi, err)
			}
		}
	}
	return m, nil
}

// ParseValue converts a constant initializer given as text. Integral kinds
// narrower than long become int32, booleans 0 or 1. A char is a single
// character or its code.
func ParseValue(typ dex.ArgType, s string) (interface{}, error) {
	switch typ {
	case dex.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		if b {
			return int32(1), nil
		}
		return int32(0), nil
	case dex.TypeChar:
		if r := []rune(s); len(r) == 1 {
			return int32(r[0]), nil
		}
		fallthrough
	case dex.TypeByte, dex.TypeShort, dex.TypeInt:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return nil, err
		}
		return int32(v), nil
	case dex.TypeLong:
		return strconv.ParseInt(s, 0, 64)
	case dex.TypeFloat:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, err
		}
		return float32(v), nil
	case dex.TypeDouble:
		return strconv.ParseFloat(s, 64)
	case dex.TypeString:
		return s, nil
	}
	return nil, fmt.Errorf("no constant of type %q", typ)
}
