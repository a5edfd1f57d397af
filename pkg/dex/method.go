package dex

import (
	"fmt"
	"math"
)

// ObjectClass is the universal root type
const ObjectClass = "java.lang.Object"

// Field is a class field. Value is set for static final fields with a constant
// initializer and holds an int32, int64, float32, float64 or string.
type Field struct {
	Name   string
	Type   ArgType
	Static bool
	Final  bool
	Value  interface{}
	Owner  string
}

// Ref returns the reference used by field access instructions
func (f *Field) Ref() FieldRef {
	return FieldRef{Owner: f.Owner, Name: f.Name, Type: f.Type}
}

// constKind partitions the constant-field table by literal type
type constKind byte

const (
	constInt constKind = iota
	constLong
	constFloat
	constDouble
	constString
)

type constKey struct {
	kind constKind
	bits uint64
	str  string
}

// Class owns fields, methods and the constant-field table
type Class struct {
	Name    string
	Super   string
	Enum    bool
	Fields  []*Field
	Methods []*Method

	consts map[constKey]*Field
	frozen bool
}

// NewClass creates an empty class
func NewClass(name, super string) *Class {
	return &Class{Name: name, Super: super, consts: make(map[constKey]*Field)}
}

// AddField appends a field and indexes it when it is a static final constant.
// The first field registered for a value wins.
func (c *Class) AddField(f *Field) error {
	if c.frozen {
		return fmt.Errorf("class %s: add field %s after freeze", c.Name, f.Name)
	}
	f.Owner = c.Name
	c.Fields = append(c.Fields, f)
	if !f.Static || !f.Final || f.Value == nil {
		return nil
	}
	if _, ok := f.Value.(int32); ok && f.Type != TypeInt {
		// int literals are only matched against int fields
		return nil
	}
	key, ok := keyOf(f.Value)
	if !ok {
		return fmt.Errorf("class %s: field %s: unsupported constant %T", c.Name, f.Name, f.Value)
	}
	if _, dup := c.consts[key]; !dup {
		c.consts[key] = f
	}
	return nil
}

// AddMethod appends a method and links it to the class
func (c *Class) AddMethod(m *Method) {
	m.Class = c
	c.Methods = append(c.Methods, m)
}

// Freeze seals the constant-field table; lookups are then safe from any goroutine
func (c *Class) Freeze() { c.frozen = true }

// FindMethod looks a method up by name and descriptor
func (c *Class) FindMethod(shortID string) *Method {
	for _, m := range c.Methods {
		if m.ShortID() == shortID {
			return m
		}
	}
	return nil
}

func keyOf(v interface{}) (constKey, bool) {
	switch x := v.(type) {
	case int32:
		return constKey{kind: constInt, bits: uint64(int64(x))}, true
	case int64:
		return constKey{kind: constLong, bits: uint64(x)}, true
	case float32:
		return constKey{kind: constFloat, bits: uint64(math.Float32bits(x))}, true
	case float64:
		return constKey{kind: constDouble, bits: math.Float64bits(x)}, true
	case string:
		return constKey{kind: constString, str: x}, true
	}
	return constKey{}, false
}

func (c *Class) lookup(v interface{}) *Field {
	key, ok := keyOf(v)
	if !ok {
		return nil
	}
	return c.consts[key]
}

// ConstInt finds a static final int field with value v
func (c *Class) ConstInt(v int32) *Field { return c.lookup(v) }

// ConstLong finds a static final long field with value v
func (c *Class) ConstLong(v int64) *Field { return c.lookup(v) }

// ConstFloat finds a static final float field with value v (compared bitwise)
func (c *Class) ConstFloat(v float32) *Field { return c.lookup(v) }

// ConstDouble finds a static final double field with value v (compared bitwise)
func (c *Class) ConstDouble(v float64) *Field { return c.lookup(v) }

// ConstString finds a static final String field initialized to v
func (c *Class) ConstString(v string) *Field { return c.lookup(v) }

// --- Blocks and exception handlers ---

// BlockID is the index of a block in its method
type BlockID int

// HandlerID is the index of a handler in its method's handler arena
type HandlerID int

// TryID is the index of a try region in its method
type TryID int

// ExcHandlerAttr marks a block as the entry of an exception handler
type ExcHandlerAttr struct {
	Try     TryID
	Handler HandlerID
}

// Block is a basic block
type Block struct {
	ID         BlockID
	Insns      []Instruction
	Attrs      AttrSet
	ExcHandler *ExcHandlerAttr
}

// Handler is an exception handler; Extent lists the blocks it executes
type Handler struct {
	ID       HandlerID
	Entry    BlockID
	Extent   []BlockID
	CatchAll bool
	Types    []string
	ExcReg   *Reg // register the caught exception was captured into, once known
}

// Contains reports whether b is part of the handler's extent
func (h *Handler) Contains(b BlockID) bool {
	for _, id := range h.Extent {
		if id == b {
			return true
		}
	}
	return false
}

// TryRegion groups the handlers guarding one protected range
type TryRegion struct {
	ID       TryID
	Handlers []HandlerID
}

// Method is a decoded method body
type Method struct {
	Class  *Class
	Name   string
	Proto  string
	Static bool
	NoCode bool

	This   *RegArg   // receiver, nil for static methods
	Params []*RegArg // formal parameters, excluding the receiver

	Blocks []*Block
	Entry  BlockID
	CFG    *CFG

	Tries    []*TryRegion
	Handlers []*Handler

	// SuperCall is the implicit super-constructor call recovered for a constructor
	SuperCall *Constructor

	handlerOf map[BlockID]HandlerID
}

// NewMethod creates a method with an empty CFG
func NewMethod(name, proto string) *Method {
	return &Method{
		Name:      name,
		Proto:     proto,
		CFG:       NewCFG(),
		handlerOf: make(map[BlockID]HandlerID),
	}
}

// ShortID is the name and descriptor
func (m *Method) ShortID() string { return m.Name + m.Proto }

// FullName includes the declaring class, for diagnostics
func (m *Method) FullName() string {
	if m.Class == nil {
		return m.ShortID()
	}
	return m.Class.Name + "." + m.ShortID()
}

// IsConstructor reports whether m is an instance initializer
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// IsClassInit reports whether m is the static initializer
func (m *Method) IsClassInit() bool { return m.Name == "<clinit>" }

// IsThis reports whether r is the receiver register of m
func (m *Method) IsThis(r Reg) bool { return m.This != nil && m.This.Reg == r }

// AddBlock appends a new empty block and returns it
func (m *Method) AddBlock() *Block {
	if m.CFG == nil {
		m.CFG = NewCFG()
	}
	b := &Block{ID: BlockID(len(m.Blocks))}
	m.Blocks = append(m.Blocks, b)
	m.CFG.AddBlock(b.ID)
	return b
}

// Block returns the block with the given id
func (m *Method) Block(id BlockID) *Block { return m.Blocks[id] }

// AddEdge records a successor edge
func (m *Method) AddEdge(from, to BlockID) { m.CFG.AddEdge(from, to) }

// AddTry creates an empty try region
func (m *Method) AddTry() *TryRegion {
	t := &TryRegion{ID: TryID(len(m.Tries))}
	m.Tries = append(m.Tries, t)
	return t
}

// AddHandler registers h in try region t, marks its entry block and indexes its extent.
// A block may belong to only one handler's extent.
func (m *Method) AddHandler(t TryID, h *Handler) error {
	if int(t) >= len(m.Tries) {
		return fmt.Errorf("%s: no try region %d", m.FullName(), t)
	}
	if int(h.Entry) >= len(m.Blocks) {
		return fmt.Errorf("%s: handler entry B%d out of range", m.FullName(), h.Entry)
	}
	if !h.Contains(h.Entry) {
		h.Extent = append([]BlockID{h.Entry}, h.Extent...)
	}
	for _, b := range h.Extent {
		if int(b) >= len(m.Blocks) {
			return fmt.Errorf("%s: handler block B%d out of range", m.FullName(), b)
		}
		if other, ok := m.handlerOf[b]; ok {
			return fmt.Errorf("%s: block B%d already in handler H%d", m.FullName(), b, other)
		}
	}
	entry := m.Blocks[h.Entry]
	if entry.ExcHandler != nil {
		return fmt.Errorf("%s: block B%d already a handler entry", m.FullName(), h.Entry)
	}
	if m.handlerOf == nil {
		m.handlerOf = make(map[BlockID]HandlerID)
	}
	h.ID = HandlerID(len(m.Handlers))
	m.Handlers = append(m.Handlers, h)
	for _, b := range h.Extent {
		m.handlerOf[b] = h.ID
	}
	m.Tries[t].Handlers = append(m.Tries[t].Handlers, h.ID)
	entry.ExcHandler = &ExcHandlerAttr{Try: t, Handler: h.ID}
	return nil
}

// Handler returns the handler with the given id
func (m *Method) Handler(id HandlerID) *Handler { return m.Handlers[id] }

// HandlerOf returns the handler whose extent contains b
func (m *Method) HandlerOf(b BlockID) (*Handler, bool) {
	id, ok := m.handlerOf[b]
	if !ok {
		return nil, false
	}
	return m.Handlers[id], true
}

// HasHandler reports whether try region t still owns handler h
func (m *Method) HasHandler(t TryID, h HandlerID) bool {
	for _, id := range m.Tries[t].Handlers {
		if id == h {
			return true
		}
	}
	return false
}

// RemoveHandler detaches handler h from try region t. The handler's blocks stay
// in the method as ordinary code.
func (m *Method) RemoveHandler(t TryID, h HandlerID) {
	try := m.Tries[t]
	kept := try.Handlers[:0]
	for _, id := range try.Handlers {
		if id != h {
			kept = append(kept, id)
		}
	}
	try.Handlers = kept

	handler := m.Handlers[h]
	for _, b := range handler.Extent {
		if m.handlerOf[b] == h {
			delete(m.handlerOf, b)
		}
	}
	if entry := m.Blocks[handler.Entry]; entry.ExcHandler != nil && entry.ExcHandler.Handler == h {
		entry.ExcHandler = nil
	}
}
