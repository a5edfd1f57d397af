// Package dex defines the decoded method representation consumed by the cleanup stage.
// A method is a graph of basic blocks holding register-VM instructions, with exception
// handlers grouped into try regions. Instructions form a closed set of variants.
package dex

import (
	"sort"
	"strings"
)

// Reg is a virtual-machine register number
type Reg int

// ArgType names the type of an operand ("int", "float", "java.lang.String", "int[]").
// The empty type means unknown.
type ArgType string

const (
	TypeUnknown ArgType = ""
	TypeBoolean ArgType = "boolean"
	TypeByte    ArgType = "byte"
	TypeShort   ArgType = "short"
	TypeChar    ArgType = "char"
	TypeInt     ArgType = "int"
	TypeLong    ArgType = "long"
	TypeFloat   ArgType = "float"
	TypeDouble  ArgType = "double"
	TypeString  ArgType = "java.lang.String"
	TypeObject  ArgType = "java.lang.Object"
)

// IsArray reports whether t is an array type
func (t ArgType) IsArray() bool {
	return strings.HasSuffix(string(t), "[]")
}

// IsIntLike reports whether values of t are held as 32-bit integers
func (t ArgType) IsIntLike() bool {
	switch t {
	case TypeBoolean, TypeByte, TypeShort, TypeChar, TypeInt:
		return true
	}
	return false
}

// AttrSet is a set of instruction or operand attributes (name -> value).
// Attribute sets of distinct instructions never share a name, so merging is a plain union.
type AttrSet map[string]string

// Add sets an attribute, allocating the set if needed
func (a *AttrSet) Add(name, value string) {
	if *a == nil {
		*a = make(AttrSet)
	}
	(*a)[name] = value
}

// Has reports whether the attribute is present
func (a AttrSet) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// Merge copies every attribute of other into a
func (a *AttrSet) Merge(other AttrSet) {
	for k, v := range other {
		a.Add(k, v)
	}
}

// Names returns the attribute names in sorted order
func (a AttrSet) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// --- Operands ---

// Operand is an instruction argument: a register, a literal, or an inlined instruction
type Operand interface {
	implOperand()
}

// RegArg references a register. Name is the display name of a formal parameter.
type RegArg struct {
	Reg   Reg
	Type  ArgType
	Name  string
	Attrs AttrSet
}

// LitArg is a literal. Value holds the raw bits: floats and doubles are stored as
// their IEEE-754 bit patterns, as the bytecode encodes them.
type LitArg struct {
	Type  ArgType
	Value int64
}

// InsnArg wraps an instruction whose result was inlined into the using instruction
type InsnArg struct {
	Insn Instruction
}

func (*RegArg) implOperand()  {}
func (*LitArg) implOperand()  {}
func (*InsnArg) implOperand() {}

// Merge folds another result operand describing the same value into r
func (r *RegArg) Merge(other *RegArg) {
	if other == nil {
		return
	}
	if r.Type == TypeUnknown {
		r.Type = other.Type
	}
	if r.Name == "" {
		r.Name = other.Name
	}
	r.Attrs.Merge(other.Attrs)
}

// Copy returns a shallow copy with its own attribute set
func (r *RegArg) Copy() *RegArg {
	c := *r
	c.Attrs = nil
	c.Attrs.Merge(r.Attrs)
	return &c
}

// --- References ---

// MethodRef identifies a called method
type MethodRef struct {
	Owner string // declaring class
	Name  string
	Proto string // descriptor, e.g. "(I)V"
}

// IsConstructor reports whether the reference names an instance initializer
func (m MethodRef) IsConstructor() bool { return m.Name == "<init>" }

// ShortID is the name and descriptor, unique within the declaring class
func (m MethodRef) ShortID() string { return m.Name + m.Proto }

func (m MethodRef) String() string { return m.Owner + "." + m.Name + m.Proto }

// FieldRef identifies a field
type FieldRef struct {
	Owner string
	Name  string
	Type  ArgType
}

func (f FieldRef) String() string {
	if f.Type == TypeUnknown {
		return f.Owner + "." + f.Name
	}
	return f.Owner + "." + f.Name + ":" + string(f.Type)
}

// --- Instructions ---

// Kind is the instruction kind, used for dispatch-free inspection and printing
type Kind int

const (
	KindNop Kind = iota
	KindGoto
	KindNewInstance
	KindNewArray
	KindFillArray
	KindInvoke
	KindConst
	KindConstString
	KindSGet
	KindSPut
	KindIGet
	KindIPut
	KindMove
	KindArith
	KindIf
	KindReturn
	KindMoveException
	KindThrow
	KindConstructor
)

var kindNames = []string{
	"nop", "goto", "new-instance", "new-array", "fill-array", "invoke", "const",
	"const-string", "sget", "sput", "iget", "iput", "move", "arith", "if", "return",
	"move-exception", "throw", "constructor",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "?"
}

// Base holds the fields shared by every instruction
type Base struct {
	Dest  *RegArg   // result operand, nil if none
	Args  []Operand // argument operands
	Attrs AttrSet
}

// Instruction is the interface for all instruction variants
type Instruction interface {
	Common() *Base
	Kind() Kind
	implInstruction()
}

// Nop does nothing
type Nop struct{ Base }

// Goto is an unconditional jump; the target is the block's single successor edge
type Goto struct{ Base }

// NewInstance allocates an uninitialized object: dest = new Type
type NewInstance struct {
	Base
	Type string
}

// NewArray allocates an array: dest = new Type[args[0]]
type NewArray struct {
	Base
	Type ArgType
}

// FillArray stores literal Data into the array args[0]
type FillArray struct {
	Base
	Type ArgType
	Data []int64
}

// InvokeKind is the dispatch kind of an invoke
type InvokeKind int

const (
	InvokeDirect InvokeKind = iota
	InvokeVirtual
	InvokeStatic
	InvokeSuper
	InvokeInterface
)

var invokeKindNames = []string{"direct", "virtual", "static", "super", "interface"}

func (k InvokeKind) String() string {
	if int(k) < len(invokeKindNames) {
		return invokeKindNames[k]
	}
	return "?"
}

// Invoke calls a method. For non-static calls args[0] is the receiver.
type Invoke struct {
	Base
	Type InvokeKind
	Call MethodRef
}

// Const loads a literal: dest = args[0]
type Const struct{ Base }

// ConstString loads a pool-indexed string constant
type ConstString struct {
	Base
	Value string
}

// SGet reads a static field
type SGet struct {
	Base
	Field FieldRef
}

// SPut writes args[0] to a static field
type SPut struct {
	Base
	Field FieldRef
}

// IGet reads an instance field of object args[0]
type IGet struct {
	Base
	Field FieldRef
}

// IPut writes args[0] into the field of object args[1]
type IPut struct {
	Base
	Field FieldRef
}

// Move copies a register: dest = args[0]
type Move struct{ Base }

// Arith is a unary or binary arithmetic operation, e.g. "add-int"
type Arith struct {
	Base
	Op string
}

// If is a conditional branch, e.g. "if-eqz"; targets are the block's successor edges
type If struct {
	Base
	Op string
}

// Return returns args[0], or nothing when there are no args
type Return struct{ Base }

// MoveException stores the caught exception into dest
type MoveException struct{ Base }

// Throw throws args[0]
type Throw struct{ Base }

// CtorKind is the kind of a structured constructor call
type CtorKind int

const (
	CtorNew   CtorKind = iota // new T(...)
	CtorSuper                 // super(...)
	CtorThis                  // this(...)
)

var ctorKindNames = []string{"new", "super", "this"}

func (k CtorKind) String() string {
	if int(k) < len(ctorKindNames) {
		return ctorKindNames[k]
	}
	return "?"
}

// Constructor is a normalized constructor invocation. Args exclude the receiver;
// for CtorNew the constructed object is dest.
type Constructor struct {
	Base
	Type CtorKind
	Call MethodRef
}

func (i *Nop) Common() *Base           { return &i.Base }
func (i *Goto) Common() *Base          { return &i.Base }
func (i *NewInstance) Common() *Base   { return &i.Base }
func (i *NewArray) Common() *Base      { return &i.Base }
func (i *FillArray) Common() *Base     { return &i.Base }
func (i *Invoke) Common() *Base        { return &i.Base }
func (i *Const) Common() *Base         { return &i.Base }
func (i *ConstString) Common() *Base   { return &i.Base }
func (i *SGet) Common() *Base          { return &i.Base }
func (i *SPut) Common() *Base          { return &i.Base }
func (i *IGet) Common() *Base          { return &i.Base }
func (i *IPut) Common() *Base          { return &i.Base }
func (i *Move) Common() *Base          { return &i.Base }
func (i *Arith) Common() *Base         { return &i.Base }
func (i *If) Common() *Base            { return &i.Base }
func (i *Return) Common() *Base        { return &i.Base }
func (i *MoveException) Common() *Base { return &i.Base }
func (i *Throw) Common() *Base         { return &i.Base }
func (i *Constructor) Common() *Base   { return &i.Base }

func (*Nop) Kind() Kind           { return KindNop }
func (*Goto) Kind() Kind          { return KindGoto }
func (*NewInstance) Kind() Kind   { return KindNewInstance }
func (*NewArray) Kind() Kind      { return KindNewArray }
func (*FillArray) Kind() Kind     { return KindFillArray }
func (*Invoke) Kind() Kind        { return KindInvoke }
func (*Const) Kind() Kind         { return KindConst }
func (*ConstString) Kind() Kind   { return KindConstString }
func (*SGet) Kind() Kind          { return KindSGet }
func (*SPut) Kind() Kind          { return KindSPut }
func (*IGet) Kind() Kind          { return KindIGet }
func (*IPut) Kind() Kind          { return KindIPut }
func (*Move) Kind() Kind          { return KindMove }
func (*Arith) Kind() Kind         { return KindArith }
func (*If) Kind() Kind            { return KindIf }
func (*Return) Kind() Kind        { return KindReturn }
func (*MoveException) Kind() Kind { return KindMoveException }
func (*Throw) Kind() Kind         { return KindThrow }
func (*Constructor) Kind() Kind   { return KindConstructor }

// Marker methods for Instruction interface
func (*Nop) implInstruction()           {}
func (*Goto) implInstruction()          {}
func (*NewInstance) implInstruction()   {}
func (*NewArray) implInstruction()      {}
func (*FillArray) implInstruction()     {}
func (*Invoke) implInstruction()        {}
func (*Const) implInstruction()         {}
func (*ConstString) implInstruction()   {}
func (*SGet) implInstruction()          {}
func (*SPut) implInstruction()          {}
func (*IGet) implInstruction()          {}
func (*IPut) implInstruction()          {}
func (*Move) implInstruction()          {}
func (*Arith) implInstruction()         {}
func (*If) implInstruction()            {}
func (*Return) implInstruction()        {}
func (*MoveException) implInstruction() {}
func (*Throw) implInstruction()         {}
func (*Constructor) implInstruction()   {}

// HasSideEffects reports whether executing the instruction can be observed
// beyond writing its result register.
func HasSideEffects(insn Instruction) bool {
	switch insn.(type) {
	case *Invoke, *Constructor, *SPut, *IPut, *FillArray, *Throw, *Return,
		*SGet, *IGet, *NewInstance, *NewArray, *MoveException:
		return true
	case *Nop, *Goto, *Const, *ConstString, *Move, *Arith, *If:
		return false
	}
	return true
}

// Uses returns the registers read by the instruction, including those inside
// inlined operands.
func Uses(insn Instruction) []Reg {
	var regs []Reg
	var walk func(ops []Operand)
	walk = func(ops []Operand) {
		for _, op := range ops {
			switch a := op.(type) {
			case *RegArg:
				regs = append(regs, a.Reg)
			case *InsnArg:
				walk(a.Insn.Common().Args)
			}
		}
	}
	walk(insn.Common().Args)
	return regs
}
