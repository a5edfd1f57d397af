// Package dex provides text printing for decoded classes.
// Instructions are printed in the syntax ParseInsn accepts.
package dex

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// Printer outputs classes and methods in text form
type Printer struct {
	w     io.Writer
	Color bool

	mnemonic func(a ...interface{}) string
	label    func(a ...interface{}) string
}

// NewPrinter creates a new printer writing to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:        w,
		mnemonic: color.New(color.FgCyan).SprintFunc(),
		label:    color.New(color.FgYellow, color.Bold).SprintFunc(),
	}
}

// PrintClasses prints several classes separated by blank lines
func (p *Printer) PrintClasses(classes []*Class) {
	for i, c := range classes {
		if i > 0 {
			fmt.Fprintln(p.w)
		}
		p.PrintClass(c)
	}
}

// PrintClass prints a class with its constant fields and methods
func (p *Printer) PrintClass(c *Class) {
	kind := "class"
	if c.Enum {
		kind = "enum"
	}
	fmt.Fprintf(p.w, "%s %s extends %s {\n", kind, c.Name, c.Super)
	for _, f := range c.Fields {
		p.printField(f)
	}
	for _, m := range c.Methods {
		fmt.Fprintln(p.w)
		p.PrintMethod(m)
	}
	fmt.Fprintln(p.w, "}")
}

func (p *Printer) printField(f *Field) {
	var mods []string
	if f.Static {
		mods = append(mods, "static")
	}
	if f.Final {
		mods = append(mods, "final")
	}
	mods = append(mods, string(f.Type), f.Name)
	line := strings.Join(mods, " ")
	if f.Value != nil {
		line += " = " + FormatValue(f.Value)
	}
	fmt.Fprintf(p.w, "  %s\n", line)
}

// PrintMethod prints the blocks, edges and try regions of a method
func (p *Printer) PrintMethod(m *Method) {
	fmt.Fprintf(p.w, "  %s(", m.ShortID())
	for i, a := range m.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s r%d", a.Type, a.Reg)
		if a.Name != "" {
			fmt.Fprintf(p.w, " %s", a.Name)
		}
	}
	fmt.Fprint(p.w, ")")
	if m.NoCode {
		fmt.Fprintln(p.w, " nocode")
		return
	}
	fmt.Fprintln(p.w, " {")
	if m.SuperCall != nil {
		fmt.Fprintf(p.w, "    super: %s\n", p.FormatInsn(m.SuperCall))
	}
	for _, b := range m.Blocks {
		p.printBlock(m, b)
	}
	for _, t := range m.Tries {
		for _, id := range t.Handlers {
			p.printHandler(t, m.Handlers[id])
		}
	}
	fmt.Fprintln(p.w, "  }")
}

func (p *Printer) printBlock(m *Method, b *Block) {
	head := fmt.Sprintf("B%d:", b.ID)
	if p.Color {
		head = p.label(head)
	}
	fmt.Fprintf(p.w, "    %s", head)
	if succ := m.CFG.Successors(b.ID); len(succ) > 0 {
		fmt.Fprint(p.w, " ->")
		for _, s := range succ {
			fmt.Fprintf(p.w, " B%d", s)
		}
	}
	if b.ExcHandler != nil {
		fmt.Fprintf(p.w, " (handler H%d)", b.ExcHandler.Handler)
	}
	fmt.Fprintln(p.w)
	for _, insn := range b.Insns {
		fmt.Fprintf(p.w, "      %s\n", p.FormatInsn(insn))
	}
}

func (p *Printer) printHandler(t *TryRegion, h *Handler) {
	fmt.Fprintf(p.w, "    try T%d: H%d", t.ID, h.ID)
	if h.CatchAll {
		fmt.Fprint(p.w, " catch-all")
	} else {
		fmt.Fprintf(p.w, " catch %s", strings.Join(h.Types, "|"))
	}
	fmt.Fprintf(p.w, " entry B%d [", h.Entry)
	for i, b := range h.Extent {
		if i > 0 {
			fmt.Fprint(p.w, " ")
		}
		fmt.Fprintf(p.w, "B%d", b)
	}
	fmt.Fprintln(p.w, "]")
}

// Format renders insn without color, for diagnostics
func Format(insn Instruction) string {
	return NewPrinter(io.Discard).FormatInsn(insn)
}

// FormatInsn renders a single instruction
func (p *Printer) FormatInsn(insn Instruction) string {
	var sb strings.Builder
	base := insn.Common()
	if base.Dest != nil {
		sb.WriteString(formatReg(base.Dest, true))
		sb.WriteString(" = ")
	}
	name := mnemonic(insn)
	if p.Color {
		name = p.mnemonic(name)
	}
	sb.WriteString(name)
	if ops := p.operands(insn); ops != "" {
		sb.WriteString(" ")
		sb.WriteString(ops)
	}
	if len(base.Attrs) > 0 {
		sb.WriteString(" ;")
		for _, k := range base.Attrs.Names() {
			sb.WriteString(" ")
			sb.WriteString(k)
			if v := base.Attrs[k]; v != "" {
				sb.WriteString("=")
				sb.WriteString(v)
			}
		}
	}
	return sb.String()
}

func mnemonic(insn Instruction) string {
	switch i := insn.(type) {
	case *Invoke:
		return "invoke-" + i.Type.String()
	case *Constructor:
		return "constructor-" + i.Type.String()
	case *Arith:
		return i.Op
	case *If:
		return i.Op
	}
	return insn.Kind().String()
}

func (p *Printer) operands(insn Instruction) string {
	args := insn.Common().Args
	switch i := insn.(type) {
	case *NewInstance:
		return i.Type
	case *NewArray:
		return join(p.formatArgs(args), string(i.Type))
	case *FillArray:
		data := make([]string, len(i.Data))
		for k, v := range i.Data {
			data[k] = literalValue(&LitArg{Type: elemType(i.Type), Value: v})
		}
		return join(p.formatArgs(args), fmt.Sprintf("%s {%s}", i.Type, strings.Join(data, ", ")))
	case *Invoke:
		return fmt.Sprintf("{%s}, %s", strings.Join(p.formatArgs(args), ", "), i.Call)
	case *Constructor:
		return fmt.Sprintf("{%s}, %s", strings.Join(p.formatArgs(args), ", "), i.Call)
	case *ConstString:
		return strconv.Quote(i.Value)
	case *SGet:
		return i.Field.String()
	case *SPut:
		return join(p.formatArgs(args), i.Field.String())
	case *IGet:
		return join(p.formatArgs(args), i.Field.String())
	case *IPut:
		return join(p.formatArgs(args), i.Field.String())
	}
	return strings.Join(p.formatArgs(args), ", ")
}

func join(args []string, tail string) string {
	return strings.Join(append(args, tail), ", ")
}

func (p *Printer) formatArgs(args []Operand) []string {
	out := make([]string, len(args))
	for k, a := range args {
		switch v := a.(type) {
		case *RegArg:
			out[k] = formatReg(v, false)
		case *LitArg:
			out[k] = FormatLiteral(v)
		case *InsnArg:
			out[k] = "(" + p.FormatInsn(v.Insn) + ")"
		}
	}
	return out
}

func formatReg(r *RegArg, withType bool) string {
	if withType && r.Type != TypeUnknown {
		return fmt.Sprintf("r%d:%s", r.Reg, r.Type)
	}
	return fmt.Sprintf("r%d", r.Reg)
}

func elemType(t ArgType) ArgType {
	return ArgType(strings.TrimSuffix(string(t), "[]"))
}

// FormatLiteral renders a literal as "<type> <value>", decoding float bit patterns
func FormatLiteral(l *LitArg) string {
	if l.Type == TypeUnknown {
		return literalValue(l)
	}
	return string(l.Type) + " " + literalValue(l)
}

func literalValue(l *LitArg) string {
	switch l.Type {
	case TypeFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(l.Value))), 'g', -1, 32)
	case TypeDouble:
		return strconv.FormatFloat(math.Float64frombits(uint64(l.Value)), 'g', -1, 64)
	}
	return strconv.FormatInt(l.Value, 10)
}

// FormatValue renders a constant field value
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	}
	return fmt.Sprint(v)
}
