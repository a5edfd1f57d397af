package dataflow

import (
	"fmt"

	"github.com/raymyers/ralph-dex/pkg/dex"
)

// InlineError reports why a register argument cannot be inlined
type InlineError struct {
	Reg    dex.Reg
	Use    Site
	Reason string
}

func (e *InlineError) Error() string {
	return fmt.Sprintf("cannot inline r%d at B%d[%d]: %s", e.Reg, e.Use.Block, e.Use.Index, e.Reason)
}

// Inline is a planned substitution of a register argument by its definition.
// Def is Entry (and Insn nil) when the register holds a parameter or the
// receiver, in which case the argument stays a register.
type Inline struct {
	Reg  dex.Reg
	Def  Site
	Insn dex.Instruction
}

// Inliner plans argument inlining for one method. The reaching definitions are
// computed on first use and reused until Invalidate is called.
type Inliner struct {
	m  *dex.Method
	rd *ReachingDefs
}

// NewInliner creates an inliner for m
func NewInliner(m *dex.Method) *Inliner {
	return &Inliner{m: m}
}

// Invalidate drops the cached analysis; call it after instructions move
func (in *Inliner) Invalidate() { in.rd = nil }

// Plan decides whether reg, read by the instruction at use, can be replaced by
// the instruction defining it. The rule:
//   - exactly one definition of reg reaches use;
//   - a parameter or receiver needs no inlining;
//   - otherwise the definition sits earlier in the same block, has a result,
//     and is not a caught exception;
//   - no other read of reg is reached by that definition;
//   - nothing in between redefines a register the definition reads;
//   - a definition with side effects is not moved across another one.
func (in *Inliner) Plan(use Site, reg dex.Reg) (Inline, error) {
	if in.rd == nil {
		in.rd = Analyze(in.m)
	}
	fail := func(reason string) (Inline, error) {
		return Inline{}, &InlineError{Reg: reg, Use: use, Reason: reason}
	}

	defs := in.rd.DefsAt(use, reg)
	switch {
	case len(defs) == 0:
		return fail("register has no reaching definition")
	case len(defs) > 1:
		return fail(fmt.Sprintf("%d reaching definitions", len(defs)))
	}
	def := defs[0]
	if def == Entry {
		return Inline{Reg: reg, Def: Entry}, nil
	}
	if def.Block != use.Block || def.Index >= use.Index {
		return fail("definition is not earlier in the same block")
	}

	block := in.m.Blocks[def.Block]
	insn := block.Insns[def.Index]
	if insn.Common().Dest == nil {
		return fail("definition has no result operand")
	}
	if _, ok := insn.(*dex.MoveException); ok {
		return fail("definition captures a caught exception")
	}
	if uses := in.rd.Uses(def, reg); len(uses) != 1 {
		return fail(fmt.Sprintf("definition has %d uses", len(uses)))
	}

	reads := dex.Uses(insn)
	effects := dex.HasSideEffects(insn)
	for i := def.Index + 1; i < use.Index; i++ {
		mid := block.Insns[i]
		for _, r := range Defs(in.m, mid) {
			for _, x := range reads {
				if r == x {
					return fail(fmt.Sprintf("operand r%d redefined before use", x))
				}
			}
		}
		if effects && dex.HasSideEffects(mid) {
			return fail("would reorder side effects")
		}
	}
	return Inline{Reg: reg, Def: def, Insn: insn}, nil
}
