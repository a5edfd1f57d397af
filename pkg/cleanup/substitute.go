package cleanup

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/raymyers/ralph-dex/pkg/dataflow"
	"github.com/raymyers/ralph-dex/pkg/dex"
)

// literalThreshold bounds integer literals left inline without a field lookup
const literalThreshold = 0xFF

// ArgInliner plans the inlining of register arguments within one method
type ArgInliner interface {
	Plan(use dataflow.Site, reg dex.Reg) (dataflow.Inline, error)
	Invalidate()
}

// Substituter normalizes constructor invokes and replaces literal loads with
// reads of the constant fields that hold the same value.
type Substituter struct {
	log        zerolog.Logger
	newInliner func(*dex.Method) ArgInliner
}

// NewSubstituter creates a substituter. A nil newInliner selects dataflow.NewInliner.
func NewSubstituter(log zerolog.Logger, newInliner func(*dex.Method) ArgInliner) *Substituter {
	if newInliner == nil {
		newInliner = func(m *dex.Method) ArgInliner { return dataflow.NewInliner(m) }
	}
	return &Substituter{log: log, newInliner: newInliner}
}

// blockScan is the state of one forward scan over a block
type blockScan struct {
	m     *dex.Method
	b     *dex.Block
	r     *dex.Remover
	inl   ArgInliner
	stats *Stats
}

// Substitute runs over every block of m
func (s *Substituter) Substitute(m *dex.Method) Stats {
	var st Stats
	inl := s.newInliner(m)
	for _, b := range m.Blocks {
		scan := &blockScan{m: m, b: b, r: dex.NewRemover(b), inl: inl, stats: &st}
		for i := range b.Insns {
			switch insn := b.Insns[i].(type) {
			case *dex.Invoke:
				if insn.Call.IsConstructor() {
					s.constructor(scan, i, insn)
				}
			case *dex.Const, *dex.ConstString:
				s.literal(scan, i, insn)
			}
		}
		if n := scan.r.Perform(); n > 0 {
			st.Removed += n
			inl.Invalidate()
		}
	}
	return st
}

// NewConstructor builds the structured form of a constructor invoke
func NewConstructor(m *dex.Method, inv *dex.Invoke) *dex.Constructor {
	c := &dex.Constructor{Type: dex.CtorNew, Call: inv.Call}
	if len(inv.Args) == 0 {
		return c
	}
	c.Args = append([]dex.Operand(nil), inv.Args[1:]...)
	recv, ok := inv.Args[0].(*dex.RegArg)
	if !ok {
		return c
	}
	if m.IsConstructor() && m.IsThis(recv.Reg) {
		if m.Class != nil && inv.Call.Owner == m.Class.Name {
			c.Type = dex.CtorThis
		} else {
			c.Type = dex.CtorSuper
		}
		return c
	}
	c.Dest = recv.Copy()
	return c
}

func (s *Substituter) constructor(scan *blockScan, i int, inv *dex.Invoke) {
	c := NewConstructor(scan.m, inv)
	switch {
	case c.Type == dex.CtorSuper:
		s.superCall(scan, i, inv, c)

	case c.Type == dex.CtorThis && len(c.Args) == 0:
		// a missing or synthesized default constructor is called implicitly
		var target *dex.Method
		if scan.m.Class != nil {
			target = scan.m.Class.FindMethod(c.Call.ShortID())
		}
		if target == nil || target.NoCode {
			scan.r.Add(i)
			return
		}
		s.replace(scan, i, c)

	default:
		s.replace(scan, i, c)
	}
}

func (s *Substituter) superCall(scan *blockScan, i int, inv *dex.Invoke, c *dex.Constructor) {
	if c.Call.Owner == dex.ObjectClass {
		scan.r.Add(i)
		return
	}
	plans, err := s.planArgs(scan, i, c)
	if err != nil {
		s.log.Warn().Err(err).
			Str("method", scan.m.FullName()).
			Str("insn", dex.Format(inv)).
			Msg("can't inline args into super call")
		scan.stats.InlineFailures++
		s.replace(scan, i, c)
		return
	}
	for k, p := range plans {
		if p.Insn == nil {
			continue
		}
		c.Args[k] = &dex.InsnArg{Insn: p.Insn}
		scan.r.Add(p.Def.Index)
	}
	if scan.m.Class == nil || !scan.m.Class.Enum {
		scan.m.SuperCall = c
	}
	scan.r.Add(i)
}

// planArgs plans every register argument of c; it fails as soon as one cannot be inlined
func (s *Substituter) planArgs(scan *blockScan, i int, c *dex.Constructor) (map[int]dataflow.Inline, error) {
	plans := make(map[int]dataflow.Inline)
	use := dataflow.Site{Block: scan.b.ID, Index: i}
	for k, arg := range c.Args {
		reg, ok := arg.(*dex.RegArg)
		if !ok {
			continue
		}
		p, err := scan.inl.Plan(use, reg.Reg)
		if err != nil {
			return nil, err
		}
		if p.Insn != nil && scan.r.Marked(p.Def.Index) {
			return nil, &dataflow.InlineError{Reg: reg.Reg, Use: use, Reason: "definition already removed"}
		}
		plans[k] = p
	}
	return plans, nil
}

func (s *Substituter) literal(scan *blockScan, i int, insn dex.Instruction) {
	if scan.m.Class == nil {
		return
	}
	f := constFieldFor(scan.m.Class, insn)
	if f == nil {
		return
	}
	get := &dex.SGet{Base: dex.Base{Dest: insn.Common().Dest}, Field: f.Ref()}
	s.replace(scan, i, get)
	scan.stats.Fields++
}

// constFieldFor finds the constant field matching a literal load, if any
func constFieldFor(cls *dex.Class, insn dex.Instruction) *dex.Field {
	switch in := insn.(type) {
	case *dex.ConstString:
		return cls.ConstString(in.Value)
	case *dex.Const:
		if len(in.Args) != 1 {
			return nil
		}
		lit, ok := in.Args[0].(*dex.LitArg)
		if !ok {
			return nil
		}
		big := lit.Value > literalThreshold || lit.Value < -literalThreshold
		switch {
		case lit.Type == dex.TypeInt:
			if big && lit.Value >= math.MinInt32 && lit.Value <= math.MaxInt32 {
				return cls.ConstInt(int32(lit.Value))
			}
		case lit.Type == dex.TypeLong:
			if big {
				return cls.ConstLong(lit.Value)
			}
		case lit.Type == dex.TypeFloat:
			return cls.ConstFloat(math.Float32frombits(uint32(lit.Value)))
		case lit.Type == dex.TypeDouble:
			return cls.ConstDouble(math.Float64frombits(uint64(lit.Value)))
		}
	}
	return nil
}

func (s *Substituter) replace(scan *blockScan, i int, insn dex.Instruction) {
	dex.Replace(scan.b, i, insn)
	scan.stats.Replaced++
}
