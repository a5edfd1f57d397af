package cleanup

import (
	"github.com/rs/zerolog"

	"github.com/raymyers/ralph-dex/pkg/dex"
)

// SimplifyHandlers simplifies every exception handler whose entry block is in m.
// Handlers are independent of each other.
func SimplifyHandlers(m *dex.Method, log zerolog.Logger) Stats {
	var st Stats
	for _, b := range m.Blocks {
		if b.ExcHandler != nil {
			simplifyHandler(m, b, log, &st)
		}
	}
	return st
}

func simplifyHandler(m *dex.Method, entry *dex.Block, log zerolog.Logger, st *Stats) {
	attr := *entry.ExcHandler
	if !m.HasHandler(attr.Try, attr.Handler) {
		return
	}
	h := m.Handler(attr.Handler)

	if len(entry.Insns) > 0 {
		if mv, ok := entry.Insns[0].(*dex.MoveException); ok {
			if mv.Dest != nil {
				reg := mv.Dest.Reg
				h.ExcReg = &reg
			}
			dex.RemoveAt(entry, 0)
			st.Removed++
		}
	}

	aliases := excAliases(m, h)
	rethrown := false
	noExit := true
	for _, id := range h.Extent {
		b := m.Block(id)
		if noExit {
			for _, s := range m.CFG.Successors(id) {
				if !h.Contains(s) {
					noExit = false
					break
				}
			}
		}

		n := len(b.Insns)
		if !h.CatchAll || n == 0 || !isRethrow(h, aliases, b.Insns[n-1]) {
			continue
		}
		rethrown = true
		r := dex.NewRemover(b)
		r.Add(n - 1)
		markCopies(r, b.Insns, aliases)
		st.Removed += r.Perform()
		if left := len(b.Insns); left > 0 {
			// A finally tail; it is dropped rather than extracted.
			log.Debug().
				Str("method", m.FullName()).
				Int("block", int(id)).
				Int("insns", left).
				Msg("discarding instructions before catch-all rethrow")
			clear(b.Insns)
			b.Insns = b.Insns[:0]
			st.Removed += left
		}
	}

	remaining := 0
	for _, id := range h.Extent {
		b := m.Block(id)
		if rethrown {
			// copies of the exception are dead once the rethrow is gone
			r := dex.NewRemover(b)
			markCopies(r, b.Insns, aliases)
			st.Removed += r.Perform()
		}
		remaining += len(b.Insns)
	}

	if remaining == 0 && noExit {
		m.RemoveHandler(attr.Try, attr.Handler)
		st.HandlersRemoved++
	}
}

// excAliases returns the registers holding the exception caught by h: the
// captured register and its move copies inside the handler. Nil when the
// handler never captured the exception.
func excAliases(m *dex.Method, h *dex.Handler) map[dex.Reg]bool {
	if h.ExcReg == nil {
		return nil
	}
	aliases := map[dex.Reg]bool{*h.ExcReg: true}
	for _, id := range h.Extent {
		for _, insn := range m.Block(id).Insns {
			base := insn.Common()
			if base.Dest == nil {
				continue
			}
			if isCopy(aliases, insn) {
				aliases[base.Dest.Reg] = true
			} else if base.Dest.Reg != *h.ExcReg {
				delete(aliases, base.Dest.Reg)
			}
		}
	}
	return aliases
}

// isCopy reports whether insn is a move from one of the aliases
func isCopy(aliases map[dex.Reg]bool, insn dex.Instruction) bool {
	mv, ok := insn.(*dex.Move)
	if !ok || mv.Dest == nil || len(mv.Args) != 1 {
		return false
	}
	r, ok := mv.Args[0].(*dex.RegArg)
	return ok && aliases[r.Reg]
}

func markCopies(r *dex.Remover, insns []dex.Instruction, aliases map[dex.Reg]bool) {
	for i, insn := range insns {
		if isCopy(aliases, insn) && aliases[insn.Common().Dest.Reg] {
			r.Add(i)
		}
	}
}

// isRethrow reports whether insn throws the exception caught by h
func isRethrow(h *dex.Handler, aliases map[dex.Reg]bool, insn dex.Instruction) bool {
	th, ok := insn.(*dex.Throw)
	if !ok {
		return false
	}
	if h.ExcReg == nil {
		return true
	}
	if len(th.Args) != 1 {
		return false
	}
	r, ok := th.Args[0].(*dex.RegArg)
	return ok && aliases[r.Reg]
}
