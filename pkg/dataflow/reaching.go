// Package dataflow computes reaching definitions over a method's block graph and
// uses them to decide when a register argument can be replaced by the instruction
// that defined it.
package dataflow

import (
	"sort"

	"github.com/oleiade/lane"

	"github.com/raymyers/ralph-dex/pkg/dex"
)

// Site locates an instruction by block and index
type Site struct {
	Block dex.BlockID
	Index int
}

// Entry is the synthetic site defining the receiver and formal parameters
var Entry = Site{Block: -1, Index: -1}

type siteSet map[Site]struct{}

// regDefs maps a register to the definitions of it that reach a program point
type regDefs map[dex.Reg]siteSet

// ReachingDefs holds the definitions reaching the entry of every block
type ReachingDefs struct {
	m  *dex.Method
	in []regDefs
}

// Defs returns the registers written by insn. A constructor invoke initializes
// its receiver, unless the receiver is the method's own this.
func Defs(m *dex.Method, insn dex.Instruction) []dex.Reg {
	base := insn.Common()
	if base.Dest != nil {
		return []dex.Reg{base.Dest.Reg}
	}
	if inv, ok := insn.(*dex.Invoke); ok && inv.Call.IsConstructor() && len(inv.Args) > 0 {
		if r, ok := inv.Args[0].(*dex.RegArg); ok && !m.IsThis(r.Reg) {
			return []dex.Reg{r.Reg}
		}
	}
	return nil
}

// Analyze computes reaching definitions for m
func Analyze(m *dex.Method) *ReachingDefs {
	n := len(m.Blocks)
	gen := make([]map[dex.Reg]Site, n)
	for _, b := range m.Blocks {
		g := make(map[dex.Reg]Site)
		for i, insn := range b.Insns {
			for _, r := range Defs(m, insn) {
				g[r] = Site{Block: b.ID, Index: i}
			}
		}
		gen[b.ID] = g
	}

	entry := make(regDefs)
	if m.This != nil {
		entry.add(m.This.Reg, Entry)
	}
	for _, p := range m.Params {
		entry.add(p.Reg, Entry)
	}

	rd := &ReachingDefs{m: m, in: make([]regDefs, n)}
	out := make([]regDefs, n)
	for i := range out {
		rd.in[i] = make(regDefs)
		out[i] = make(regDefs)
	}

	q := lane.NewQueue()
	queued := make([]bool, n)
	for i := 0; i < n; i++ {
		q.Enqueue(dex.BlockID(i))
		queued[i] = true
	}
	for !q.Empty() {
		b := q.Dequeue().(dex.BlockID)
		queued[b] = false

		in := make(regDefs)
		if b == m.Entry {
			in.union(entry)
		}
		for _, p := range m.CFG.Predecessors(b) {
			in.union(out[p])
		}
		rd.in[b] = in

		next := make(regDefs)
		next.union(in)
		for r, s := range gen[b] {
			next[r] = siteSet{s: {}}
		}
		if next.equal(out[b]) {
			continue
		}
		out[b] = next
		for _, s := range m.CFG.Successors(b) {
			if !queued[s] {
				q.Enqueue(s)
				queued[s] = true
			}
		}
	}
	return rd
}

// DefsAt returns the definitions of reg that reach the instruction at use
func (rd *ReachingDefs) DefsAt(use Site, reg dex.Reg) []Site {
	cur := rd.in[use.Block][reg]
	b := rd.m.Blocks[use.Block]
	for i := 0; i < use.Index && i < len(b.Insns); i++ {
		if defines(rd.m, b.Insns[i], reg) {
			cur = siteSet{Site{Block: use.Block, Index: i}: {}}
		}
	}
	return cur.sorted()
}

// Uses returns every read of reg reached by def, once per operand occurrence
func (rd *ReachingDefs) Uses(def Site, reg dex.Reg) []Site {
	var uses []Site
	for _, b := range rd.m.Blocks {
		_, live := rd.in[b.ID][reg][def]
		for i, insn := range b.Insns {
			if live {
				for _, r := range dex.Uses(insn) {
					if r == reg {
						uses = append(uses, Site{Block: b.ID, Index: i})
					}
				}
			}
			if defines(rd.m, insn, reg) {
				live = def.Block == b.ID && def.Index == i
			}
		}
	}
	return uses
}

func defines(m *dex.Method, insn dex.Instruction, reg dex.Reg) bool {
	for _, r := range Defs(m, insn) {
		if r == reg {
			return true
		}
	}
	return false
}

func (d regDefs) add(r dex.Reg, s Site) {
	set, ok := d[r]
	if !ok {
		set = make(siteSet)
		d[r] = set
	}
	set[s] = struct{}{}
}

func (d regDefs) union(other regDefs) {
	for r, set := range other {
		for s := range set {
			d.add(r, s)
		}
	}
}

func (d regDefs) equal(other regDefs) bool {
	if len(d) != len(other) {
		return false
	}
	for r, set := range d {
		o, ok := other[r]
		if !ok || len(o) != len(set) {
			return false
		}
		for s := range set {
			if _, ok := o[s]; !ok {
				return false
			}
		}
	}
	return true
}

func (s siteSet) sorted() []Site {
	sites := make([]Site, 0, len(s))
	for site := range s {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Block != sites[j].Block {
			return sites[i].Block < sites[j].Block
		}
		return sites[i].Index < sites[j].Index
	})
	return sites
}
