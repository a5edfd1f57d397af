package cleanup

import "github.com/raymyers/ralph-dex/pkg/dex"

// EliminateDead removes instructions that carry no meaning in source form and
// returns how many were removed:
//   - nop, goto and new-instance (edges and constructor calls already express them);
//   - new-array directly followed by fill-array, which takes over its result;
//   - a bare return ending the only block of a method, or any bare return in a
//     static initializer.
func EliminateDead(m *dex.Method) int {
	removed := 0
	single := len(m.Blocks) == 1
	for _, b := range m.Blocks {
		r := dex.NewRemover(b)
		insns := b.Insns
		for i, insn := range insns {
			switch in := insn.(type) {
			case *dex.Nop, *dex.Goto, *dex.NewInstance:
				r.Add(i)

			case *dex.NewArray:
				if i+1 < len(insns) {
					if fill, ok := insns[i+1].(*dex.FillArray); ok {
						absorbAllocation(fill, in)
						r.Add(i)
					}
				}

			case *dex.Return:
				if len(in.Args) > 0 {
					break
				}
				if (single && i == len(insns)-1) || m.IsClassInit() {
					r.Add(i)
				}
			}
		}
		removed += r.Perform()
	}
	return removed
}

// absorbAllocation moves the allocation's result and attributes into the fill
// instruction
func absorbAllocation(fill *dex.FillArray, alloc *dex.NewArray) {
	fill.Attrs.Merge(alloc.Attrs)
	if alloc.Dest != nil {
		if fill.Dest == nil {
			fill.Dest = alloc.Dest.Copy()
		} else {
			fill.Dest.Merge(alloc.Dest)
		}
		if fill.Dest.Type == dex.TypeUnknown {
			fill.Dest.Type = alloc.Type
		}
	}
	if fill.Type == dex.TypeUnknown {
		fill.Type = alloc.Type
	}
}
