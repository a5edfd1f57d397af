package dex

// Remover collects instructions to delete from a block while the block is being
// scanned, then compacts the block in one pass. Marks are indices into the
// instruction slice as it was when the remover was created.
type Remover struct {
	block  *Block
	marked []bool
	count  int
}

// NewRemover creates a remover for b
func NewRemover(b *Block) *Remover {
	return &Remover{block: b, marked: make([]bool, len(b.Insns))}
}

// Add marks the instruction at index i for removal
func (r *Remover) Add(i int) {
	if i < 0 || i >= len(r.marked) || r.marked[i] {
		return
	}
	r.marked[i] = true
	r.count++
}

// Marked reports whether index i is marked
func (r *Remover) Marked(i int) bool {
	return i >= 0 && i < len(r.marked) && r.marked[i]
}

// Len returns the number of marked instructions
func (r *Remover) Len() int { return r.count }

// Perform removes the marked instructions, keeping the order of the others,
// and returns how many were removed.
func (r *Remover) Perform() int {
	if r.count == 0 {
		return 0
	}
	insns := r.block.Insns
	n := 0
	for i, insn := range insns {
		if i < len(r.marked) && r.marked[i] {
			continue
		}
		insns[n] = insn
		n++
	}
	for j := n; j < len(insns); j++ {
		insns[j] = nil
	}
	r.block.Insns = insns[:n]
	removed := r.count
	r.marked = make([]bool, n)
	r.count = 0
	return removed
}

// RemoveAt deletes the instruction at index i of b
func RemoveAt(b *Block, i int) {
	r := NewRemover(b)
	r.Add(i)
	r.Perform()
}

// Replace puts insn at index i of b. The replaced instruction's attributes are
// copied onto insn.
func Replace(b *Block, i int, insn Instruction) {
	old := b.Insns[i]
	insn.Common().Attrs.Merge(old.Common().Attrs)
	b.Insns[i] = insn
}
