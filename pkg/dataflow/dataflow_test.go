package dataflow

import (
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/ralph-dex/pkg/dex"
)

// build creates a method from per-block instruction text and an edge list
func build(t *testing.T, blocks [][]string, edges [][2]int) *dex.Method {
	t.Helper()
	m := dex.NewMethod("<init>", "(I)V")
	m.This = &dex.RegArg{Reg: 0}
	m.Params = []*dex.RegArg{{Reg: 1, Type: dex.TypeInt}}
	c := dex.NewClass("com.example.A", "com.example.Base")
	c.AddMethod(m)
	for _, lines := range blocks {
		b := m.AddBlock()
		for _, line := range lines {
			insn, err := dex.ParseInsn(line)
			require.NoError(t, err, line)
			b.Insns = append(b.Insns, insn)
		}
	}
	for _, e := range edges {
		m.AddEdge(dex.BlockID(e[0]), dex.BlockID(e[1]))
	}
	return m
}

func TestReachingStraightLine(t *testing.T) {
	m := build(t, [][]string{{
		"r2 = const int 1",
		"r2 = const int 2",
		"r3 = add-int r2, r1",
	}}, nil)
	rd := Analyze(m)

	assert.Equal(t, []Site{{Block: 0, Index: 1}}, rd.DefsAt(Site{Block: 0, Index: 2}, 2))
	assert.Equal(t, []Site{Entry}, rd.DefsAt(Site{Block: 0, Index: 2}, 1))
	assert.Empty(t, rd.DefsAt(Site{Block: 0, Index: 0}, 2))
	assert.Empty(t, rd.Uses(Site{Block: 0, Index: 0}, 2))
	assert.Equal(t, []Site{{Block: 0, Index: 2}}, rd.Uses(Site{Block: 0, Index: 1}, 2))
}

func TestReachingDiamond(t *testing.T) {
	// B0 -> B1, B2 -> B3
	m := build(t, [][]string{
		{"if-eqz r1"},
		{"r2 = const int 1"},
		{"r2 = const int 2"},
		{"return r2"},
	}, [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}})
	rd := Analyze(m)

	defs := rd.DefsAt(Site{Block: 3, Index: 0}, 2)
	assert.Equal(t, []Site{{Block: 1, Index: 0}, {Block: 2, Index: 0}}, defs, spew.Sdump(defs))
	assert.Equal(t, []Site{{Block: 3, Index: 0}}, rd.Uses(Site{Block: 1, Index: 0}, 2))
}

func TestReachingLoop(t *testing.T) {
	// B0 -> B1 -> B1 (self loop) -> B2
	m := build(t, [][]string{
		{"r2 = const int 0"},
		{"r2 = add-int r2, r1", "if-lt r2, r1"},
		{"return r2"},
	}, [][2]int{{0, 1}, {1, 1}, {1, 2}})
	rd := Analyze(m)

	defs := rd.DefsAt(Site{Block: 1, Index: 0}, 2)
	assert.Equal(t, []Site{{Block: 0, Index: 0}, {Block: 1, Index: 0}}, defs)
	assert.Equal(t, []Site{{Block: 1, Index: 0}}, rd.DefsAt(Site{Block: 2, Index: 0}, 2))
}

func TestConstructorInvokeDefinesReceiver(t *testing.T) {
	m := build(t, [][]string{{
		"invoke-direct {r2}, com.example.B.<init>()V",
		"invoke-direct {r0, r2}, com.example.Base.<init>(Lcom/example/B;)V",
	}}, nil)
	assert.Equal(t, []dex.Reg{2}, Defs(m, m.Blocks[0].Insns[0]))
	assert.Empty(t, Defs(m, m.Blocks[0].Insns[1]), "receiver this is not redefined")
}

func TestPlanSuccess(t *testing.T) {
	m := build(t, [][]string{{
		"r2 = const int 5",
		"invoke-direct {r0, r2, r1}, com.example.Base.<init>(II)V",
	}}, nil)
	in := NewInliner(m)
	use := Site{Block: 0, Index: 1}

	plan, err := in.Plan(use, 2)
	require.NoError(t, err)
	assert.Equal(t, Site{Block: 0, Index: 0}, plan.Def)
	assert.Same(t, m.Blocks[0].Insns[0], plan.Insn)

	plan, err = in.Plan(use, 1)
	require.NoError(t, err)
	assert.Equal(t, Entry, plan.Def)
	assert.Nil(t, plan.Insn)
}

func TestPlanFailures(t *testing.T) {
	tests := []struct {
		name   string
		blocks [][]string
		edges  [][2]int
		use    Site
		reg    dex.Reg
	}{
		{
			name:   "undefined",
			blocks: [][]string{{"invoke-direct {r0, r5}, com.example.Base.<init>(I)V"}},
			use:    Site{Block: 0, Index: 0},
			reg:    5,
		},
		{
			name: "two definitions",
			blocks: [][]string{
				{"if-eqz r1"},
				{"r2 = const int 1"},
				{"r2 = const int 2"},
				{"invoke-direct {r0, r2}, com.example.Base.<init>(I)V"},
			},
			edges: [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}},
			use:   Site{Block: 3, Index: 0},
			reg:   2,
		},
		{
			name: "other block",
			blocks: [][]string{
				{"r2 = const int 1"},
				{"invoke-direct {r0, r2}, com.example.Base.<init>(I)V"},
			},
			edges: [][2]int{{0, 1}},
			use:   Site{Block: 1, Index: 0},
			reg:   2,
		},
		{
			name: "second use",
			blocks: [][]string{{
				"r2 = const int 1",
				"sput r2, com.example.A.x",
				"invoke-direct {r0, r2}, com.example.Base.<init>(I)V",
			}},
			use: Site{Block: 0, Index: 2},
			reg: 2,
		},
		{
			name: "same register twice",
			blocks: [][]string{{
				"r2 = const int 1",
				"invoke-direct {r0, r2, r2}, com.example.Base.<init>(II)V",
			}},
			use: Site{Block: 0, Index: 1},
			reg: 2,
		},
		{
			name: "operand redefined",
			blocks: [][]string{{
				"r2 = add-int r1, r1",
				"r1 = const int 0",
				"invoke-direct {r0, r2, r1}, com.example.Base.<init>(II)V",
			}},
			use: Site{Block: 0, Index: 2},
			reg: 2,
		},
		{
			name: "side effects reordered",
			blocks: [][]string{{
				"r2 = invoke-static {}, com.example.A.next()I",
				"invoke-static {}, com.example.A.log()V",
				"invoke-direct {r0, r2}, com.example.Base.<init>(I)V",
			}},
			use: Site{Block: 0, Index: 2},
			reg: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := build(t, tt.blocks, tt.edges)
			_, err := NewInliner(m).Plan(tt.use, tt.reg)
			require.Error(t, err)
			var ie *InlineError
			require.True(t, errors.As(err, &ie), spew.Sdump(err))
			assert.Equal(t, tt.reg, ie.Reg)
			assert.NotEmpty(t, ie.Reason)
		})
	}
}

func TestPlanInvalidate(t *testing.T) {
	m := build(t, [][]string{{
		"r2 = const int 5",
		"invoke-direct {r0, r2}, com.example.Base.<init>(I)V",
	}}, nil)
	in := NewInliner(m)
	_, err := in.Plan(Site{Block: 0, Index: 1}, 2)
	require.NoError(t, err)

	dex.RemoveAt(m.Blocks[0], 0)
	in.Invalidate()
	_, err = in.Plan(Site{Block: 0, Index: 0}, 2)
	assert.Error(t, err)
}
