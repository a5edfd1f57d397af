// Package cleanup rewrites decoded method bodies into a form closer to source:
// it drops instructions with no source meaning, folds constructor calls and
// constant loads, renames parameters that clash with keywords and removes
// exception handlers that only rethrow.
package cleanup

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/raymyers/ralph-dex/pkg/dex"
	"github.com/raymyers/ralph-dex/pkg/names"
)

// Stats counts the changes made to one or more methods
type Stats struct {
	Methods         int
	Removed         int
	Replaced        int
	Fields          int
	InlineFailures  int
	Renamed         int
	HandlersRemoved int
}

// Add accumulates o into s
func (s *Stats) Add(o Stats) {
	s.Methods += o.Methods
	s.Removed += o.Removed
	s.Replaced += o.Replaced
	s.Fields += o.Fields
	s.InlineFailures += o.InlineFailures
	s.Renamed += o.Renamed
	s.HandlersRemoved += o.HandlersRemoved
}

// Changed reports whether any method was mutated
func (s Stats) Changed() bool {
	return s.Removed+s.Replaced+s.Renamed+s.HandlersRemoved > 0
}

// Pipeline runs the cleanup passes over methods
type Pipeline struct {
	log        zerolog.Logger
	names      ReservedNames
	workers    int
	newInliner func(*dex.Method) ArgInliner
	sub        *Substituter
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger for diagnostics
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithNames sets the reserved-word oracle used to sanitize parameter names
func WithNames(n ReservedNames) Option {
	return func(p *Pipeline) { p.names = n }
}

// WithWorkers bounds the number of methods processed concurrently by RunClasses
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithInliner replaces the argument inlining policy
func WithInliner(f func(*dex.Method) ArgInliner) Option {
	return func(p *Pipeline) { p.newInliner = f }
}

// New creates a pipeline. Without options it logs nothing, uses the Java
// reserved words and one worker per CPU.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		log:     zerolog.Nop(),
		names:   names.Java,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	p.sub = NewSubstituter(p.log, p.newInliner)
	return p
}

// RunMethod applies every pass to m in order. Methods without code are skipped.
func (p *Pipeline) RunMethod(m *dex.Method) Stats {
	if m.NoCode {
		return Stats{}
	}
	st := Stats{Methods: 1}
	st.Removed += EliminateDead(m)
	st.Add(p.sub.Substitute(m))
	st.Renamed += SanitizeArgNames(m, p.names)
	st.Add(SimplifyHandlers(m, p.log))

	if st.Changed() {
		p.log.Debug().
			Str("method", m.FullName()).
			Int("removed", st.Removed).
			Int("replaced", st.Replaced).
			Msg("cleaned")
	}
	return st
}

// RunClass runs every method of c sequentially
func (p *Pipeline) RunClass(c *dex.Class) Stats {
	c.Freeze()
	var st Stats
	for _, m := range c.Methods {
		st.Add(p.RunMethod(m))
	}
	return st
}

// RunClasses processes the methods of all classes on a pool of workers. Class
// tables are frozen first; a worker mutates only the method it holds.
func (p *Pipeline) RunClasses(classes []*dex.Class) Stats {
	jobs := make(chan *dex.Method)
	for _, c := range classes {
		c.Freeze()
	}

	var (
		mu    sync.Mutex
		total Stats
		wg    sync.WaitGroup
	)
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var st Stats
			for m := range jobs {
				st.Add(p.RunMethod(m))
			}
			mu.Lock()
			total.Add(st)
			mu.Unlock()
		}()
	}
	for _, c := range classes {
		for _, m := range c.Methods {
			jobs <- m
		}
	}
	close(jobs)
	wg.Wait()

	p.log.Info().
		Int("classes", len(classes)).
		Int("methods", total.Methods).
		Int("removed", total.Removed).
		Int("replaced", total.Replaced).
		Int("fields", total.Fields).
		Int("handlers", total.HandlersRemoved).
		Msg("cleanup done")
	return total
}
