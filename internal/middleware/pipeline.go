package middleware

import (
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middlewares so that the first one is outermost.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain of middlewares.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Then wraps h with the chain. A nil h answers 404.
func (c *Chain) Then(h http.Handler) http.Handler {
	if h == nil {
		h = http.NotFoundHandler()
	}
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Stage is a named pipeline step. Lower priorities run first.
type Stage struct {
	Name       string
	Priority   int
	Middleware Middleware
}

// Pipeline orders stages by priority, breaking ties by registration order.
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline from stages.
func NewPipeline(stages ...Stage) *Pipeline {
	p := &Pipeline{}
	p.Register(stages...)
	return p
}

// Register adds stages to the pipeline. Stages with a nil middleware are
// ignored so disabled features can be registered unconditionally.
func (p *Pipeline) Register(stages ...Stage) {
	for _, s := range stages {
		if s.Middleware != nil {
			p.stages = append(p.stages, s)
		}
	}
}

// Stages returns the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	ordered := make([]Stage, len(p.stages))
	copy(ordered, p.stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return ordered
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	stages := p.Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

// Then composes the ordered stages around h. Each stage may call its next
// handler at most once per request; a second call panics.
func (p *Pipeline) Then(h http.Handler) http.Handler {
	stages := p.Stages()
	mws := make([]Middleware, len(stages))
	for i, s := range stages {
		mws[i] = guardNext(s)
	}
	return NewChain(mws...).Then(h)
}

// guardNext wraps a stage so that the next handler it receives refuses to
// run twice for the same request.
func guardNext(s Stage) Middleware {
	return func(next http.Handler) http.Handler {
		inner := s.Middleware
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var called atomic.Bool
			guarded := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !called.CompareAndSwap(false, true) {
					panic(fmt.Sprintf("middleware: stage %q called next more than once", s.Name))
				}
				next.ServeHTTP(w, r)
			})
			inner(guarded).ServeHTTP(w, r)
		})
	}
}
