package analyzer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry maps capability names to constructors.
type Registry map[string]Factory

// Factory builds an analyzer instance.
type Factory func() Analyzer

// Build instantiates analyzers from the provided names, keeping the given order and dropping duplicates.
func (r Registry) Build(names []string) ([]Analyzer, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var analyzers []Analyzer
	seen := map[string]struct{}{}
	for _, name := range names {
		factory, ok := r[name]
		if !ok {
			return nil, fmt.Errorf("unknown analyzer: %s", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		analyzers = append(analyzers, factory())
	}
	return analyzers, nil
}

// Outcome is the result of one analyzer inside a fan-out. Err is kept for logging only;
// Result is always empty when Err is set.
type Outcome struct {
	Name   string
	Result Result
	Err    error
}

// Run calls every analyzer concurrently with the same request and waits for all of them.
// Outcomes come back in analyzer order regardless of completion order. A failing or panicking
// analyzer never cancels or affects its siblings.
func Run(ctx context.Context, analyzers []Analyzer, req Request) []Outcome {
	outcomes := make([]Outcome, len(analyzers))
	if len(analyzers) == 0 {
		return outcomes
	}

	var g errgroup.Group
	var mu sync.Mutex
	for i, a := range analyzers {
		g.Go(func() error {
			out := Call(ctx, a, req)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Call runs one analyzer, converting errors and panics into a degraded Outcome.
func Call(ctx context.Context, a Analyzer, req Request) (out Outcome) {
	out.Name = a.Name()
	defer func() {
		if r := recover(); r != nil {
			out.Result = Result{}
			out.Err = fmt.Errorf("analyzer %s panicked: %v", out.Name, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	res, err := a.Analyze(ctx, req)
	if err != nil {
		out.Err = err
		return out
	}
	out.Result = res
	return out
}
