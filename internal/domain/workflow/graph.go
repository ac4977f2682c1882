package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Guard vets the checkpoint a node produced before its edge is taken. A nil
// return lets the transition through.
type Guard[S any] func(ctx context.Context, subject S) error

// Edge is one row of the transition table
type Edge[S any] struct {
	From    State
	Trigger Trigger
	To      State
	Guard   Guard[S]
}

func (e Edge[S]) String() string {
	return fmt.Sprintf("%s --%s--> %s", e.From, e.Trigger, e.To)
}

type edgeKey struct {
	from    State
	trigger Trigger
}

// Graph is an immutable transition table. Each (node, trigger) pair has at
// most one target so a step is deterministic.
type Graph[S any] struct {
	edges map[edgeKey]Edge[S]
	order []Edge[S]
}

// NewGraph validates the table and freezes it. Every non-terminal node must
// have an outgoing edge and be reachable from START.
func NewGraph[S any](edges ...Edge[S]) (*Graph[S], error) {
	g := &Graph[S]{
		edges: make(map[edgeKey]Edge[S], len(edges)),
		order: make([]Edge[S], 0, len(edges)),
	}

	var errs []error
	for _, e := range edges {
		switch {
		case !e.From.IsValid():
			errs = append(errs, fmt.Errorf("%v: unknown source node", e))
			continue
		case !e.To.IsValid():
			errs = append(errs, fmt.Errorf("%v: unknown target node", e))
			continue
		case e.Trigger == "":
			errs = append(errs, fmt.Errorf("%v: empty trigger", e))
			continue
		case e.From.IsTerminal():
			errs = append(errs, fmt.Errorf("%v: terminal node has an outgoing edge", e))
			continue
		}

		key := edgeKey{from: e.From, trigger: e.Trigger}
		if prev, dup := g.edges[key]; dup {
			errs = append(errs, fmt.Errorf("%v: conflicts with %v", e, prev))
			continue
		}
		g.edges[key] = e
		g.order = append(g.order, e)
	}

	errs = append(errs, g.checkCoverage()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}
	return g, nil
}

// MustGraph is NewGraph for package-level tables
func MustGraph[S any](edges ...Edge[S]) *Graph[S] {
	g, err := NewGraph(edges...)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Graph[S]) checkCoverage() []error {
	outgoing := make(map[State]bool)
	adjacent := make(map[State][]State)
	for _, e := range g.order {
		outgoing[e.From] = true
		adjacent[e.From] = append(adjacent[e.From], e.To)
	}

	reached := map[State]bool{StateStart: true}
	queue := []State{StateStart}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, to := range adjacent[s] {
			if !reached[to] {
				reached[to] = true
				queue = append(queue, to)
			}
		}
	}

	var errs []error
	for _, s := range allStates {
		if !s.IsTerminal() && !outgoing[s] {
			errs = append(errs, fmt.Errorf("node %s has no outgoing edge", s))
		}
		if !reached[s] {
			errs = append(errs, fmt.Errorf("node %s is unreachable from %s", s, StateStart))
		}
	}
	return errs
}

// Transition returns the node trigger leads to from the given node. subject
// is handed to the edge's guard.
func (g *Graph[S]) Transition(ctx context.Context, from State, trigger Trigger, subject S) (State, error) {
	if from.IsTerminal() {
		return from, fmt.Errorf("%w: %s is terminal, cannot fire %s", ErrInvalidTransition, from, trigger)
	}

	e, ok := g.edges[edgeKey{from: from, trigger: trigger}]
	if !ok {
		return from, fmt.Errorf("%w: no edge for %s from %s", ErrInvalidTransition, trigger, from)
	}
	if e.Guard != nil {
		if err := e.Guard(ctx, subject); err != nil {
			return from, fmt.Errorf("%w: %v: %w", ErrGuardFailed, e, err)
		}
	}
	return e.To, nil
}

// Permitted returns the triggers with an edge out of the node, sorted
func (g *Graph[S]) Permitted(from State) []Trigger {
	triggers := []Trigger{}
	for _, e := range g.order {
		if e.From == from {
			triggers = append(triggers, e.Trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}

// Edges returns the table in declaration order
func (g *Graph[S]) Edges() []Edge[S] {
	return append([]Edge[S](nil), g.order...)
}
