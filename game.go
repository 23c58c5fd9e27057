/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"strings"
)

// Game answers path, hint and validate queries against a credit source. It
// holds no per-request state, so one Game serves every request concurrently.
type Game struct {
	cfg    *Config
	source CreditSource
}

func newGame(cfg *Config, source CreditSource) *Game {
	return &Game{
		cfg:    cfg,
		source: source,
	}
}

// resolve looks an actor up by name. An exact (normalized) name match is
// preferred over the search ranking.
func (g *Game) resolve(ctx context.Context, name string) (Actor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Actor{}, fmt.Errorf("actor name: %w", ErrAmbiguousInput)
	}

	results, err := g.source.SearchPerson(ctx, name)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: search %q: %w", ErrUpstreamUnavailable, name, err)
	}
	if len(results) == 0 {
		return Actor{}, fmt.Errorf("actor %q: %w", name, ErrNotFound)
	}

	want := normalizeName(name)
	for _, a := range results {
		if normalizeName(a.Name) == want {
			return a, nil
		}
	}

	return results[0], nil
}

// resolvePair resolves two names, in parallel.
func (g *Game) resolvePair(ctx context.Context, a, b string) (Actor, Actor, error) {
	names := []string{a, b}
	var errs [2]error

	actors := fetchAll(ctx, 2, 2, func(ctx context.Context, i int) (Actor, error) {
		return g.resolve(ctx, names[i])
	}, func(i int, err error) {
		errs[i] = err
	})

	for _, err := range errs {
		if err != nil {
			return Actor{}, Actor{}, err
		}
	}

	return actors[0], actors[1], nil
}
