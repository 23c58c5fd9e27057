/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// requestCredits memoizes credit lookups for the lifetime of one query. It is
// never shared between requests.
type requestCredits struct {
	source CreditSource

	group singleflight.Group

	mu      sync.Mutex
	credits map[string][]Production
	casts   map[string][]Actor
}

func newRequestCredits(source CreditSource) *requestCredits {
	return &requestCredits{
		source:  source,
		credits: make(map[string][]Production),
		casts:   make(map[string][]Actor),
	}
}

func (r *requestCredits) personCredits(ctx context.Context, id string) ([]Production, error) {
	key := "person:" + id

	r.mu.Lock()
	if c, ok := r.credits[key]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		c, err := r.source.PersonCredits(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: credits of person %s: %w", ErrUpstreamUnavailable, id, err)
		}

		r.mu.Lock()
		r.credits[key] = c
		r.mu.Unlock()

		return c, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]Production), nil
}

func (r *requestCredits) productionCredits(ctx context.Context, p Production) ([]Actor, error) {
	key := string(p.Kind) + ":" + p.ID

	r.mu.Lock()
	if c, ok := r.casts[key]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(key, func() (any, error) {
		c, err := r.source.ProductionCredits(ctx, p.ID, p.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: cast of %s %s: %w", ErrUpstreamUnavailable, p.Kind, p.ID, err)
		}

		r.mu.Lock()
		r.casts[key] = c
		r.mu.Unlock()

		return c, nil
	})
	if err != nil {
		return nil, err
	}

	return v.([]Actor), nil
}

// fetchAll runs fn for every index in parallel, at most limit at a time, and
// collects the results in index order. A failed slot is left as the zero value
// and reported through onErr; it never cancels its siblings.
func fetchAll[T any](ctx context.Context, limit, n int, fn func(context.Context, int) (T, error), onErr func(int, error)) []T {
	out := make([]T, n)
	errs := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range n {
		g.Go(func() error {
			v, err := fn(gctx, i)
			if err != nil {
				errs[i] = err
				return nil
			}
			out[i] = v
			return nil
		})
	}

	_ = g.Wait()

	if onErr != nil {
		for i, err := range errs {
			if err != nil {
				onErr(i, err)
			}
		}
	}

	return out
}

func firstN[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}
