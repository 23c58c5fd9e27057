/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"time"
)

type frontierEntry struct {
	actor Actor
	path  Path
}

type scheduledProduction struct {
	production Production
	parent     frontierEntry
}

// FindPath returns a shortest chain from start to goal, searching at most
// maxDepth productions deep with bounded fanout per node. The only error it
// returns is ErrNotFound: failed lookups are dead ends, and running out of
// time or depth means no path was found.
//
// Each layer is fetched in parallel but consumed in source order, so the path
// returned is the one a sequential breadth-first search would find first.
func (g *Game) FindPath(ctx context.Context, start, goal Actor) (Path, error) {
	began := time.Now()

	if sameActor(start, goal) {
		observeQuery("path", "found", began)
		return Path{actorNode(start)}, nil
	}

	credits := newRequestCredits(g.source)

	visited := map[nodeKey]bool{actorKey(start): true}
	frontier := []frontierEntry{{actor: start, path: Path{actorNode(start)}}}

	for depth := 1; depth <= g.cfg.maxDepth && len(frontier) > 0; depth++ {
		if ctx.Err() != nil {
			break
		}

		scheduled := g.scheduleLayer(ctx, credits, frontier, visited)

		casts := fetchAll(ctx, g.cfg.parallelism, len(scheduled), func(ctx context.Context, i int) ([]Actor, error) {
			return credits.productionCredits(ctx, scheduled[i].production)
		}, func(i int, err error) {
			logf(g.cfg, "PATHS: Dead end at %q: %v", scheduled[i].production.Title, err)
		})

		var next []frontierEntry
		for i, s := range scheduled {
			for _, costar := range firstN(casts[i], g.cfg.fanoutCast) {
				key := actorKey(costar)
				if visited[key] {
					continue
				}

				path := s.parent.path.extend(s.production, costar)
				if sameActor(costar, goal) {
					logf(g.cfg, "PATHS: Linked %q to %q in %d hops (%s)",
						start.Name, goal.Name, path.Hops(), time.Since(began).Round(time.Millisecond))
					observeQuery("path", "found", began)
					observePathHops(path.Hops())
					return path, nil
				}

				visited[key] = true
				next = append(next, frontierEntry{actor: costar, path: path})
			}
		}

		logf(g.cfg, "PATHS: Layer %d of %q to %q: %d productions, %d new actors",
			depth, start.Name, goal.Name, len(scheduled), len(next))

		frontier = next
	}

	observeQuery("path", "not_found", began)

	return nil, fmt.Errorf("path from %q to %q: %w", start.Name, goal.Name, ErrNotFound)
}

// scheduleLayer fetches the credits of every frontier actor and returns the
// unvisited productions in frontier order, then source order, marking each one
// visited.
func (g *Game) scheduleLayer(ctx context.Context, credits *requestCredits, frontier []frontierEntry, visited map[nodeKey]bool) []scheduledProduction {
	productions := fetchAll(ctx, g.cfg.parallelism, len(frontier), func(ctx context.Context, i int) ([]Production, error) {
		return credits.personCredits(ctx, frontier[i].actor.ID)
	}, func(i int, err error) {
		logf(g.cfg, "PATHS: Dead end at %q: %v", frontier[i].actor.Name, err)
	})

	var scheduled []scheduledProduction
	for i, entry := range frontier {
		for _, p := range firstN(productions[i], g.cfg.fanoutCredits) {
			key := productionKey(p)
			if visited[key] {
				continue
			}
			visited[key] = true

			scheduled = append(scheduled, scheduledProduction{production: p, parent: entry})
		}
	}

	return scheduled
}

// ShortestPath resolves both names and runs FindPath. Resolution failures are
// returned as is; everything after that is reported as ErrNotFound.
func (g *Game) ShortestPath(ctx context.Context, startName, goalName string) (Path, error) {
	start, goal, err := g.resolvePair(ctx, startName, goalName)
	if err != nil {
		return nil, err
	}

	return g.FindPath(ctx, start, goal)
}
