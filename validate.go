/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"strings"
	"time"
)

// Verdict is the outcome of a move check. Poster and ActorImage are opaque
// image fragments from the credit source.
type Verdict struct {
	Valid      bool
	Production *Production
	Actor      *Actor
	Poster     string
	ActorImage string
}

// Validate checks that actor and nextActor both appear in a production whose
// title loosely matches title. It fails closed: any missing input, unknown
// actor or upstream failure yields an invalid verdict.
func (g *Game) Validate(ctx context.Context, actor, title, nextActor string) Verdict {
	began := time.Now()

	title, nextActor = strings.TrimSpace(title), strings.TrimSpace(nextActor)
	if title == "" || nextActor == "" {
		observeQuery("validate", "invalid", began)
		return Verdict{}
	}

	from, err := g.resolve(ctx, actor)
	if err != nil {
		logf(g.cfg, "LINKS: Cannot resolve %q: %v", actor, err)
		observeQuery("validate", "invalid", began)
		return Verdict{}
	}

	verdict := g.validateFrom(ctx, from, title, Actor{Name: nextActor})

	outcome := "invalid"
	if verdict.Valid {
		outcome = "valid"
	}
	observeQuery("validate", outcome, began)

	logf(g.cfg, "LINKS: %q -> %q -> %q is %s (%s)",
		from.Name, title, nextActor, outcome, time.Since(began).Round(time.Millisecond))

	return verdict
}

// validateFrom is Validate for an already resolved actor. next may carry an ID,
// in which case identifiers are compared instead of names. A link back to from
// itself is never valid.
func (g *Game) validateFrom(ctx context.Context, from Actor, title string, next Actor) Verdict {
	credits := newRequestCredits(g.source)

	productions, err := credits.personCredits(ctx, from.ID)
	if err != nil {
		logf(g.cfg, "LINKS: No credits for %q: %v", from.Name, err)
		return Verdict{}
	}

	var candidates []Production
	seen := make(map[nodeKey]bool)
	for _, p := range productions {
		if seen[productionKey(p)] || !titleMatches(p.Title, title) {
			continue
		}
		seen[productionKey(p)] = true
		candidates = append(candidates, p)
	}

	if len(candidates) == 0 {
		return Verdict{}
	}

	casts := fetchAll(ctx, g.cfg.parallelism, len(candidates), func(ctx context.Context, i int) ([]Actor, error) {
		return credits.productionCredits(ctx, candidates[i])
	}, func(i int, err error) {
		logf(g.cfg, "LINKS: Skipping %q: %v", candidates[i].Title, err)
	})

	for i, p := range candidates {
		for _, member := range casts[i] {
			if !sameActor(member, next) || sameActor(member, from) {
				continue
			}

			return Verdict{
				Valid:      true,
				Production: &p,
				Actor:      &member,
				Poster:     p.Image,
				ActorImage: member.Image,
			}
		}
	}

	return Verdict{}
}
