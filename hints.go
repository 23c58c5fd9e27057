/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"time"
)

const maxSuggestions = 5

// Suggestion is a possible next move. Progress marks an actor known to share
// a production with the goal.
type Suggestion struct {
	Kind     Kind   `json:"kind"`
	ID       string `json:"id"`
	Name     string `json:"name"`
	Image    string `json:"image,omitempty"`
	Progress bool   `json:"progress,omitempty"`
}

// goalCostars is the set of everyone sharing one of the goal's first credits.
type goalCostars struct {
	ids   map[string]bool
	names map[string]bool
}

func (s goalCostars) contains(a Actor) bool {
	if a.ID != "" && s.ids[a.ID] {
		return true
	}
	return s.names[normalizeName(a.Name)]
}

// SuggestMoves proposes up to five next steps from current toward goal:
// productions of current and one new co-star from each. Every fetched
// production is scanned for a co-star who also worked with the goal; the first
// one found is moved to the front of the list.
func (g *Game) SuggestMoves(ctx context.Context, current, goal Actor) []Suggestion {
	began := time.Now()
	credits := newRequestCredits(g.source)

	costars := g.goalCostars(ctx, credits, goal)

	productions, err := credits.personCredits(ctx, current.ID)
	if err != nil {
		logf(g.cfg, "HINTS: No credits for %q: %v", current.Name, err)
		observeQuery("hint", "empty", began)
		return []Suggestion{}
	}
	productions = firstN(productions, g.cfg.fanoutCredits)

	casts := fetchAll(ctx, g.cfg.parallelism, len(productions), func(ctx context.Context, i int) ([]Actor, error) {
		return credits.productionCredits(ctx, productions[i])
	}, func(i int, err error) {
		logf(g.cfg, "HINTS: Skipping %q: %v", productions[i].Title, err)
	})

	var (
		suggestions []Suggestion
		held        *Suggestion
	)

	seenProductions := make(map[nodeKey]bool)
	seenNames := map[string]bool{normalizeName(current.Name): true}

	for i, p := range productions {
		if held != nil && len(suggestions) >= maxSuggestions {
			break
		}

		key := productionKey(p)
		if seenProductions[key] || seenNames[normalizeName(p.Title)] {
			continue
		}
		seenProductions[key] = true
		seenNames[normalizeName(p.Title)] = true

		suggestions = append(suggestions, Suggestion{
			Kind:  p.Kind,
			ID:    p.ID,
			Name:  p.Title,
			Image: p.Image,
		})

		for _, costar := range firstN(casts[i], g.cfg.fanoutCast) {
			name := normalizeName(costar.Name)
			if sameActor(costar, current) || seenNames[name] {
				continue
			}
			seenNames[name] = true

			s := Suggestion{
				Kind:  KindActor,
				ID:    costar.ID,
				Name:  costar.Name,
				Image: costar.Image,
			}

			if held == nil && (costars.contains(costar) || sameActor(costar, goal)) {
				s.Progress = true
				held = &s
			} else {
				suggestions = append(suggestions, s)
			}

			break
		}
	}

	if held != nil && !containsSuggestion(suggestions, *held) {
		suggestions = append([]Suggestion{*held}, suggestions...)
	}

	suggestions = firstN(suggestions, maxSuggestions)

	outcome := "plain"
	if held != nil {
		outcome = "progress"
	}
	observeQuery("hint", outcome, began)

	logf(g.cfg, "HINTS: %d suggestions from %q toward %q (%s)",
		len(suggestions), current.Name, goal.Name, time.Since(began).Round(time.Millisecond))

	return suggestions
}

func (g *Game) goalCostars(ctx context.Context, credits *requestCredits, goal Actor) goalCostars {
	set := goalCostars{
		ids:   make(map[string]bool),
		names: make(map[string]bool),
	}

	productions, err := credits.personCredits(ctx, goal.ID)
	if err != nil {
		logf(g.cfg, "HINTS: No credits for goal %q: %v", goal.Name, err)
		return set
	}
	productions = firstN(productions, g.cfg.hintGoalCredits)

	casts := fetchAll(ctx, g.cfg.parallelism, len(productions), func(ctx context.Context, i int) ([]Actor, error) {
		return credits.productionCredits(ctx, productions[i])
	}, nil)

	for _, cast := range casts {
		for _, a := range cast {
			if a.ID != "" {
				set.ids[a.ID] = true
			}
			set.names[normalizeName(a.Name)] = true
		}
	}

	return set
}

func containsSuggestion(list []Suggestion, s Suggestion) bool {
	for _, existing := range list {
		if existing.Kind == s.Kind && normalizeName(existing.Name) == normalizeName(s.Name) {
			return true
		}
	}
	return false
}

// Hint resolves both names and runs SuggestMoves. Unknown actors yield an
// empty list.
func (g *Game) Hint(ctx context.Context, currentName, goalName string) ([]Suggestion, error) {
	current, goal, err := g.resolvePair(ctx, currentName, goalName)
	if err != nil {
		return []Suggestion{}, err
	}

	return g.SuggestMoves(ctx, current, goal), nil
}
