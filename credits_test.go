/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFakeUpstream = errors.New("fake upstream failure")

// fakeCredits is an in-memory CreditSource. Credits are returned in the order
// they were added, which stands in for the provider's relevance ranking.
type fakeCredits struct {
	mu sync.Mutex

	people  []Actor
	credits map[string][]Production
	casts   map[string][]Actor

	failPerson map[string]bool
	failCast   map[string]bool
	searchErr  error

	calls map[string]int
}

func newFakeCredits() *fakeCredits {
	return &fakeCredits{
		credits:    make(map[string][]Production),
		casts:      make(map[string][]Actor),
		failPerson: make(map[string]bool),
		failCast:   make(map[string]bool),
		calls:      make(map[string]int),
	}
}

func (f *fakeCredits) actor(id, name string) Actor {
	a := Actor{ID: id, Name: name, Image: "/" + id + ".jpg"}
	f.people = append(f.people, a)
	return a
}

func movie(id, title string) Production {
	return Production{ID: id, Title: title, Kind: KindMovie, Image: "/" + id + ".jpg"}
}

func series(id, title string) Production {
	return Production{ID: id, Title: title, Kind: KindSeries, Image: "/" + id + ".jpg"}
}

// credit records that every actor appeared in p, in billing order.
func (f *fakeCredits) credit(p Production, cast ...Actor) {
	key := string(p.Kind) + ":" + p.ID
	for _, a := range cast {
		f.credits[a.ID] = append(f.credits[a.ID], p)
		f.casts[key] = append(f.casts[key], a)
	}
}

func (f *fakeCredits) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeCredits) record(call string) {
	f.mu.Lock()
	f.calls[call]++
	f.mu.Unlock()
}

func (f *fakeCredits) SearchPerson(ctx context.Context, name string) ([]Actor, error) {
	f.record("search:" + name)
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	var out []Actor
	for _, a := range f.people {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(strings.TrimSpace(name))) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeCredits) PersonCredits(ctx context.Context, id string) ([]Production, error) {
	f.record("person:" + id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failPerson[id] {
		return nil, errFakeUpstream
	}
	return f.credits[id], nil
}

func (f *fakeCredits) ProductionCredits(ctx context.Context, id string, kind Kind) ([]Actor, error) {
	key := string(kind) + ":" + id
	f.record("cast:" + key)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failCast[key] {
		return nil, errFakeUpstream
	}
	return f.casts[key], nil
}

func (f *fakeCredits) SearchProductions(ctx context.Context, query string) ([]Production, error) {
	seen := make(map[string]bool)

	var out []Production
	for _, list := range f.credits {
		for _, p := range list {
			key := string(p.Kind) + ":" + p.ID
			if seen[key] || !strings.Contains(strings.ToLower(p.Title), strings.ToLower(query)) {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func testConfig() *Config {
	return &Config{
		source:          sourceTMDB,
		tmdbAPIKey:      "test-key",
		tmdbURL:         "http://tmdb.invalid/3",
		tmdbRate:        1000,
		tmdbBurst:       100,
		imageBaseURL:    "https://img.test/w185",
		port:            8080,
		fanoutCredits:   10,
		fanoutCast:      10,
		hintGoalCredits: 15,
		maxDepth:        6,
		parallelism:     4,
		callTimeout:     time.Second,
		requestTimeout:  5 * time.Second,
		allowedOrigins:  []string{"*"},
		playerTimeout:   time.Minute,
		roomTimeout:     time.Hour,
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "tom hanks", normalizeName("  Tom   HANKS "))
	assert.Equal(t, normalizeName("Zoë Saldaña"), normalizeName("ZOË SALDAÑA"))
	assert.Equal(t, normalizeName("Renée"), normalizeName("Renée"))
	assert.Empty(t, normalizeName("   "))
}

func TestSameActor(t *testing.T) {
	assert.True(t, sameActor(Actor{ID: "1", Name: "A"}, Actor{ID: "1", Name: "Someone Else"}))
	assert.False(t, sameActor(Actor{ID: "1", Name: "Chris Evans"}, Actor{ID: "2", Name: "Chris Evans"}))
	assert.True(t, sameActor(Actor{ID: "1", Name: "Chris Evans"}, Actor{Name: " chris evans "}))
	assert.False(t, sameActor(Actor{Name: "Chris Evans"}, Actor{Name: "Chris Pratt"}))
}

func TestTitleMatches(t *testing.T) {
	assert.True(t, titleMatches("The Lord of the Rings: The Fellowship of the Ring", "fellowship of the ring"))
	assert.True(t, titleMatches("Alien", "Alien: Director's Cut"))
	assert.True(t, titleMatches("Example Movie", "EXAMPLE MOVIE"))
	assert.False(t, titleMatches("Example Movie", "Other Title"))
	assert.False(t, titleMatches("Example Movie", "  "))
}

func TestPathLength(t *testing.T) {
	a, b := Actor{ID: "a", Name: "A"}, Actor{ID: "b", Name: "B"}

	trivial := Path{actorNode(a)}
	assert.Equal(t, 0, trivial.Len())
	assert.Equal(t, 0, trivial.Hops())

	one := trivial.extend(movie("p", "P"), b)
	assert.Equal(t, 2, one.Len())
	assert.Equal(t, 1, one.Hops())
	assert.Len(t, trivial, 1, "extend must not alias its receiver")

	assert.Equal(t, 0, Path(nil).Len())
}

func TestNodeKeysSeparateIDSpaces(t *testing.T) {
	actor := actorKey(Actor{ID: "42"})
	film := productionKey(movie("42", "x"))
	show := productionKey(series("42", "x"))

	assert.NotEqual(t, actor, film)
	assert.NotEqual(t, film, show)
	assert.Equal(t, actorKey(Actor{Name: "Tom  Hanks"}), actorKey(Actor{Name: "tom hanks"}))
}
