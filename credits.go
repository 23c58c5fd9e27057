/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Kind tags a node in the actor/production graph.
type Kind string

const (
	KindActor  Kind = "actor"
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
)

func (k Kind) isProduction() bool {
	return k == KindMovie || k == KindSeries
}

// Actor is a person as reported by a credit source. Image is an opaque path
// fragment, resolved into a URL only at the http layer.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// Production is a movie or a series.
type Production struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Kind       Kind    `json:"kind"`
	Image      string  `json:"image,omitempty"`
	Popularity float64 `json:"-"`
}

// CreditSource is the only way the game learns about the graph. Every call may
// fail, and an empty result simply means the node has no edges.
type CreditSource interface {
	// SearchPerson returns people matching name, best match first.
	SearchPerson(ctx context.Context, name string) ([]Actor, error)
	// PersonCredits returns the movie and series credits of a person, most
	// relevant first.
	PersonCredits(ctx context.Context, id string) ([]Production, error)
	// ProductionCredits returns the cast of a production in billing order.
	ProductionCredits(ctx context.Context, id string, kind Kind) ([]Actor, error)
}

// TitleSearcher is implemented by sources able to search productions by title.
type TitleSearcher interface {
	SearchProductions(ctx context.Context, query string) ([]Production, error)
}

// Node is one step of a Path.
type Node struct {
	Kind  Kind   `json:"kind"`
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

func actorNode(a Actor) Node {
	return Node{Kind: KindActor, ID: a.ID, Name: a.Name, Image: a.Image}
}

func productionNode(p Production) Node {
	return Node{Kind: p.Kind, ID: p.ID, Name: p.Title, Image: p.Image}
}

// Path alternates actors and productions, starting and ending with an actor.
type Path []Node

// Len is the number of edges in the path.
func (p Path) Len() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Hops is the number of productions crossed.
func (p Path) Hops() int {
	return p.Len() / 2
}

func (p Path) extend(via Production, to Actor) Path {
	out := make(Path, len(p), len(p)+2)
	copy(out, p)
	return append(out, productionNode(via), actorNode(to))
}

// nodeKey disambiguates actor and production identifiers, which come from
// separate id spaces.
type nodeKey struct {
	production bool
	id         string
}

func actorKey(a Actor) nodeKey {
	if a.ID == "" {
		return nodeKey{id: "name:" + normalizeName(a.Name)}
	}
	return nodeKey{id: a.ID}
}

func productionKey(p Production) nodeKey {
	return nodeKey{production: true, id: string(p.Kind) + ":" + p.ID}
}

var folder = cases.Fold()

// normalizeName trims and case-folds a name for comparison.
func normalizeName(s string) string {
	return folder.String(norm.NFC.String(strings.Join(strings.Fields(s), " ")))
}

// sameActor compares by identifier when both sides carry one, and falls back
// to normalized names otherwise.
func sameActor(a, b Actor) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return normalizeName(a.Name) == normalizeName(b.Name)
}

// titleMatches accepts partial and alternate titles: either side may contain
// the other.
func titleMatches(title, query string) bool {
	t, q := normalizeName(title), normalizeName(query)
	if t == "" || q == "" {
		return false
	}
	return strings.Contains(t, q) || strings.Contains(q, t)
}
