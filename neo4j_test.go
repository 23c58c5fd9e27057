/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedQuery struct {
	cypher string
	params map[string]any
}

// memoryGraph answers every query with canned rows and remembers what it was asked.
type memoryGraph struct {
	mu      sync.Mutex
	rows    map[string][]graphRecord
	err     error
	queries []recordedQuery
	closed  bool
}

func (m *memoryGraph) ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]graphRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, recordedQuery{cypher: cypher, params: params})
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[cypher], nil
}

func (m *memoryGraph) VerifyConnectivity(ctx context.Context) error {
	return m.err
}

func (m *memoryGraph) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

func TestGraphCreditsPersonCredits(t *testing.T) {
	graph := &memoryGraph{rows: map[string][]graphRecord{
		cypherPersonCredits: {
			{"id": "603", "title": "The Matrix", "kind": "movie", "image": "/m.jpg", "popularity": 80.5},
			{"id": int64(1396), "title": "Breaking Bad", "kind": "series", "image": nil, "popularity": int64(60)},
			{"id": "1", "title": "Mystery", "kind": "podcast"},
			{"id": "", "title": "No ID", "kind": "movie"},
		},
	}}

	credits, err := newGraphCredits(testConfig(), graph).PersonCredits(context.Background(), "6384")
	require.NoError(t, err)

	assert.Equal(t, []Production{
		{ID: "603", Title: "The Matrix", Kind: KindMovie, Image: "/m.jpg", Popularity: 80.5},
		{ID: "1396", Title: "Breaking Bad", Kind: KindSeries, Popularity: 60},
	}, credits)

	require.Len(t, graph.queries, 1)
	assert.Equal(t, "6384", graph.queries[0].params["id"])
}

func TestGraphCreditsProductionCredits(t *testing.T) {
	graph := &memoryGraph{rows: map[string][]graphRecord{
		cypherProductionCredits: {
			{"id": "6384", "name": "Keanu Reeves", "image": "/k.jpg", "billing": int64(0)},
			{"id": "2975", "name": "Laurence Fishburne", "billing": int64(1)},
		},
	}}

	cast, err := newGraphCredits(testConfig(), graph).ProductionCredits(context.Background(), "603", KindMovie)
	require.NoError(t, err)

	assert.Equal(t, []Actor{
		{ID: "6384", Name: "Keanu Reeves", Image: "/k.jpg"},
		{ID: "2975", Name: "Laurence Fishburne"},
	}, cast)
	assert.Equal(t, "movie", graph.queries[0].params["kind"])
}

func TestGraphCreditsSearch(t *testing.T) {
	graph := &memoryGraph{rows: map[string][]graphRecord{
		cypherSearchPerson: {{"id": "6384", "name": "Keanu Reeves"}},
		cypherSearchTitles: {{"id": "603", "title": "The Matrix", "kind": "movie"}},
	}}
	source := newGraphCredits(testConfig(), graph)

	people, err := source.SearchPerson(context.Background(), "keanu")
	require.NoError(t, err)
	assert.Equal(t, []Actor{{ID: "6384", Name: "Keanu Reeves"}}, people)
	assert.Equal(t, graphSearchLimit, graph.queries[0].params["limit"])

	titles, err := source.SearchProductions(context.Background(), "matrix")
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, "The Matrix", titles[0].Title)
}

func TestGraphCreditsFailure(t *testing.T) {
	graph := &memoryGraph{err: errFakeUpstream}

	_, err := newGraphCredits(testConfig(), graph).PersonCredits(context.Background(), "1")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, errFakeUpstream)
}

func TestGraphCreditsDrivesGame(t *testing.T) {
	graph := &memoryGraph{rows: map[string][]graphRecord{
		cypherSearchPerson:      {{"id": "1", "name": "Solo Actor"}},
		cypherPersonCredits:     {{"id": "10", "title": "One Film", "kind": "movie"}},
		cypherProductionCredits: {{"id": "1", "name": "Solo Actor"}, {"id": "2", "name": "Partner"}},
	}}

	g := newGame(testConfig(), newGraphCredits(testConfig(), graph))

	v := g.Validate(context.Background(), "Solo Actor", "one film", "Partner")
	assert.True(t, v.Valid)
}

func TestNewNeo4jClientNeedsURI(t *testing.T) {
	cfg := testConfig()
	cfg.neo4jURI = ""

	_, err := newNeo4jClient(context.Background(), cfg)
	assert.ErrorIs(t, err, errMissingGraphURI)
}
