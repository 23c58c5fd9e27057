/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// graphClient is the slice of a graph database the Neo4j credit source needs.
type graphClient interface {
	ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]graphRecord, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// graphRecord is one row of a query result, keyed by column.
type graphRecord map[string]any

var errMissingGraphURI = errors.New("neo4j uri is required")

type neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
}

// newNeo4jClient opens a Bolt driver and checks it can reach the server.
func newNeo4jClient(ctx context.Context, cfg *Config) (*neo4jClient, error) {
	if cfg.neo4jURI == "" {
		return nil, errMissingGraphURI
	}

	auth := neo4j.NoAuth()
	if cfg.neo4jUser != "" {
		auth = neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPassword, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.neo4jURI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = max(cfg.parallelism*4, 16)
	})
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}

	return &neo4jClient{
		driver:   driver,
		database: cfg.neo4jDatabase,
	}, nil
}

func (c *neo4jClient) ExecuteRead(ctx context.Context, cypher string, params map[string]any) ([]graphRecord, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	var records []graphRecord
	for res.Next(ctx) {
		rec := res.Record()
		record := make(graphRecord, len(rec.Keys))
		for _, key := range rec.Keys {
			value, _ := rec.Get(key)
			record[key] = value
		}
		records = append(records, record)
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func (c *neo4jClient) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Credit graph layout:
//
//	(:Person {id, name, profile_path, popularity})
//	  -[:ACTED_IN {order}]->
//	(:Title {id, kind, title, poster_path, popularity})
//
// where kind is "movie" or "series".
const (
	cypherSearchPerson = `
MATCH (p:Person)
WHERE toLower(p.name) CONTAINS toLower($name)
RETURN p.id AS id, p.name AS name, p.profile_path AS image
ORDER BY toLower(p.name) = toLower($name) DESC, p.popularity DESC, p.id
LIMIT $limit`

	cypherPersonCredits = `
MATCH (:Person {id: $id})-[:ACTED_IN]->(t:Title)
RETURN DISTINCT t.id AS id, t.title AS title, t.kind AS kind, t.poster_path AS image, t.popularity AS popularity
ORDER BY popularity DESC, id`

	cypherProductionCredits = `
MATCH (p:Person)-[r:ACTED_IN]->(:Title {id: $id, kind: $kind})
RETURN p.id AS id, p.name AS name, p.profile_path AS image, min(r.order) AS billing
ORDER BY billing, id`

	cypherSearchTitles = `
MATCH (t:Title)
WHERE toLower(t.title) CONTAINS toLower($query)
RETURN t.id AS id, t.title AS title, t.kind AS kind, t.poster_path AS image, t.popularity AS popularity
ORDER BY popularity DESC, id
LIMIT $limit`
)

const graphSearchLimit = 20

// GraphCredits is a CreditSource reading from a pre-loaded credit graph.
type GraphCredits struct {
	client  graphClient
	timeout time.Duration
}

func newGraphCredits(cfg *Config, client graphClient) *GraphCredits {
	return &GraphCredits{
		client:  client,
		timeout: cfg.callTimeout,
	}
}

func (g *GraphCredits) read(ctx context.Context, method, cypher string, params map[string]any) ([]graphRecord, error) {
	began := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	records, err := g.client.ExecuteRead(ctx, cypher, params)
	if err != nil {
		observeUpstream(sourceNeo4j, method, 0, began)
		return nil, fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, method, err)
	}

	observeUpstream(sourceNeo4j, method, 200, began)

	return records, nil
}

func (g *GraphCredits) SearchPerson(ctx context.Context, name string) ([]Actor, error) {
	records, err := g.read(ctx, "search_person", cypherSearchPerson, map[string]any{
		"name":  name,
		"limit": graphSearchLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Actor, 0, len(records))
	for _, r := range records {
		out = append(out, r.actor())
	}

	return out, nil
}

func (g *GraphCredits) PersonCredits(ctx context.Context, id string) ([]Production, error) {
	records, err := g.read(ctx, "person_credits", cypherPersonCredits, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}

	out := make([]Production, 0, len(records))
	for _, r := range records {
		if p, ok := r.production(); ok {
			out = append(out, p)
		}
	}

	return out, nil
}

func (g *GraphCredits) ProductionCredits(ctx context.Context, id string, kind Kind) ([]Actor, error) {
	records, err := g.read(ctx, "production_credits", cypherProductionCredits, map[string]any{
		"id":   id,
		"kind": string(kind),
	})
	if err != nil {
		return nil, err
	}

	out := make([]Actor, 0, len(records))
	for _, r := range records {
		out = append(out, r.actor())
	}

	return out, nil
}

func (g *GraphCredits) SearchProductions(ctx context.Context, query string) ([]Production, error) {
	records, err := g.read(ctx, "search_titles", cypherSearchTitles, map[string]any{
		"query": query,
		"limit": graphSearchLimit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Production, 0, len(records))
	for _, r := range records {
		if p, ok := r.production(); ok {
			out = append(out, p)
		}
	}

	return out, nil
}

func (r graphRecord) actor() Actor {
	return Actor{
		ID:    r.text("id"),
		Name:  r.text("name"),
		Image: r.text("image"),
	}
}

func (r graphRecord) production() (Production, bool) {
	kind := Kind(r.text("kind"))
	if !kind.isProduction() {
		return Production{}, false
	}

	p := Production{
		ID:         r.text("id"),
		Title:      r.text("title"),
		Kind:       kind,
		Image:      r.text("image"),
		Popularity: r.number("popularity"),
	}

	return p, p.ID != "" && p.Title != ""
}

func (r graphRecord) text(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func (r graphRecord) number(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}
