/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPClient lets tests swap the transport used to reach themoviedb.org.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TMDB is a CreditSource backed by the themoviedb.org v3 api. Requests are
// throttled with a token bucket and each one gets its own timeout.
type TMDB struct {
	baseURL string
	apiKey  string
	client  HTTPClient
	limiter *rate.Limiter
	timeout time.Duration
}

func newTMDB(cfg *Config, client HTTPClient) *TMDB {
	if client == nil {
		client = &http.Client{}
	}

	return &TMDB{
		baseURL: strings.TrimSuffix(cfg.tmdbURL, "/"),
		apiKey:  cfg.tmdbAPIKey,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.tmdbRate), cfg.tmdbBurst),
		timeout: cfg.callTimeout,
	}
}

type tmdbPerson struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	ProfilePath        string  `json:"profile_path"`
	KnownForDepartment string  `json:"known_for_department"`
	Popularity         float64 `json:"popularity"`
	Order              int     `json:"order"`
}

type tmdbTitle struct {
	ID         int64   `json:"id"`
	MediaType  string  `json:"media_type"`
	Title      string  `json:"title"`
	Name       string  `json:"name"`
	PosterPath string  `json:"poster_path"`
	Popularity float64 `json:"popularity"`
	GenreIDs   []int   `json:"genre_ids"`
}

// Genres that credit people as themselves rather than as cast.
var tmdbSelfGenres = map[int]bool{
	10763: true, // News
	10767: true, // Talk
}

func (t tmdbTitle) production() (Production, bool) {
	p := Production{
		ID:         strconv.FormatInt(t.ID, 10),
		Image:      t.PosterPath,
		Popularity: t.Popularity,
	}

	switch t.MediaType {
	case "movie":
		p.Kind = KindMovie
		p.Title = t.Title
	case "tv":
		p.Kind = KindSeries
		p.Title = t.Name
	default:
		return Production{}, false
	}

	return p, p.Title != ""
}

func (t tmdbTitle) isSelfAppearance() bool {
	for _, g := range t.GenreIDs {
		if tmdbSelfGenres[g] {
			return true
		}
	}
	return false
}

func (p tmdbPerson) actor() Actor {
	return Actor{
		ID:    strconv.FormatInt(p.ID, 10),
		Name:  p.Name,
		Image: p.ProfilePath,
	}
}

// get performs one throttled request and decodes the json body into out.
func (t *TMDB) get(ctx context.Context, method, path string, query url.Values, out any) error {
	began := time.Now()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.limiter.Wait(ctx); err != nil {
		observeUpstream(sourceTMDB, method, 0, began)
		return fmt.Errorf("%w: waiting for rate limiter: %w", ErrUpstreamUnavailable, err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", t.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		observeUpstream(sourceTMDB, method, 0, began)
		return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, method, redactKey(err, t.apiKey))
	}
	defer resp.Body.Close()

	observeUpstream(sourceTMDB, method, resp.StatusCode, began)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s returned %s", ErrUpstreamUnavailable, method, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrUpstreamUnavailable, method, err)
	}

	return nil
}

// redactKey keeps the api key out of logged url errors.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

// SearchPerson returns people known for acting first, falling back to
// everyone when no actor matches.
func (t *TMDB) SearchPerson(ctx context.Context, name string) ([]Actor, error) {
	var body struct {
		Results []tmdbPerson `json:"results"`
	}

	err := t.get(ctx, "search_person", "/search/person", url.Values{"query": {name}}, &body)
	if err != nil {
		return nil, err
	}

	acting := make([]Actor, 0, len(body.Results))
	everyone := make([]Actor, 0, len(body.Results))
	for _, p := range body.Results {
		everyone = append(everyone, p.actor())
		if p.KnownForDepartment == "Acting" {
			acting = append(acting, p.actor())
		}
	}

	if len(acting) > 0 {
		return acting, nil
	}
	return everyone, nil
}

// PersonCredits merges movie and series acting credits, most popular first.
// Series appear once even when the person played several characters.
func (t *TMDB) PersonCredits(ctx context.Context, id string) ([]Production, error) {
	var body struct {
		Cast []tmdbTitle `json:"cast"`
	}

	err := t.get(ctx, "person_credits", "/person/"+url.PathEscape(id)+"/combined_credits", nil, &body)
	if err != nil {
		return nil, err
	}

	seen := make(map[nodeKey]bool, len(body.Cast))
	out := make([]Production, 0, len(body.Cast))
	for _, c := range body.Cast {
		if c.isSelfAppearance() {
			continue
		}

		p, ok := c.production()
		if !ok || seen[productionKey(p)] {
			continue
		}
		seen[productionKey(p)] = true

		out = append(out, p)
	}

	slices.SortStableFunc(out, func(a, b Production) int {
		return cmp.Compare(b.Popularity, a.Popularity)
	})

	return out, nil
}

// ProductionCredits returns the cast in billing order.
func (t *TMDB) ProductionCredits(ctx context.Context, id string, kind Kind) ([]Actor, error) {
	var path string
	switch kind {
	case KindMovie:
		path = "/movie/" + url.PathEscape(id) + "/credits"
	case KindSeries:
		path = "/tv/" + url.PathEscape(id) + "/aggregate_credits"
	default:
		return nil, fmt.Errorf("production kind %q: %w", kind, ErrAmbiguousInput)
	}

	var body struct {
		Cast []tmdbPerson `json:"cast"`
	}

	if err := t.get(ctx, "production_credits", path, nil, &body); err != nil {
		return nil, err
	}

	slices.SortStableFunc(body.Cast, func(a, b tmdbPerson) int {
		return cmp.Compare(a.Order, b.Order)
	})

	out := make([]Actor, 0, len(body.Cast))
	for _, p := range body.Cast {
		out = append(out, p.actor())
	}

	return out, nil
}

// SearchProductions looks up movies and series by title, for autocomplete.
func (t *TMDB) SearchProductions(ctx context.Context, query string) ([]Production, error) {
	var body struct {
		Results []tmdbTitle `json:"results"`
	}

	err := t.get(ctx, "search_multi", "/search/multi", url.Values{"query": {query}}, &body)
	if err != nil {
		return nil, err
	}

	out := make([]Production, 0, len(body.Results))
	for _, r := range body.Results {
		if p, ok := r.production(); ok {
			out = append(out, p)
		}
	}

	return out, nil
}
