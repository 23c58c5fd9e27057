/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
)

const (
	maxBodyBytes     = 64 * 1024
	maxAutocomplete  = 5
	minAutocomplete  = 2
	leaderboardLimit = 10
)

var validate = newValidator()

// newValidator reports fields by their json names. notblank rejects strings
// holding only whitespace.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

type validateLinkRequest struct {
	Actor     string `json:"actor" validate:"notblank,max=200"`
	Title     string `json:"title" validate:"notblank,max=300"`
	NextActor string `json:"next_actor" validate:"notblank,max=200"`
}

type validateLinkResponse struct {
	Valid      bool   `json:"valid"`
	Title      string `json:"title,omitempty"`
	Poster     string `json:"poster,omitempty"`
	ActorImage string `json:"actor_image,omitempty"`
}

type submitScoreRequest struct {
	Player   string  `json:"player" validate:"notblank,max=64"`
	Steps    int     `json:"steps" validate:"required,min=1,max=1000"`
	Duration float64 `json:"duration" validate:"min=0,max=86400"`
}

type autocompleteEntry struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

type pathResponse struct {
	Path []Node `json:"path"`
	Hops int    `json:"hops"`
}

// API serves the game's json endpoints.
type API struct {
	cfg         *Config
	game        *Game
	puzzles     *Puzzles
	leaderboard *Leaderboard
	now         func() time.Time
}

func newAPI(cfg *Config, game *Game, puzzles *Puzzles, leaderboard *Leaderboard) *API {
	return &API{
		cfg:         cfg,
		game:        game,
		puzzles:     puzzles,
		leaderboard: leaderboard,
		now:         time.Now,
	}
}

func (a *API) today() string {
	return a.now().Format(dayFormat)
}

func (a *API) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), a.cfg.requestTimeout)
}

func decodeBody(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decoding request body: %w", ErrAmbiguousInput)
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("field %s failed %q: %w", verrs[0].Field(), verrs[0].Tag(), ErrAmbiguousInput)
		}
		return fmt.Errorf("%v: %w", err, ErrAmbiguousInput)
	}

	return nil
}

// serve wraps a json handler with the shared headers, error reporting and
// verbose logging every endpoint gets.
func (a *API) serve(name string, errs chan<- error, fn func(w http.ResponseWriter, r *http.Request, p httprouter.Params) (int, error)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		securityHeaders(a.cfg, w)
		corsHeaders(a.cfg, w, r)

		written, err := fn(w, r, p)
		if err != nil {
			errs <- fmt.Errorf("%s: %w", name, err)

			return
		}

		logf(a.cfg, "SERVE: %s (%s) to %s in %s",
			name,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func (a *API) randomActors(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	ctx, cancel := a.withTimeout(r)
	defer cancel()

	return writeJSON(w, http.StatusOK, a.puzzles.Random(ctx))
}

func (a *API) dailyActors(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	ctx, cancel := a.withTimeout(r)
	defer cancel()

	return writeJSON(w, http.StatusOK, a.puzzles.Daily(ctx, a.now()))
}

func (a *API) validateLink(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	var req validateLinkRequest
	if err := decodeBody(r, &req); err != nil {
		return writeJSONError(w, err)
	}

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	verdict := a.game.Validate(ctx, req.Actor, req.Title, req.NextActor)

	resp := validateLinkResponse{Valid: verdict.Valid}
	if verdict.Valid {
		resp.Title = verdict.Production.Title
		resp.Poster = a.cfg.imageURL(verdict.Poster)
		resp.ActorImage = a.cfg.imageURL(verdict.ActorImage)
	}

	return writeJSON(w, http.StatusOK, resp)
}

func (a *API) hint(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	current := strings.TrimSpace(r.URL.Query().Get("current"))
	goal := strings.TrimSpace(r.URL.Query().Get("goal"))
	if current == "" || goal == "" {
		return writeJSONError(w, fmt.Errorf("current and goal: %w", ErrAmbiguousInput))
	}

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	suggestions, err := a.game.Hint(ctx, current, goal)
	if err != nil {
		logf(a.cfg, "HINTS: %v", err)
	}

	for i := range suggestions {
		suggestions[i].Image = a.cfg.imageURL(suggestions[i].Image)
	}

	return writeJSON(w, http.StatusOK, suggestions)
}

func (a *API) shortestPath(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	start := strings.TrimSpace(r.URL.Query().Get("start"))
	goal := strings.TrimSpace(r.URL.Query().Get("goal"))
	if start == "" || goal == "" {
		return writeJSONError(w, fmt.Errorf("start and goal: %w", ErrAmbiguousInput))
	}

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	path, err := a.game.ShortestPath(ctx, start, goal)
	if err != nil {
		logf(a.cfg, "PATHS: %v", err)

		return writeJSON(w, http.StatusOK, pathResponse{Path: []Node{}})
	}

	nodes := make([]Node, len(path))
	for i, n := range path {
		n.Image = a.cfg.imageURL(n.Image)
		nodes[i] = n
	}

	return writeJSON(w, http.StatusOK, pathResponse{Path: nodes, Hops: path.Hops()})
}

// autocomplete suggests actor names or titles as the player types.
func (a *API) autocomplete(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	kind := r.URL.Query().Get("type")

	entries := []autocompleteEntry{}
	if len([]rune(query)) < minAutocomplete {
		return writeJSON(w, http.StatusOK, entries)
	}

	ctx, cancel := a.withTimeout(r)
	defer cancel()

	switch kind {
	case "actor":
		actors, err := a.game.source.SearchPerson(ctx, query)
		if err != nil {
			logf(a.cfg, "CREDITS: Autocomplete %q: %v", query, err)
		}
		for _, actor := range firstN(actors, maxAutocomplete) {
			entries = append(entries, autocompleteEntry{Name: actor.Name, Image: a.cfg.imageURL(actor.Image)})
		}
	case "title":
		searcher, ok := a.game.source.(TitleSearcher)
		if !ok {
			break
		}
		productions, err := searcher.SearchProductions(ctx, query)
		if err != nil {
			logf(a.cfg, "CREDITS: Autocomplete %q: %v", query, err)
		}
		for _, p := range productions {
			if len(entries) == maxAutocomplete {
				break
			}
			if p.Image == "" {
				continue
			}
			entries = append(entries, autocompleteEntry{Name: p.Title, Image: a.cfg.imageURL(p.Image)})
		}
	default:
		return writeJSONError(w, fmt.Errorf("type must be actor or title: %w", ErrAmbiguousInput))
	}

	return writeJSON(w, http.StatusOK, entries)
}

func (a *API) submitScore(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	var req submitScoreRequest
	if err := decodeBody(r, &req); err != nil {
		return writeJSONError(w, err)
	}

	duration := time.Duration(req.Duration * float64(time.Second))

	if err := a.leaderboard.Submit(r.Context(), a.today(), req.Player, req.Steps, duration); err != nil {
		return writeJSONError(w, err)
	}

	return writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (a *API) dailyLeaderboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) (int, error) {
	scores, err := a.leaderboard.Top(r.Context(), a.today(), leaderboardLimit)
	if err != nil {
		return writeJSONError(w, err)
	}

	return writeJSON(w, http.StatusOK, scores)
}

// corsHeaders allows the configured origins to call the api from a browser.
func corsHeaders(cfg *Config, w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	for _, allowed := range cfg.allowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed != "*" && allowed != origin {
			continue
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")

		return
	}
}

func servePreflight(cfg *Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corsHeaders(cfg, w, r)
		w.WriteHeader(http.StatusNoContent)
	})
}

func registerAPI(cfg *Config, api *API, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/get-random-actors", api.serve("Random puzzle", errs, api.randomActors))
	mux.GET(cfg.prefix+"/get-daily-actors", api.serve("Daily puzzle", errs, api.dailyActors))
	mux.POST(cfg.prefix+"/validate-link", api.serve("Link check", errs, api.validateLink))
	mux.GET(cfg.prefix+"/suggest", api.serve("Autocomplete", errs, api.autocomplete))
	mux.GET(cfg.prefix+"/hint", api.serve("Hint", errs, api.hint))
	mux.GET(cfg.prefix+"/shortest-path", api.serve("Shortest path", errs, api.shortestPath))
	mux.POST(cfg.prefix+"/submit-daily-score", api.serve("Score submission", errs, api.submitScore))
	mux.GET(cfg.prefix+"/get-daily-leaderboard", api.serve("Leaderboard", errs, api.dailyLeaderboard))

	mux.GlobalOPTIONS = servePreflight(cfg)
}
