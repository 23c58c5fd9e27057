/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"
)

//go:embed actors.yaml
var defaultActorPool []byte

const dayFormat = "2006-01-02"

type actorPoolFile struct {
	Actors []string `yaml:"actors"`
}

// loadActorPool reads the puzzle pool from --actors-file, or the built-in
// list. Blank and duplicate names are dropped.
func loadActorPool(cfg *Config) ([]string, error) {
	data := defaultActorPool
	if cfg.actorsFile != "" {
		var err error
		data, err = os.ReadFile(cfg.actorsFile)
		if err != nil {
			return nil, err
		}
	}

	return parseActorPool(data)
}

func parseActorPool(data []byte) ([]string, error) {
	var file actorPoolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing actor pool: %w", err)
	}

	seen := make(map[string]bool, len(file.Actors))
	pool := make([]string, 0, len(file.Actors))
	for _, name := range file.Actors {
		name = strings.TrimSpace(name)
		key := normalizeName(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		pool = append(pool, name)
	}

	if len(pool) < 2 {
		return nil, errors.New("actor pool needs at least two distinct names")
	}

	return pool, nil
}

// PuzzleActor is an end of a puzzle, with a ready to load portrait url.
type PuzzleActor struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type Puzzle struct {
	Start PuzzleActor `json:"start"`
	Goal  PuzzleActor `json:"goal"`
}

// Puzzles picks start and goal actors from the pool.
type Puzzles struct {
	cfg  *Config
	game *Game
	pool []string
}

func newPuzzles(cfg *Config, game *Game, pool []string) *Puzzles {
	return &Puzzles{
		cfg:  cfg,
		game: game,
		pool: pool,
	}
}

// Random draws two distinct actors.
func (p *Puzzles) Random(ctx context.Context) Puzzle {
	start, goal := p.randomPair()

	return p.build(ctx, start, goal)
}

func (p *Puzzles) randomPair() (string, string) {
	a := rand.IntN(len(p.pool))
	b := rand.IntN(len(p.pool) - 1)
	if b >= a {
		b++
	}

	return p.pool[a], p.pool[b]
}

// Daily returns the same two distinct actors for every request on a given
// calendar day.
func (p *Puzzles) Daily(ctx context.Context, day time.Time) Puzzle {
	a, b := dailyIndices(day.Format(dayFormat), len(p.pool))

	return p.build(ctx, p.pool[a], p.pool[b])
}

func dailyIndices(day string, n int) (int, int) {
	sum := blake3.Sum256([]byte("screenlink daily " + day))

	a := binary.BigEndian.Uint64(sum[0:8]) % uint64(n)
	b := binary.BigEndian.Uint64(sum[8:16]) % uint64(n-1)
	if b >= a {
		b++
	}

	return int(a), int(b)
}

// build looks up portraits for both ends. A failed lookup only costs the image.
func (p *Puzzles) build(ctx context.Context, start, goal string) Puzzle {
	names := []string{start, goal}

	ends := fetchAll(ctx, 2, 2, func(ctx context.Context, i int) (PuzzleActor, error) {
		end := PuzzleActor{Name: names[i]}

		actor, err := p.game.resolve(ctx, names[i])
		if err != nil {
			return end, err
		}
		end.Image = p.cfg.imageURL(actor.Image)

		return end, nil
	}, func(i int, err error) {
		logf(p.cfg, "GAMES: No portrait for %q: %v", names[i], err)
	})

	for i := range ends {
		if ends[i].Name == "" {
			ends[i].Name = names[i]
		}
	}

	return Puzzle{Start: ends[0], Goal: ends[1]}
}
