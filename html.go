/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

var endpoints = []struct {
	method, path, about string
}{
	{"GET", "/get-random-actors", "random start and goal actors"},
	{"GET", "/get-daily-actors", "today's start and goal actors"},
	{"POST", "/validate-link", "check one step of a chain"},
	{"GET", "/suggest?type=actor|title&query=", "autocomplete"},
	{"GET", "/hint?current=&goal=", "up to five next moves"},
	{"GET", "/shortest-path?start=&goal=", "shortest chain between two actors"},
	{"POST", "/submit-daily-score", "record a daily result"},
	{"GET", "/get-daily-leaderboard", "today's best results"},
	{"GET", "/versus", "start a head to head room"},
}

func serveHomePage(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var body strings.Builder
		body.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		body.WriteString(`<title>screenlink</title></head><body><h1>screenlink</h1>`)
		body.WriteString(`<p>Connect two actors through the films and shows they shared.</p><ul>`)
		for _, e := range endpoints {
			body.WriteString("<li><code>" + e.method + " " + cfg.prefix + e.path + "</code> " + e.about + "</li>")
		}
		body.WriteString(`</ul></body></html>`)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		written, err := w.Write([]byte(body.String()))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Home page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveHealthCheck reports Ok, or 503 when the credit source cannot be reached.
// A nil probe always passes.
func serveHealthCheck(cfg *Config, probe func(context.Context) error, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		status, body := http.StatusOK, "Ok\n"
		if probe != nil {
			ctx, cancel := context.WithTimeout(r.Context(), cfg.callTimeout)
			defer cancel()

			if err := probe(ctx); err != nil {
				logf(cfg, "ERROR: Health check: %v", err)
				status, body = http.StatusServiceUnavailable, "Unavailable\n"
			}
		}

		w.WriteHeader(status)

		_, err := w.Write([]byte(body))
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		data := `User-agent: *
Disallow: /validate-link
Disallow: /hint
Disallow: /shortest-path
Disallow: /suggest
Disallow: /versus

User-agent: GPTBot
Disallow: /

User-agent: CCBot
Disallow: /`

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
