/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotFound means no path, actor or production matched within the search bounds.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable wraps any failed or timed out credit source call.
	ErrUpstreamUnavailable = errors.New("credit source unavailable")

	// ErrAmbiguousInput means a required field was empty or missing.
	ErrAmbiguousInput = errors.New("missing or empty input")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func drainErrors(cfg *Config, errs <-chan error) {
	for err := range errs {
		logf(cfg, "ERROR: %v", err)
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) (int, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return w.Write(append(body, '\n'))
}

// writeJSONError maps the sentinel errors onto status codes. Anything that is
// not the caller's fault is reported as a server error.
func writeJSONError(w http.ResponseWriter, err error) (int, error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrAmbiguousInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}

	return writeJSON(w, status, errorResponse{Error: err.Error()})
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}
