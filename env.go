// FILE: env.go
// Package main – Environment helpers and safe .env loading.
//
// This file provides:
//  1. Small helpers to read environment variables with sane defaults
//     (strings, ints, floats, bools).
//  2. A dependency-free .env loader (loadRunEnv) that reads ./.env (and
//     ../.env) and injects ONLY the keys this program needs into the
//     process environment, rather than the whole file, so unrelated
//     secrets in a shared .env never leak into this process.
package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// --------- Env helpers (used across files) ---------

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}
func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// --------- Lightweight .env loader (no external deps) ---------

// loadRunEnv reads .env from "." and ".." and sets ONLY the keys this
// program needs. It won't override variables already present in the
// environment.
func loadRunEnv() {
	needed := map[string]struct{}{
		"SYMBOL": {}, "RUN_DIR": {}, "DURATION_SEC": {}, "STARTING_CASH": {},
		"FEES_MAKER_BPS": {}, "FEES_TAKER_BPS": {}, "SLIP_BPS": {},
		"STRATEGY": {}, "STRATEGY_PARAMS": {}, "TESTNET": {}, "LIVE": {},
		"POLL_INTERVAL_MS": {}, "MAX_WAIT_MS": {}, "PORT": {},
		"TICK_SIZE": {}, "STEP_SIZE": {}, "MIN_NOTIONAL": {},
		"SPREAD_TRACKER_WINDOW": {}, "SEED": {},
		"BAR_RULE": {}, "BAR_LIMIT": {},
		"ASYNC_WRITERS": {}, "WRITER_QUEUE_LEN": {},
		"VIZ_BAR_INTERVAL_MS": {}, "VIZ_GAP_FILL": {},
	}
	try := func(path string) {
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()
		s := bufio.NewScanner(f)
		for s.Scan() {
			line := strings.TrimSpace(s.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if strings.HasPrefix(line, "export ") {
				line = strings.TrimSpace(line[len("export "):])
			}
			eq := strings.Index(line, "=")
			if eq <= 0 {
				continue
			}
			key := strings.TrimSpace(line[:eq])
			if _, ok := needed[key]; !ok {
				continue
			}
			val := strings.TrimSpace(line[eq+1:])
			if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
				val = val[1 : len(val)-1]
			}
			if idx := strings.IndexAny(val, "#"); idx >= 0 {
				val = strings.TrimSpace(val[:idx])
			}
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, val)
			}
		}
	}
	for _, base := range []string{".", ".."} {
		try(filepath.Join(base, ".env"))
	}
}
