/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed words.txt
var defaultWords string

// DefaultPool returns the built-in word pool.
func DefaultPool() []string {
	pool, _ := ParsePool(strings.NewReader(defaultWords))
	return pool
}

// ParsePool reads one word per line. Blank lines and lines starting with
// '#' are skipped, and duplicates (ignoring case) keep their first spelling.
func ParsePool(r io.Reader) ([]string, error) {
	var pool []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}

		key := strings.ToLower(word)
		if seen[key] {
			continue
		}
		seen[key] = true

		pool = append(pool, word)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return pool, nil
}

// LoadPool reads a word pool from path, or returns the built-in pool when
// path is empty.
func LoadPool(path string) ([]string, error) {
	if path == "" {
		return DefaultPool(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pool, err := ParsePool(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if len(pool) < RoundSize {
		return nil, fmt.Errorf("%s has %d words, need at least %d: %w", path, len(pool), RoundSize, ErrPoolTooSmall)
	}

	return pool, nil
}
