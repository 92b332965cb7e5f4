package utils

import (
	"regexp"
	"strconv"
	"strings"
)

// FallbackSlug is used when a title tokenizes to nothing.
const FallbackSlug = "change-me"

var (
	// Word characters are Unicode letters, digits, and underscore.
	// \w would be ASCII-only and drop accented or CJK letters.
	nonWordRun  = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	edgeHyphens = regexp.MustCompile(`^-+|-+$`)
)

// TokenizeTitle derives the base slug for a plaque title: lowercase,
// every run of non-word characters collapsed to a single hyphen,
// leading/trailing hyphens stripped. An empty result falls back to
// FallbackSlug.
func TokenizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = nonWordRun.ReplaceAllString(s, "-")
	s = edgeHyphens.ReplaceAllString(s, "")
	if s == "" {
		return FallbackSlug
	}
	return s
}

// SlugCounter reports how many plaques in a scope already hold a slug.
// Store errors are returned unchanged to the caller of AssignSlug.
type SlugCounter func(scope, slug string) (int, error)

// AssignSlug derives a unique slug for title within scope. Collisions
// are resolved by appending a decimal counter to the base slug; the
// counter advances by the number of matches found at each check, so
// heavily-colliding slugs converge in fewer round trips than a +1
// loop would.
//
// AssignSlug only reads; the caller persists the result. Uniqueness
// under concurrent submissions holds only when the caller serializes
// the count-then-write sequence per scope (e.g. inside the store's
// transaction for that scope).
func AssignSlug(title, scope string, count SlugCounter) (string, error) {
	base := TokenizeTitle(title)
	slug := base

	n, err := count(scope, slug)
	if err != nil {
		return "", err
	}

	counter := 1
	for n > 0 {
		counter += n
		slug = base + strconv.Itoa(counter)
		n, err = count(scope, slug)
		if err != nil {
			return "", err
		}
	}
	return slug, nil
}
