// Package invalidate accepts manual tag- and path-scoped invalidation
// requests, validates them at the boundary, and records them durably in the
// manifest's pending list until a build consumes them.
package invalidate

import (
	"log/slog"
	"path"
	"strings"
	"time"

	sberrors "git.home.luguber.info/inful/sitebuilder/internal/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/manifest"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// Gateway records invalidation requests through the manifest store. Requests
// apply even to pages not yet discovered at request time; they stay pending
// until a future build discovers and evaluates a matching page.
type Gateway struct {
	store  *manifest.Store
	logger *slog.Logger
}

// NewGateway creates a gateway backed by the given store.
func NewGateway(store *manifest.Store) *Gateway {
	return &Gateway{store: store, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (g *Gateway) WithLogger(logger *slog.Logger) *Gateway {
	g.logger = logger
	return g
}

// ByTag records a tag-scoped invalidation.
func (g *Gateway) ByTag(tag string) (manifest.PendingInvalidation, error) {
	if err := validateTag(tag); err != nil {
		return manifest.PendingInvalidation{}, err
	}
	rec := manifest.PendingInvalidation{
		Kind:        manifest.InvalidateTag,
		Value:       tag,
		RequestedAt: time.Now().UTC(),
	}
	if err := g.store.AppendPendingInvalidation(rec); err != nil {
		return manifest.PendingInvalidation{}, err
	}
	g.logger.Info("Recorded tag invalidation", logfields.Tag(tag))
	return rec, nil
}

// ByPath records a path-scoped invalidation. The pattern is matched with
// glob semantics against the normalized page URL and the page source path.
func (g *Gateway) ByPath(pattern string) (manifest.PendingInvalidation, error) {
	if err := validatePattern(pattern); err != nil {
		return manifest.PendingInvalidation{}, err
	}
	rec := manifest.PendingInvalidation{
		Kind:        manifest.InvalidatePath,
		Value:       pattern,
		RequestedAt: time.Now().UTC(),
	}
	if err := g.store.AppendPendingInvalidation(rec); err != nil {
		return manifest.PendingInvalidation{}, err
	}
	g.logger.Info("Recorded path invalidation", logfields.Pattern(pattern))
	return rec, nil
}

// ParseQuery parses the CLI form "tag=<value>" or "path=<value>".
func ParseQuery(query string) (manifest.InvalidationKind, string, error) {
	kind, value, found := strings.Cut(query, "=")
	if !found {
		return "", "", sberrors.ValidationError("invalidation query must be tag=<value> or path=<value>").
			WithContext("query", query)
	}
	switch kind {
	case "tag":
		if err := validateTag(value); err != nil {
			return "", "", err
		}
		return manifest.InvalidateTag, value, nil
	case "path":
		if err := validatePattern(value); err != nil {
			return "", "", err
		}
		return manifest.InvalidatePath, value, nil
	default:
		return "", "", sberrors.ValidationError("unknown invalidation kind").WithContext("kind", kind)
	}
}

// Matches reports whether a pending record applies to the given page.
// Tag records match on tag intersection; path records match the normalized
// page URL or the page source path with path.Match glob semantics, falling
// back to exact comparison for patterns without metacharacters.
func Matches(rec manifest.PendingInvalidation, pageURL, sourcePath string, tags sets.Set[string]) bool {
	switch rec.Kind {
	case manifest.InvalidateTag:
		return tags.Has(rec.Value)
	case manifest.InvalidatePath:
		return globMatch(rec.Value, pageURL) || globMatch(rec.Value, sourcePath)
	default:
		return false
	}
}

func globMatch(pattern, target string) bool {
	// Normalized URLs end in "/"; globs are written without it.
	pattern = strings.TrimSuffix(pattern, "/")
	target = strings.TrimSuffix(target, "/")
	if pattern == target {
		return true
	}
	ok, err := path.Match(pattern, target)
	// Patterns are validated at the gateway boundary, so err only occurs for
	// records written by other tools; treat those as non-matching.
	return err == nil && ok
}

func validateTag(tag string) error {
	if strings.TrimSpace(tag) == "" {
		return sberrors.ValidationError("invalidation tag must not be empty")
	}
	if strings.ContainsAny(tag, " \t\n") {
		return sberrors.ValidationError("invalidation tag must not contain whitespace").WithContext("tag", tag)
	}
	return nil
}

func validatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return sberrors.ValidationError("invalidation path pattern must not be empty")
	}
	if _, err := path.Match(pattern, "probe"); err != nil {
		return sberrors.ValidationError("malformed glob pattern").WithContext("pattern", pattern)
	}
	return nil
}
