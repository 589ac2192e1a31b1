package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

type piiMiddleware struct {
	next     ports.CommitStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of change fields
// matching the patterns before they reach the store. Reads return the
// masked values; the originals are never persisted.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CommitStore) ports.CommitStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Commit(ctx context.Context, sessionID, actionID string, changes []domain.StateChange) error {
	// Copy before masking to avoid side effects on the outcome the engine
	// is still publishing to the session.
	masked := make([]domain.StateChange, len(changes))
	for i, change := range changes {
		masked[i] = change
		if m.matches(change.Field) {
			masked[i].OldValue = "***"
			masked[i].NewValue = "***"
			continue
		}
		if sub, ok := change.NewValue.(map[string]any); ok {
			masked[i].NewValue = maskMap(deepCopyMap(sub), m.patterns)
		}
		if sub, ok := change.OldValue.(map[string]any); ok {
			masked[i].OldValue = maskMap(deepCopyMap(sub), m.patterns)
		}
	}
	return m.next.Commit(ctx, sessionID, actionID, masked)
}

func (m *piiMiddleware) Commits(ctx context.Context, sessionID string) ([]ports.CommitRecord, error) {
	return m.next.Commits(ctx, sessionID)
}

func (m *piiMiddleware) matches(field string) bool {
	for _, p := range m.patterns {
		if p.MatchString(field) {
			return true
		}
	}
	return false
}

// Helpers

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		// Handle nested maps
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v // shallow copy of value
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) map[string]any {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = "***"
				break
			}
		}

		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
	return m
}
