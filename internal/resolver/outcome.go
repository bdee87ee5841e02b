// Package resolver turns music and podcast URLs into cross-platform link sets:
// cache lookup, short-link expansion, the link resolution API and an ordered
// chain of metadata fallbacks, with every result persisted to history.
package resolver

import (
	"crossfade/internal/store"
	"crossfade/pkg/odesli"
)

// Kind classifies an Outcome.
type Kind int

const (
	// OutcomeError means nothing usable could be extracted.
	OutcomeError Kind = iota
	// OutcomeSuccess means a cross-platform link set is available.
	OutcomeSuccess
	// OutcomeFallback means only metadata was found; the caller should search by SearchQuery.
	OutcomeFallback
)

func (k Kind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFallback:
		return "fallback"
	default:
		return "error"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of every resolution call.
// Success carries Response and Record, Fallback carries Record and SearchQuery,
// Error carries Message.
type Outcome struct {
	Kind        Kind                 `json:"kind"`
	Response    *odesli.Response     `json:"response,omitempty"`
	Record      *store.HistoryRecord `json:"record,omitempty"`
	SearchQuery string               `json:"searchQuery,omitempty"`
	Message     string               `json:"message,omitempty"`
}

// Success builds a successful outcome.
func Success(resp *odesli.Response, rec *store.HistoryRecord) Outcome {
	return Outcome{Kind: OutcomeSuccess, Response: resp, Record: rec}
}

// Fallback builds a metadata-only outcome.
func Fallback(rec *store.HistoryRecord, searchQuery string) Outcome {
	return Outcome{Kind: OutcomeFallback, Record: rec, SearchQuery: searchQuery}
}

// Failure builds an error outcome.
func Failure(message string) Outcome {
	return Outcome{Kind: OutcomeError, Message: message}
}
