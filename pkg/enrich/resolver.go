package enrich

import (
	"context"

	"github.com/antzucaro/matchr"

	"github.com/cellarist/sommelier/pkg/config"
)

// minProposalConfidence is the Jaro-Winkler floor below which a near match
// is not worth proposing to the user.
const minProposalConfidence = 0.90

// CandidateLister supplies the keys the resolver scans. The resolver is a
// read-only consumer of the cache; it never holds a reference to the cache
// owner.
type CandidateLister func(ctx context.Context) ([]Key, error)

// Match is one fuzzy resolution proposal.
type Match struct {
	Key        Key
	Confidence float64
}

// Resolver proposes near matches for cache keys that missed exactly.
type Resolver struct {
	list       CandidateLister
	thresholds config.FuzzyThresholds
}

// NewResolver wires a Resolver over a candidate source.
func NewResolver(list CandidateLister, thresholds config.FuzzyThresholds) *Resolver {
	return &Resolver{list: list, thresholds: thresholds}
}

// Resolve looks for a single high-confidence near match for the query key.
// Candidates must share the vintage, sit within the configured edit
// distances, and clear the confidence floor. An ambiguous result (more than
// one candidate passing) yields no proposal.
func (r *Resolver) Resolve(ctx context.Context, query Key) (*Match, error) {
	candidates, err := r.list(ctx)
	if err != nil {
		return nil, err
	}

	var passing []Match
	for _, cand := range candidates {
		if cand == query || cand.Vintage != query.Vintage {
			continue
		}
		if matchr.Levenshtein(query.Producer, cand.Producer) > r.thresholds.Producer {
			continue
		}
		if matchr.Levenshtein(query.WineName, cand.WineName) > r.thresholds.Wine {
			continue
		}
		confidence := (matchr.JaroWinkler(query.Producer, cand.Producer, false) +
			matchr.JaroWinkler(query.WineName, cand.WineName, false)) / 2
		if confidence < minProposalConfidence {
			continue
		}
		passing = append(passing, Match{Key: cand, Confidence: confidence})
	}

	if len(passing) != 1 {
		return nil, nil
	}
	return &passing[0], nil
}
