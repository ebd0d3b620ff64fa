package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarist/sommelier/pkg/config"
)

func staticLister(keys ...Key) CandidateLister {
	return func(context.Context) ([]Key, error) { return keys, nil }
}

var testThresholds = config.FuzzyThresholds{Producer: 2, Wine: 3}

func TestResolveFindsNearMatch(t *testing.T) {
	stored := Key{Producer: "chateau margaux", WineName: "chateau margaux", Vintage: "2015"}
	r := NewResolver(staticLister(stored), testThresholds)

	// The diacritic variant folds to the same string, so simulate a typo.
	query := Key{Producer: "chateu margaux", WineName: "chateu margaux", Vintage: "2015"}
	match, err := r.Resolve(context.Background(), query)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, stored, match.Key)
	assert.GreaterOrEqual(t, match.Confidence, minProposalConfidence)
}

func TestResolveRespectsVintage(t *testing.T) {
	stored := Key{Producer: "chateau margaux", WineName: "chateau margaux", Vintage: "2014"}
	r := NewResolver(staticLister(stored), testThresholds)

	query := Key{Producer: "chateu margaux", WineName: "chateu margaux", Vintage: "2015"}
	match, err := r.Resolve(context.Background(), query)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolveRejectsDistantNames(t *testing.T) {
	stored := Key{Producer: "penfolds", WineName: "grange", Vintage: "2016"}
	r := NewResolver(staticLister(stored), testThresholds)

	query := Key{Producer: "petrus", WineName: "pomerol", Vintage: "2016"}
	match, err := r.Resolve(context.Background(), query)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolveAmbiguousYieldsNothing(t *testing.T) {
	a := Key{Producer: "chateau margau", WineName: "chateau margau", Vintage: "2015"}
	b := Key{Producer: "chateau margaus", WineName: "chateau margaus", Vintage: "2015"}
	r := NewResolver(staticLister(a, b), testThresholds)

	query := Key{Producer: "chateau margaux", WineName: "chateau margaux", Vintage: "2015"}
	match, err := r.Resolve(context.Background(), query)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolveSkipsExactKey(t *testing.T) {
	exact := Key{Producer: "penfolds", WineName: "grange", Vintage: "2016"}
	r := NewResolver(staticLister(exact), testThresholds)

	match, err := r.Resolve(context.Background(), exact)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestResolvePropagatesListerError(t *testing.T) {
	r := NewResolver(func(context.Context) ([]Key, error) {
		return nil, errors.New("db down")
	}, testThresholds)

	_, err := r.Resolve(context.Background(), Key{})
	require.Error(t, err)
}
