package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/nlukit/internal/config"
	"github.com/chatforge/nlukit/internal/storage/sqlite"
	"github.com/chatforge/nlukit/pkg/types"
)

func newBootstrapApp(t *testing.T) *app {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Load()
	cfg.NLU.DefaultLanguage = "en"
	return &app{cfg: cfg, logger: zerolog.Nop(), store: store}
}

func TestBootstrapSeedsTraitIntentEntity(t *testing.T) {
	a := newBootstrapApp(t)
	ctx := context.Background()

	require.NoError(t, a.bootstrap(ctx))

	intent, err := a.store.Entities().GetByName(ctx, "intent")
	require.NoError(t, err)
	assert.True(t, intent.Builtin)
	assert.Equal(t, []types.Lookup{types.LookupTrait}, intent.Lookups,
		"intent classifies the whole utterance")

	lang, err := a.store.Languages().GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, "en", lang.Code)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	a := newBootstrapApp(t)
	ctx := context.Background()

	require.NoError(t, a.bootstrap(ctx))
	require.NoError(t, a.bootstrap(ctx))

	languages, err := a.store.Languages().List(ctx)
	require.NoError(t, err)
	assert.Len(t, languages, 1)
}
