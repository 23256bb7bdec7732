package prompt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftkit-ai/driftkit-framework-sub011/pkg/prompt"
)

type stubDict struct{ groups map[string]string }

func (d stubDict) Group(_ context.Context, id string) (string, error) { return d.groups[id], nil }

func TestSaveFlipsCurrentToReplaced(t *testing.T) {
	ctx := context.Background()
	store := prompt.NewInmemStore()

	p1, err := store.Save(ctx, &prompt.Prompt{Method: "greet", Language: "en", Message: "Hello {{name}}"})
	require.NoError(t, err)
	assert.Equal(t, prompt.StateCurrent, p1.State)

	p2, err := store.Save(ctx, &prompt.Prompt{Method: "greet", Language: "en", Message: "Hi {{name}}"})
	require.NoError(t, err)
	assert.Equal(t, prompt.StateCurrent, p2.State)
	assert.NotEqual(t, p1.ID, p2.ID)

	hist, err := store.History(ctx, "greet", "en")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, prompt.StateReplaced, hist[1].State)
}

func TestSaveIdenticalMessageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := prompt.NewInmemStore()

	p1, err := store.Save(ctx, &prompt.Prompt{Method: "greet", Language: "en", Message: "Hello {{name}}"})
	require.NoError(t, err)

	p2, err := store.Save(ctx, &prompt.Prompt{Method: "greet", Language: "en", Message: "Hello {{name}}"})
	require.NoError(t, err)

	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, prompt.StateCurrent, p2.State)

	hist, err := store.History(ctx, "greet", "en")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestRenderSubstitutesVarsAndGroups(t *testing.T) {
	ctx := context.Background()
	store := prompt.NewInmemStore()
	dict := stubDict{groups: map[string]string{"rules": "Be concise."}}
	reg := prompt.NewRegistry(store, dict, nil)

	p, err := reg.Save(ctx, &prompt.Prompt{Method: "greet", Language: "en", Message: "@{rules} Hello {{name}}!"})
	require.NoError(t, err)

	out := reg.Render(ctx, p, map[string]string{"name": "Ada"})
	assert.Equal(t, "Be concise. Hello Ada!", out)
}

func TestRenderMissingVarRendersEmpty(t *testing.T) {
	ctx := context.Background()
	reg := prompt.NewRegistry(prompt.NewInmemStore(), nil, nil)
	p := &prompt.Prompt{Method: "greet", Language: "en", Message: "Hello {{name}}"}
	out := reg.Render(ctx, p, nil)
	assert.Equal(t, "Hello ", out)
}

func TestRenderCurrentMissingReturnsMissingError(t *testing.T) {
	ctx := context.Background()
	reg := prompt.NewRegistry(prompt.NewInmemStore(), nil, nil)
	_, err := reg.RenderCurrent(ctx, "unknown", "en", nil)
	require.Error(t, err)
	var missing *prompt.MissingError
	require.ErrorAs(t, err, &missing)
}
