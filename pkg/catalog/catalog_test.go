package catalog_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/dukex/comfyphone/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	calls         atomic.Int32
	models        []string
	samplerErr    error
	schedulerErrs bool
}

func (f *fakeLister) Models(context.Context) ([]string, error) {
	f.calls.Add(1)

	return f.models, nil
}

func (f *fakeLister) Samplers(context.Context) ([]string, error) {
	if f.samplerErr != nil {
		return nil, f.samplerErr
	}

	return []string{"euler", "dpmpp_2m"}, nil
}

func (f *fakeLister) Schedulers(context.Context) ([]string, error) {
	return []string{"normal", "karras"}, nil
}

func TestCache_Get_LoadsOnce(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{models: []string{"a.safetensors"}}
	cache := catalog.New(lister, slog.New(slog.DiscardHandler))

	first, err := cache.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.safetensors"}, first.Models)
	assert.Equal(t, []string{"euler", "dpmpp_2m"}, first.Samplers)
	assert.False(t, first.RefreshedAt.IsZero())

	_, err = cache.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(1), lister.calls.Load())
}

func TestCache_Refresh_KeepsPreviousOnFailure(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{models: []string{"a.safetensors"}}
	cache := catalog.New(lister, slog.New(slog.DiscardHandler))

	_, err := cache.Refresh(t.Context())
	require.NoError(t, err)

	lister.samplerErr = errors.New("engine down")
	lister.models = []string{"b.safetensors"}

	next, err := cache.Refresh(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "samplers")
	assert.Equal(t, []string{"b.safetensors"}, next.Models)
	assert.Equal(t, []string{"euler", "dpmpp_2m"}, next.Samplers)
}

func TestCache_Get_ReturnsCopies(t *testing.T) {
	t.Parallel()

	cache := catalog.New(&fakeLister{models: []string{"a"}}, slog.New(slog.DiscardHandler))

	first, err := cache.Get(t.Context())
	require.NoError(t, err)

	first.Models[0] = "mutated"

	second, err := cache.Get(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "a", second.Models[0])
}

func TestCache_Start(t *testing.T) {
	t.Parallel()

	cache := catalog.New(&fakeLister{}, slog.New(slog.DiscardHandler))

	require.Error(t, cache.Start("not a schedule"))

	require.NoError(t, cache.Start("*/5 * * * *"))
	cache.Stop(t.Context())
}
