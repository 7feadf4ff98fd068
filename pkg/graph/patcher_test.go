package graph_test

import (
	"testing"

	"github.com/dukex/comfyphone/pkg/graph"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noiseSeedTemplate() models.Graph {
	return models.Graph{
		"4": {ClassType: "CheckpointLoaderSimple", Inputs: map[string]any{"ckpt_name": "base.safetensors"}},
		"6": {ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": "", "clip": []any{"4", float64(1)}}},
		"15": {ClassType: "KSamplerAdvanced", Inputs: map[string]any{
			"noise_seed":   float64(0),
			"steps":        float64(20),
			"sampler_name": "euler",
			"scheduler":    "normal",
			"model":        []any{"4", float64(0)},
		}},
	}
}

func TestPatchWithSeed_BindsParameters(t *testing.T) {
	t.Parallel()

	template := graph.DefaultTemplate()
	pristine := template.Clone()

	params := models.GenerationParameters{
		Prompt: "1girl, masterpiece",
		Model:  "other.safetensors",
	}

	patched := graph.PatchWithSeed(template, params, 42)

	assert.Equal(t, "1girl, masterpiece", patched["6"].Inputs["text"])
	assert.Equal(t, "other.safetensors", patched["4"].Inputs["ckpt_name"])
	assert.Equal(t, int64(42), patched["15"].Inputs["seed"])
	assert.Equal(t, "low quality, worst quality", patched["7"].Inputs["text"])

	if diff := cmp.Diff(pristine, template); diff != "" {
		t.Errorf("template was mutated (-want +got):\n%s", diff)
	}
}

func TestPatchWithSeed_SameSeedIsIdempotent(t *testing.T) {
	t.Parallel()

	params := models.GenerationParameters{Prompt: "landscape", Sampler: "dpmpp_2m", Scheduler: "karras"}

	first := graph.PatchWithSeed(graph.DefaultTemplate(), params, 7)
	second := graph.PatchWithSeed(graph.DefaultTemplate(), params, 7)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("patches differ (-first +second):\n%s", diff)
	}
}

func TestPatchWithSeed_MissingNodesAreSkipped(t *testing.T) {
	t.Parallel()

	template := models.Graph{
		"1": {ClassType: "EmptyLatentImage", Inputs: map[string]any{"width": float64(512)}},
	}

	patched := graph.PatchWithSeed(template, models.GenerationParameters{Prompt: "x", Model: "m"}, 1)

	if diff := cmp.Diff(template, patched); diff != "" {
		t.Errorf("unexpected change (-want +got):\n%s", diff)
	}
}

func TestPatchWithSeed_EmptyModelKeepsCheckpoint(t *testing.T) {
	t.Parallel()

	patched := graph.PatchWithSeed(noiseSeedTemplate(), models.GenerationParameters{Prompt: "x"}, 1)

	assert.Equal(t, "base.safetensors", patched["4"].Inputs["ckpt_name"])
}

func TestPatchWithSeed_SeedKeyScan(t *testing.T) {
	t.Parallel()

	params := models.GenerationParameters{Prompt: "x"}

	patched := graph.PatchWithSeed(noiseSeedTemplate(), params, 123)

	assert.Equal(t, int64(123), patched["15"].Inputs["noise_seed"])
	assert.InDelta(t, 20, patched["15"].Inputs["steps"], 0)
}

func TestPatchWithSeed_SamplerAndSchedulerBindEverywhere(t *testing.T) {
	t.Parallel()

	params := models.GenerationParameters{Prompt: "x", Sampler: "dpmpp_2m", Scheduler: "karras"}

	patched := graph.PatchWithSeed(graph.DefaultTemplate(), params, 1)

	assert.Equal(t, "dpmpp_2m", patched["12"].Inputs["sampler_name"])
	assert.Equal(t, "dpmpp_2m", patched["20"].Inputs["sampler_name"])
	assert.Equal(t, "karras", patched["12"].Inputs["scheduler"])
	assert.NotContains(t, patched["20"].Inputs, "scheduler")
	assert.NotContains(t, patched["43"].Inputs, "sampler_name")
}

func TestPatchWithSeed_NegativePrompt(t *testing.T) {
	t.Parallel()

	params := models.GenerationParameters{Prompt: "x", NegativePrompt: "blurry"}

	patched := graph.PatchWithSeed(graph.DefaultTemplate(), params, 1)

	assert.Equal(t, "blurry", patched["7"].Inputs["text"])
}

func TestPatchWithSeed_CustomBindings(t *testing.T) {
	t.Parallel()

	template := models.Graph{
		"prompt": {ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": ""}},
		"noise":  {ClassType: "RandomNoise", Inputs: map[string]any{"noise_seed": float64(0)}},
	}

	params := models.GenerationParameters{
		Prompt:   "castle",
		Bindings: models.NodeBindings{PromptNodeID: "prompt", SeedNodeID: "noise"},
	}

	patched := graph.PatchWithSeed(template, params, 99)

	assert.Equal(t, "castle", patched["prompt"].Inputs["text"])
	assert.Equal(t, int64(99), patched["noise"].Inputs["noise_seed"])
}

func TestPatcher_Patch_DrawsFromSeedSource(t *testing.T) {
	t.Parallel()

	seeds := []int64{11, 22, 33}
	next := 0

	patcher := graph.NewPatcher(graph.WithSeedSource(func() int64 {
		seed := seeds[next]
		next++

		return seed
	}))

	params := models.GenerationParameters{Prompt: "x"}

	for _, want := range seeds {
		patched, seed := patcher.Patch(noiseSeedTemplate(), params)
		require.Equal(t, want, seed)
		assert.Equal(t, want, patched["15"].Inputs["noise_seed"])
	}
}

func TestRandomSeed_Range(t *testing.T) {
	t.Parallel()

	for range 1000 {
		seed := graph.RandomSeed()
		require.GreaterOrEqual(t, seed, int64(0))
		require.Less(t, seed, graph.MaxSeed)
	}
}
