// Package graph patches node-graph templates with runtime generation parameters.
package graph

import (
	"math/rand/v2"
	"strings"

	"github.com/dukex/comfyphone/pkg/models"
)

// MaxSeed is the exclusive upper bound of generated seeds.
const MaxSeed int64 = 1_000_000_000

// SeedSource draws a seed for one patch.
type SeedSource func() int64

// RandomSeed draws uniformly over [0, MaxSeed).
func RandomSeed() int64 {
	return rand.Int64N(MaxSeed)
}

// Patcher turns a template graph into a concrete, submittable graph.
type Patcher struct {
	seeds SeedSource
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithSeedSource replaces the random seed source.
func WithSeedSource(source SeedSource) Option {
	return func(p *Patcher) {
		if source != nil {
			p.seeds = source
		}
	}
}

// NewPatcher creates a patcher drawing seeds from RandomSeed unless configured otherwise.
func NewPatcher(opts ...Option) *Patcher {
	p := &Patcher{seeds: RandomSeed}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Patch draws a fresh seed and applies params to a deep copy of template.
// It returns the patched graph and the seed that was written.
func (p *Patcher) Patch(template models.Graph, params models.GenerationParameters) (models.Graph, int64) {
	seed := p.seeds()

	return PatchWithSeed(template, params, seed), seed
}

// PatchWithSeed applies params and seed to a deep copy of template.
//
// Bindings are soft: a binding that names a node absent from the graph is
// skipped, so partial or custom graphs stay usable. Sampler and scheduler
// names are written to every node that has a sampler_name or scheduler input.
func PatchWithSeed(template models.Graph, params models.GenerationParameters, seed int64) models.Graph {
	graph := template.Clone()
	if graph == nil {
		graph = models.Graph{}
	}

	bindings := params.Bindings.WithDefaults()

	if node := graph.Node(bindings.PromptNodeID); node != nil {
		setInput(node, models.InputText, params.Prompt)
	}

	if params.NegativePrompt != "" {
		if node := graph.Node(bindings.NegativePromptNodeID); node != nil {
			setInput(node, models.InputText, params.NegativePrompt)
		}
	}

	if params.Model != "" {
		if node := graph.Node(bindings.ModelNodeID); node != nil {
			setInput(node, models.InputCheckpoint, params.Model)
		}
	}

	if node := graph.Node(bindings.SeedNodeID); node != nil {
		for key := range node.Inputs {
			if strings.Contains(strings.ToLower(key), "seed") {
				node.Inputs[key] = seed
			}
		}
	}

	if params.Sampler != "" || params.Scheduler != "" {
		for _, node := range graph {
			if node == nil {
				continue
			}

			if _, ok := node.Inputs[models.InputSamplerName]; ok && params.Sampler != "" {
				node.Inputs[models.InputSamplerName] = params.Sampler
			}

			if _, ok := node.Inputs[models.InputScheduler]; ok && params.Scheduler != "" {
				node.Inputs[models.InputScheduler] = params.Scheduler
			}
		}
	}

	return graph
}

func setInput(node *models.Node, key string, value any) {
	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}

	node.Inputs[key] = value
}
