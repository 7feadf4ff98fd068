package models

// Default node bindings of the built-in workflow.
const (
	DefaultPromptNodeID         = "6"
	DefaultNegativePromptNodeID = "7"
	DefaultModelNodeID          = "4"
	DefaultSeedNodeID           = "15"
)

// NodeBindings tells the patcher which nodes receive the runtime parameters.
type NodeBindings struct {
	PromptNodeID         string `json:"prompt_node_id"`
	NegativePromptNodeID string `json:"negative_prompt_node_id"`
	ModelNodeID          string `json:"model_node_id"`
	SeedNodeID           string `json:"seed_node_id"`
}

// DefaultBindings returns the bindings of the built-in workflow.
func DefaultBindings() NodeBindings {
	return NodeBindings{
		PromptNodeID:         DefaultPromptNodeID,
		NegativePromptNodeID: DefaultNegativePromptNodeID,
		ModelNodeID:          DefaultModelNodeID,
		SeedNodeID:           DefaultSeedNodeID,
	}
}

// WithDefaults fills every empty binding with its default.
func (b NodeBindings) WithDefaults() NodeBindings {
	defaults := DefaultBindings()

	if b.PromptNodeID == "" {
		b.PromptNodeID = defaults.PromptNodeID
	}

	if b.NegativePromptNodeID == "" {
		b.NegativePromptNodeID = defaults.NegativePromptNodeID
	}

	if b.ModelNodeID == "" {
		b.ModelNodeID = defaults.ModelNodeID
	}

	if b.SeedNodeID == "" {
		b.SeedNodeID = defaults.SeedNodeID
	}

	return b
}

// GenerationParameters are the runtime values patched into a template.
// Empty optional fields leave the template untouched.
type GenerationParameters struct {
	Prompt         string       `json:"prompt"                    validate:"required"`
	NegativePrompt string       `json:"negative_prompt,omitempty"`
	Model          string       `json:"model,omitempty"`
	Sampler        string       `json:"sampler,omitempty"`
	Scheduler      string       `json:"scheduler,omitempty"`
	Bindings       NodeBindings `json:"bindings"`
}

// Submission is the engine acknowledgement of one queued job.
type Submission struct {
	Index    int    `json:"index"`
	PromptID string `json:"prompt_id"`
	Number   int    `json:"number"`
	Seed     int64  `json:"seed"`
	Graph    Graph  `json:"-"`
}
