package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
)

const promptsDir = "prompts"

// SavePrompt stores the prompt under the hash of its text, so the same text
// is kept once with its first timestamp.
func (fp *Persistence) SavePrompt(_ context.Context, prompt *models.PromptRecord) (bool, error) {
	if prompt == nil || prompt.Text == "" {
		return false, persistence.NewPromptError("SavePrompt", "", persistence.ErrInvalidRecord)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	err := os.MkdirAll(fp.dir(promptsDir), 0o750)
	if err != nil {
		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	path := fp.promptPath(prompt.Text)

	_, err = os.Stat(path)
	if err == nil {
		return false, nil
	}

	data, err := json.MarshalIndent(prompt, "", "  ")
	if err != nil {
		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	return true, nil
}

// Prompts returns remembered prompts newest first.
func (fp *Persistence) Prompts(_ context.Context, limit int) ([]*models.PromptRecord, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	files, err := filepath.Glob(filepath.Join(fp.dir(promptsDir), "*.json"))
	if err != nil {
		return nil, persistence.NewPromptError("Prompts", "", err)
	}

	prompts := make([]*models.PromptRecord, 0, len(files))

	for _, file := range files {
		data, err := os.ReadFile(file) //nolint:gosec // path is built from the configured root
		if err != nil {
			return nil, persistence.NewPromptError("Prompts", "", err)
		}

		var prompt models.PromptRecord

		err = json.Unmarshal(data, &prompt)
		if err != nil {
			return nil, persistence.NewPromptError("Prompts", "", fmt.Errorf("failed to decode %s: %w", filepath.Base(file), err))
		}

		prompts = append(prompts, &prompt)
	}

	slices.SortStableFunc(prompts, func(a, b *models.PromptRecord) int {
		return compareDesc(a.Timestamp, b.Timestamp)
	})

	_, size := persistence.Page(1, limit)

	return prompts[:min(size, len(prompts))], nil
}

func (fp *Persistence) promptPath(text string) string {
	sum := sha256.Sum256([]byte(text))

	return filepath.Join(fp.dir(promptsDir), hex.EncodeToString(sum[:])+".json")
}
