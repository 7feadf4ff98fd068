package postgresql

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/persistence"
)

// PromptRepository handles remembered prompt operations.
type PromptRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPromptRepository creates a new prompt repository.
func NewPromptRepository(db *sql.DB, logger *slog.Logger) *PromptRepository {
	return &PromptRepository{db: db, logger: logger}
}

// SavePrompt inserts the prompt unless its text is already stored.
func (p *Persistence) SavePrompt(ctx context.Context, prompt *models.PromptRecord) (bool, error) {
	return p.prompts.Save(ctx, prompt)
}

// Prompts returns remembered prompts newest first.
func (p *Persistence) Prompts(ctx context.Context, limit int) ([]*models.PromptRecord, error) {
	return p.prompts.List(ctx, limit)
}

func (r *PromptRepository) Save(ctx context.Context, prompt *models.PromptRecord) (bool, error) {
	if prompt == nil || prompt.Text == "" || prompt.ID == "" {
		return false, persistence.NewPromptError("SavePrompt", "", persistence.ErrInvalidRecord)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO prompts (id, text, created_at) VALUES ($1, $2, $3) ON CONFLICT (text) DO NOTHING`,
		prompt.ID, prompt.Text, prompt.Timestamp,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to save prompt", "prompt_id", prompt.ID, "error", err)

		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewPromptError("SavePrompt", prompt.ID, err)
	}

	return affected > 0, nil
}

func (r *PromptRepository) List(ctx context.Context, limit int) ([]*models.PromptRecord, error) {
	_, size := persistence.Page(1, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, created_at FROM prompts ORDER BY created_at DESC, id ASC LIMIT $1`, size)
	if err != nil {
		return nil, persistence.NewPromptError("Prompts", "", err)
	}

	defer func() { _ = rows.Close() }()

	prompts := make([]*models.PromptRecord, 0)

	for rows.Next() {
		var prompt models.PromptRecord

		err := rows.Scan(&prompt.ID, &prompt.Text, &prompt.Timestamp)
		if err != nil {
			return nil, persistence.NewPromptError("Prompts", "", err)
		}

		prompts = append(prompts, &prompt)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewPromptError("Prompts", "", err)
	}

	return prompts, nil
}
