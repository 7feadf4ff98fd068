package engine

import (
	"context"
	"log/slog"

	"github.com/dukex/comfyphone/pkg/graph"
	"github.com/dukex/comfyphone/pkg/models"
	"github.com/dukex/comfyphone/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PromptQueuer accepts one patched graph for execution.
type PromptQueuer interface {
	QueuePrompt(ctx context.Context, clientID string, graph models.Graph) (*PromptResponse, error)
}

// Submitter queues batches of patched graphs, one request per job.
type Submitter struct {
	queuer  PromptQueuer
	patcher *graph.Patcher
	tracer  trace.Tracer
	logger  *slog.Logger
}

func NewSubmitter(queuer PromptQueuer, patcher *graph.Patcher, tracer trace.Tracer, logger *slog.Logger) *Submitter {
	if patcher == nil {
		patcher = graph.NewPatcher()
	}

	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Submitter{
		queuer:  queuer,
		patcher: patcher,
		tracer:  tracer,
		logger:  logger.With("module", "submitter"),
	}
}

// Submit patches template count times and queues each result in order,
// waiting for every acknowledgement before sending the next job. The first
// failure aborts the batch; submissions accepted before it are returned
// together with a *SubmissionError.
func (s *Submitter) Submit(
	ctx context.Context,
	clientID string,
	template models.Graph,
	params models.GenerationParameters,
	count int,
) ([]models.Submission, error) {
	if count < 1 {
		count = 1
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "engine.submit_batch",
		attribute.String(otelhelper.ClientIDKey, clientID),
		attribute.Int(otelhelper.BatchSizeKey, count),
	)
	defer span.End()

	submissions := make([]models.Submission, 0, count)

	for index := range count {
		err := ctx.Err()
		if err != nil {
			return submissions, s.fail(ctx, span, index, err)
		}

		patched, seed := s.patcher.Patch(template, params)

		response, err := s.queuer.QueuePrompt(ctx, clientID, patched)
		if err != nil {
			return submissions, s.fail(ctx, span, index, err)
		}

		submissions = append(submissions, models.Submission{
			Index:    index,
			PromptID: response.PromptID,
			Number:   response.Number,
			Seed:     seed,
			Graph:    patched,
		})

		s.logger.InfoContext(ctx, "Job submitted",
			"index", index,
			"count", count,
			"prompt_id", response.PromptID,
			"seed", seed)
	}

	return submissions, nil
}

func (s *Submitter) fail(ctx context.Context, span trace.Span, index int, err error) error {
	submissionErr := &SubmissionError{Index: index, Err: err}

	otelhelper.SetError(span, submissionErr, attribute.Int(otelhelper.BatchIndexKey, index))
	s.logger.ErrorContext(ctx, "Batch submission aborted", "index", index, "error", err)

	return submissionErr
}
