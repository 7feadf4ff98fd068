package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dukex/comfyphone/pkg/autocomplete"
	"github.com/dukex/comfyphone/pkg/cmd"
	"github.com/dukex/comfyphone/pkg/log"
	cli "github.com/urfave/cli/v3"
)

// cursorMarker marks the cursor inside an input line.
const cursorMarker = "|"

const lookupTimeout = 10 * time.Second

func SuggestCommand() *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Read prompts from stdin and print tag suggestions for the segment under the cursor",
		Description: "Each line is a prompt. The cursor sits at the end of the line, or at the first '" +
			cursorMarker + "' when present.",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("suggest")

			source, closeTags, err := cmd.NewTagSource(ctx, logger, command.String("tags-db"), command.String("tags-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := closeTags()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close tag source", "error", err)
				}
			}()

			completer := autocomplete.New(source, logger, autocomplete.WithDelay(command.Duration("debounce")))
			defer completer.Close()

			return suggest(ctx, completer, command.Root().Reader, command.Root().Writer)
		},
	}
}

func suggest(ctx context.Context, completer *autocomplete.Engine, r io.Reader, w io.Writer) error {
	settled := make(chan autocomplete.State, 1)

	completer.OnChange(func(state autocomplete.State) {
		if state.Loading {
			return
		}

		select {
		case settled <- state:
		default:
		}
	})

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		text, cursor := splitCursor(scanner.Text())

		select {
		case <-settled:
		default:
		}

		completer.Update(text, cursor)

		segment := autocomplete.ExtractSegment(text, cursor)
		if !autocomplete.Eligible(segment) {
			_, err := fmt.Fprintf(w, "%q: no lookup\n", segment.Term)
			if err != nil {
				return err
			}

			continue
		}

		state, err := awaitSuggestions(ctx, settled)
		if err != nil {
			return err
		}

		err = printSuggestions(w, segment.Term, state)
		if err != nil {
			return err
		}
	}

	return scanner.Err()
}

func splitCursor(line string) (string, int) {
	before, after, found := strings.Cut(line, cursorMarker)
	if !found {
		return line, len(line)
	}

	return before + after, len(before)
}

func awaitSuggestions(ctx context.Context, settled <-chan autocomplete.State) (autocomplete.State, error) {
	timer := time.NewTimer(lookupTimeout)
	defer timer.Stop()

	select {
	case state := <-settled:
		return state, nil
	case <-timer.C:
		return autocomplete.State{}, fmt.Errorf("tag lookup timed out after %s", lookupTimeout)
	case <-ctx.Done():
		return autocomplete.State{}, ctx.Err()
	}
}

func printSuggestions(w io.Writer, term string, state autocomplete.State) error {
	_, err := fmt.Fprintf(w, "%q: %d suggestions\n", term, len(state.Suggestions))
	if err != nil {
		return err
	}

	for _, s := range state.Suggestions {
		_, err := fmt.Fprintf(w, "  %s\t%s\t%d\n", s.Name, s.Category, s.PostCount)
		if err != nil {
			return err
		}
	}

	return nil
}
