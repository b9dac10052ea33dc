package actions

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/nicholas-fedor/registry-cleaner/internal/util"
	"github.com/nicholas-fedor/registry-cleaner/pkg/filters"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// ConfirmPrompt is written before reading an answer.
const ConfirmPrompt = "Are you sure you want to continue? [y/N] "

// ConfirmFilters checks the image and tag filters and asks for confirmation
// of each dangerous one unless cfg.Force is set.
//
// The prompt is not written when in is a file that is not a terminal; the
// answers are then read from the piped input as they are.
//
// Parameters:
//   - cfg: Run configuration.
//   - in: Source of answers, usually os.Stdin.
//   - out: Destination of prompts, usually os.Stdout.
//
// Returns:
//   - error: ErrAborted if an answer is not a yes or input ends.
func ConfirmFilters(cfg types.Config, in io.Reader, out io.Writer) error {
	prompt := ConfirmPrompt
	if !isInteractive(in) {
		prompt = ""
	}

	reader := bufio.NewReader(in)

	for _, filter := range []struct {
		kind    string
		pattern string
	}{
		{kind: "images", pattern: cfg.ImagesFilter},
		{kind: "tags", pattern: cfg.TagsFilter},
	} {
		fields := logrus.Fields{
			"kind":    filter.kind,
			"pattern": filter.pattern,
		}

		logrus.WithFields(fields).Info("🧐 Checking filter")

		if !filters.IsDangerous(filter.pattern) {
			continue
		}

		if cfg.Force {
			logrus.WithFields(fields).Warn("Dangerous filter accepted without confirmation")

			continue
		}

		logrus.WithFields(fields).Warn("⚠️ Dangerous filter, it can match every name")

		if prompt == "" {
			logrus.WithFields(fields).Info("Input is not a terminal, reading the answer from piped input")
		}

		if err := confirm(reader, out, prompt); err != nil {
			return fmt.Errorf("%w: %s filter %q", err, filter.kind, filter.pattern)
		}
	}

	return nil
}

// isInteractive reports whether in is a terminal or a reader that is not a file.
func isInteractive(in io.Reader) bool {
	file, ok := in.(*os.File)
	if !ok {
		return true
	}

	return term.IsTerminal(int(file.Fd()))
}

// confirm writes the prompt, if any, and reads one answer.
func confirm(reader *bufio.Reader, out io.Writer, prompt string) error {
	if prompt != "" {
		if _, err := fmt.Fprint(out, prompt); err != nil {
			return fmt.Errorf("%w: %w", ErrAborted, err)
		}
	}

	answer, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}

	if !util.ParseYesNo(answer) {
		return ErrAborted
	}

	return nil
}
