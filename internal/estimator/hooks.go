package estimator

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

// ErrUnknownTensor is returned when a hook requests a value the estimator does not expose.
var ErrUnknownTensor = errors.New("estimator: unknown tensor")

// Hook observes training steps.
type Hook interface {
	// Begin is called once before the first step with the names of the
	// values the estimator reports.
	Begin(available []string) error
	// AfterStep is called after every step with the values of that step.
	AfterStep(mode Mode, step int64, values map[string]float64)
}

// LoggingTensorHook logs selected step values every N steps, starting
// with the first step it sees.
type LoggingTensorHook struct {
	tensors map[string]string // alias -> tensor name
	aliases []string
	everyN  int
	iter    int
	logger  *slog.Logger
}

// NewLoggingTensorHook logs tensors (alias -> tensor name) every everyN
// steps. A nil logger means slog.Default().
func NewLoggingTensorHook(tensors map[string]string, everyN int, logger *slog.Logger) *LoggingTensorHook {
	if everyN <= 0 {
		everyN = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	aliases := make([]string, 0, len(tensors))
	for alias := range tensors {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return &LoggingTensorHook{
		tensors: tensors,
		aliases: aliases,
		everyN:  everyN,
		logger:  logger,
	}
}

// Begin checks that every requested tensor exists.
func (h *LoggingTensorHook) Begin(available []string) error {
	for _, alias := range h.aliases {
		if name := h.tensors[alias]; !slices.Contains(available, name) {
			return fmt.Errorf("%w: %q (alias %q)", ErrUnknownTensor, name, alias)
		}
	}
	h.iter = 0
	return nil
}

// AfterStep logs on the first step and then every everyN steps.
func (h *LoggingTensorHook) AfterStep(mode Mode, step int64, values map[string]float64) {
	defer func() { h.iter++ }()
	if len(h.aliases) == 0 || h.iter%h.everyN != 0 {
		return
	}
	attrs := make([]any, 0, 2*len(h.aliases)+4)
	attrs = append(attrs, "mode", mode, "step", step)
	for _, alias := range h.aliases {
		attrs = append(attrs, alias, values[h.tensors[alias]])
	}
	h.logger.Info("tensors", attrs...)
}

// Seen returns how many steps the hook has observed since Begin.
func (h *LoggingTensorHook) Seen() int {
	return h.iter
}
