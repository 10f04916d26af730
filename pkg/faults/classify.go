package faults

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/mfadhilr/toolrun/pkg/schema"
)

// Classified is the caller-facing outcome of a failed invocation: a taxonomy
// kind, a human-readable message, retry guidance, and field detail when the
// failure was a validation one.
type Classified struct {
	Kind       Kind                `json:"kind"`
	Message    string              `json:"message"`
	Retryable  bool                `json:"retryable"`
	Suggestion string              `json:"suggestion,omitempty"`
	Fields     []schema.FieldError `json:"fields,omitempty"`

	cause error
}

func (c *Classified) Error() string { return c.Message }

// Unwrap exposes the original failure for errors.Is/As chains.
func (c *Classified) Unwrap() error { return c.cause }

// AdminNotifier receives permission denials. Delivery is best effort.
type AdminNotifier func(c *Classified)

// Classifier maps raised failures onto the taxonomy. It performs no retries
// itself; retry policy belongs to the caller, informed by Retryable.
type Classifier struct {
	logger      zerolog.Logger
	notifyAdmin AdminNotifier
}

// NewClassifier creates a classifier. notifyAdmin may be nil.
func NewClassifier(logger zerolog.Logger, notifyAdmin AdminNotifier) *Classifier {
	return &Classifier{
		logger:      logger.With().Str("component", "faults").Logger(),
		notifyAdmin: notifyAdmin,
	}
}

// Classify maps err to a Classified outcome. Unrecognized failures land in
// KindUnknown rather than escaping unclassified.
func (c *Classifier) Classify(err error) *Classified {
	classified := classify(err)

	c.logger.Debug().
		Str("kind", string(classified.Kind)).
		Bool("retryable", classified.Retryable).
		Msg(classified.Message)

	if classified.Kind == KindPermission && c.notifyAdmin != nil {
		// Side channel only; a panicking or slow notifier must not take the
		// invocation down with it.
		go func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error().Interface("panic", r).Msg("Admin notifier panicked")
				}
			}()
			c.notifyAdmin(classified)
		}()
	}

	return classified
}

func classify(err error) *Classified {
	var notFound *ToolNotFoundError
	if errors.As(err, &notFound) {
		return &Classified{
			Kind:       KindToolNotFound,
			Message:    notFound.Error(),
			Retryable:  false,
			Suggestion: "check the tool id and provider id against the registry",
			cause:      err,
		}
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return &Classified{
			Kind:       KindValidation,
			Message:    validation.Error(),
			Retryable:  false,
			Suggestion: "fix the listed parameter errors and resubmit",
			Fields:     validation.Fields,
			cause:      err,
		}
	}

	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return &Classified{
			Kind:       KindTimeout,
			Message:    timeout.Error(),
			Retryable:  true,
			Suggestion: "retry with a longer timeout or after load subsides",
			cause:      err,
		}
	}

	var permission *PermissionError
	if errors.As(err, &permission) {
		return &Classified{
			Kind:       KindPermission,
			Message:    permission.Error(),
			Retryable:  false,
			Suggestion: "request access for this tool from an administrator",
			cause:      err,
		}
	}

	var plugin *PluginError
	if errors.As(err, &plugin) {
		return &Classified{
			Kind:       KindPlugin,
			Message:    plugin.Error(),
			Retryable:  false,
			Suggestion: "inspect the plugin's logs; the invocation itself was not affected",
			cause:      err,
		}
	}

	var execution *ExecutionError
	if errors.As(err, &execution) {
		return &Classified{
			Kind:       KindExecution,
			Message:    execution.Error(),
			Retryable:  true,
			Suggestion: "retry with backoff; persistent failures indicate a tool bug",
			cause:      err,
		}
	}

	return &Classified{
		Kind:      KindUnknown,
		Message:   err.Error(),
		Retryable: false,
		cause:     err,
	}
}
