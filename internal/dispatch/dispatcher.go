package dispatch

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"deskbroker/internal/llm"
	"deskbroker/internal/model"
	"deskbroker/internal/observability"
	"deskbroker/internal/shared/async"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

// UsageTracker is the subset of *store.Store the Dispatcher needs to
// record a successful invocation.
type UsageTracker interface {
	RecordUsage(ctx context.Context, appName string, position int, now time.Time) error
}

// ResultNotifier is told the short, user-facing outcome of a dispatch so
// it can be surfaced without blocking the scheduler.
type ResultNotifier interface {
	Notify(appName string, position int, ok bool, message string)
}

// Dispatcher executes one ring slot's invocation and, only on success,
// records its usage. It never aborts the caller's loop: all failures
// are reported through ResultNotifier.
type Dispatcher struct {
	keybind    *keybindExecutor
	toolPrompt *toolPromptExecutor
	inline     *inlineScriptExecutor
	usage      UsageTracker
	notifier   ResultNotifier
	log        *logging.Logger
}

func New(sender KeySender, pool ToolPool, helper *llm.Helper, interpreter string, usage UsageTracker, notifier ResultNotifier) *Dispatcher {
	return &Dispatcher{
		keybind:    newKeybindExecutor(sender),
		toolPrompt: newToolPromptExecutor(pool, helper),
		inline:     newInlineScriptExecutor(interpreter),
		usage:      usage,
		notifier:   notifier,
		log:        logging.NewComponentLogger("Dispatcher"),
	}
}

// Dispatch runs slot's side effect off the caller's goroutine via
// async.Go, so a slow tool call never delays the foreground poll.
func (d *Dispatcher) Dispatch(ctx context.Context, appName string, slot model.RingSlot) {
	async.Go(d.log, "dispatcher.invoke", func() {
		d.invoke(ctx, appName, slot)
	})
}

func (d *Dispatcher) invoke(ctx context.Context, appName string, slot model.RingSlot) {
	ctx, span := observability.StartSpan(ctx, observability.TraceSpanDispatch,
		attribute.String(observability.TraceAttrAppName, appName),
		attribute.String(observability.TraceAttrKind, string(slot.Kind)),
		attribute.String("deskbroker.position", strconv.Itoa(slot.Position)),
	)
	defer span.End()

	message, err := d.run(ctx, appName, slot)
	observability.MarkSpanResult(span, err)
	if err != nil {
		d.log.Warn("dispatch failed for %s position %d: %v", appName, slot.Position, err)
		if d.notifier != nil {
			d.notifier.Notify(appName, slot.Position, false, err.Error())
		}
		return
	}

	if err := d.usage.RecordUsage(ctx, appName, slot.Position, time.Now()); err != nil {
		d.log.Warn("failed to record usage for %s position %d: %v", appName, slot.Position, err)
	}
	if d.notifier != nil {
		d.notifier.Notify(appName, slot.Position, true, message)
	}
}

func (d *Dispatcher) run(ctx context.Context, appName string, slot model.RingSlot) (string, error) {
	switch slot.Kind {
	case model.KindKeybind:
		return "", d.keybind.execute(ctx, slot.ActionPayload)
	case model.KindToolPrompt:
		return d.toolPrompt.execute(ctx, appName, slot.ActionPayload)
	case model.KindInlineScript:
		return d.inline.execute(ctx, slot.ActionPayload)
	default:
		return "", brokerrors.New(brokerrors.KindUnsupported, "unknown action kind")
	}
}
