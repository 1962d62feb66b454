package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"deskbroker/internal/model"
	brokerrors "deskbroker/internal/shared/errors"
	"deskbroker/internal/shared/logging"
)

const keyHoldDuration = 40 * time.Millisecond

// KeySender is the OS collaborator that presses and releases individual
// virtual keys.
type KeySender interface {
	Press(ctx context.Context, code int) error
	Release(ctx context.Context, code int) error
}

type keybindExecutor struct {
	sender KeySender
	log    *logging.Logger
}

func newKeybindExecutor(sender KeySender) *keybindExecutor {
	return &keybindExecutor{sender: sender, log: logging.NewComponentLogger("KeybindExecutor")}
}

func (e *keybindExecutor) execute(ctx context.Context, payload []byte) error {
	var kb model.KeybindPayload
	if err := json.Unmarshal(payload, &kb); err != nil {
		return brokerrors.Wrap(brokerrors.KindValidation, err, "decode keybind payload")
	}

	codes := make([]int, 0, len(kb.Keys))
	for _, token := range kb.Keys {
		code, ok := resolveVirtualKey(token)
		if !ok {
			e.log.Warn("skipping unknown keybind token %q", token)
			continue
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return brokerrors.New(brokerrors.KindUnsupported, "no keybind tokens resolved")
	}

	for _, code := range codes {
		if err := e.sender.Press(ctx, code); err != nil {
			return brokerrors.Wrap(brokerrors.KindTransport, err, "press key")
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(keyHoldDuration):
	}

	for i := len(codes) - 1; i >= 0; i-- {
		if err := e.sender.Release(ctx, codes[i]); err != nil {
			return brokerrors.Wrap(brokerrors.KindTransport, err, "release key")
		}
	}
	return nil
}
