package events

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizduel/go/internal/controller"
	"github.com/mcdev12/quizduel/go/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, ev ViewChanged) error
	Close() error
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev ViewChanged) error {
	log.Info().
		Str("code", ev.Code).
		Str("phase", string(ev.Phase)).
		Int("round", ev.Round).
		Str("role", string(ev.Role)).
		Str("path", ev.Path).
		Msg("view changed")
	return nil
}

func (LogPublisher) Close() error { return nil }

// ViewSink publishes every view token a controller emits. Failures are
// logged; the game does not wait on the broker.
func ViewSink(p Publisher, role models.Role, clock clockwork.Clock) controller.ViewSink {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return controller.ViewFunc(func(ctx context.Context, v controller.ViewToken) {
		ev := ViewChanged{
			Code:      v.Code,
			Phase:     v.Phase,
			Round:     v.Round,
			Path:      v.Path(),
			Role:      role,
			Timestamp: clock.Now().UTC(),
		}
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := p.Publish(pctx, ev); err != nil {
			log.Error().Err(err).Str("code", ev.Code).Str("msg_id", ev.MsgID()).Msg("failed to publish view change")
		}
	})
}
