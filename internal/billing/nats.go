package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-agent-platform/internal/lifecycle"
	"voice-agent-platform/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
)

// Handler is satisfied by *Service.
type Handler interface {
	Handle(ctx context.Context, ev Event) (Outcome, error)
}

// Reply is sent back when the publisher used request/reply. OK=false means
// the publisher should redeliver.
type Reply struct {
	OK        bool   `json:"ok"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Error     string `json:"error,omitempty"`
}

// subscription is the part of *nats.Subscription that Close needs.
type subscription interface {
	Drain() error
	IsValid() bool
}

// Subscriber consumes billing events from a NATS queue group, so each event
// is handled by one replica.
//
// Plain publishes have nobody to redeliver them, so an incomplete enforcement
// is retried here with backoff until the per-message timeout. Request/reply
// publishers get the error back and retry themselves.
type Subscriber struct {
	sub          subscription
	h            Handler
	log          *slog.Logger
	timeout      time.Duration
	drainTimeout time.Duration
	newBackOff   func() backoff.BackOff
}

// Subscribe joins queue on subject. Close stops delivery and waits for
// in-flight messages to finish.
func Subscribe(nc *nats.Conn, subject, queue string, h Handler, log *slog.Logger, timeout time.Duration) (*Subscriber, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &Subscriber{
		h:            h,
		log:          log.With("component", "billing_subscriber", "subject", subject),
		timeout:      timeout,
		drainTimeout: timeout + 5*time.Second,
	}
	sub, err := nc.QueueSubscribe(subject, queue, s.handleMsg)
	if err != nil {
		return nil, fmt.Errorf("billing: subscribe %s: %w", subject, err)
	}
	s.sub = sub
	s.log.Info("billing subscriber started", "queue", queue)
	return s, nil
}

func (s *Subscriber) handleMsg(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(logger.With(context.Background(), s.log), s.timeout)
	defer cancel()
	s.respond(msg, s.process(ctx, msg.Data, msg.Reply == ""))
}

func (s *Subscriber) process(ctx context.Context, data []byte, retry bool) Reply {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Error("failed to decode billing event", "err", err, "size", len(data))
		return Reply{Error: "invalid json: " + err.Error()}
	}
	out, err := s.handle(ctx, ev, retry)
	if err != nil {
		s.log.Error("billing event failed", "billing_event_id", ev.ID, "workspace_id", ev.WorkspaceID, "err", err)
		return Reply{Duplicate: out.Duplicate, Error: err.Error()}
	}
	return Reply{OK: true, Duplicate: out.Duplicate}
}

// handle runs the event, retrying incomplete enforcement when retry is set.
// Duplicates are cheap to replay: the store skips them and only the
// reconcile pass runs again.
func (s *Subscriber) handle(ctx context.Context, ev Event, retry bool) (Outcome, error) {
	if !retry {
		return s.h.Handle(ctx, ev)
	}
	var out Outcome
	attempt := 0
	op := func() error {
		attempt++
		var err error
		out, err = s.h.Handle(ctx, ev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, lifecycle.ErrEnforcementIncomplete) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		s.log.Warn("billing enforcement incomplete, retrying",
			"billing_event_id", ev.ID, "workspace_id", ev.WorkspaceID, "attempt", attempt, "err", err)
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(s.backOff(), ctx))
	return out, err
}

func (s *Subscriber) backOff() backoff.BackOff {
	if s.newBackOff != nil {
		return s.newBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // bounded by the message context
	return b
}

func (s *Subscriber) respond(msg *nats.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	b, err := json.Marshal(r)
	if err != nil {
		s.log.Error("failed to encode reply", "err", err)
		return
	}
	if err := msg.Respond(b); err != nil {
		s.log.Warn("failed to send reply", "err", err)
	}
}

// Close unsubscribes and blocks until messages already delivered have been
// handled, or the drain timeout passes.
func (s *Subscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	if err := s.sub.Drain(); err != nil {
		return fmt.Errorf("billing: drain: %w", err)
	}
	wait := s.drainTimeout
	if wait <= 0 {
		wait = 30 * time.Second
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for s.sub.IsValid() {
		select {
		case <-deadline.C:
			return errors.New("billing: drain timed out")
		case <-tick.C:
		}
	}
	return nil
}
