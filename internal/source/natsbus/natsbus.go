// Package natsbus captures messages published on a NATS subject.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/microblog/internal/capture"
	"github.com/alfredjeanlab/microblog/internal/source"
	"github.com/alfredjeanlab/microblog/internal/transfer"
)

// Setting keys.
const (
	KeyURL  = source.EnvPrefix + "NATS_URL"
	KeyRule = source.EnvPrefix + "NATS_RULE"
)

// pending bounds messages buffered between the NATS client and the sink.
const pending = 256

// Variant is the "nats" source. Its rule is a subject filter such as "chat.>".
type Variant struct{}

var _ source.Variant = Variant{}

func (Variant) Name() string { return "nats" }

// Extractor reads the message's "text" field.
func (Variant) Extractor() transfer.Extractor { return transfer.JSONField("text") }

func (Variant) NewStream(settings source.Settings, logger *slog.Logger) (capture.Stream, string, error) {
	if err := settings.Require(KeyURL, KeyRule); err != nil {
		return nil, "", err
	}
	return NewStream(settings[KeyURL], logger), settings[KeyRule], nil
}

// Stream subscribes to one subject at a time.
type Stream struct {
	url    string
	logger *slog.Logger
	opts   []nats.Option

	mu      sync.Mutex
	subject string
	conn    *nats.Conn
	msgs    chan *nats.Msg
	sub     *nats.Subscription
}

var _ capture.Stream = (*Stream)(nil)

// NewStream returns a stream for the server at url. Extra options are
// applied after the defaults.
func NewStream(url string, logger *slog.Logger, opts ...nats.Option) *Stream {
	return &Stream{url: url, logger: logger, opts: opts}
}

// ReplaceRules sets the subject. While Run is active the old subscription
// is dropped and the new one takes its place.
func (s *Stream) ReplaceRules(ctx context.Context, subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: empty subject", source.ErrInvalidConfig)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subject = subject
	if s.conn == nil {
		return nil
	}
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			return fmt.Errorf("unsubscribing: %w", err)
		}
		s.sub = nil
	}
	return s.subscribeLocked()
}

func (s *Stream) subscribeLocked() error {
	sub, err := s.conn.ChanSubscribe(s.subject, s.msgs)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.subject, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing subscription: %w", err)
	}
	s.sub = sub
	return nil
}

// Run connects, subscribes to the current subject and hands every message
// to sink. Asynchronous client errors go to sink.OnError. The client does
// not reconnect: Run returns nil as soon as the connection drops.
func (s *Stream) Run(ctx context.Context, sink capture.Sink) error {
	asyncErrs := make(chan error, 16)
	closed := make(chan struct{})

	defaults := []nats.Option{
		nats.Name("microblog-capture"),
		nats.NoReconnect(),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			select {
			case asyncErrs <- err:
			default:
			}
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
	}

	nc, err := nats.Connect(s.url, append(defaults, s.opts...)...)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", s.url, err)
	}
	defer nc.Close()

	s.mu.Lock()
	if s.subject == "" {
		s.mu.Unlock()
		return errors.New("natsbus: no subject installed")
	}
	s.conn = nc
	s.msgs = make(chan *nats.Msg, pending)
	err = s.subscribeLocked()
	msgs, subject := s.msgs, s.subject
	s.mu.Unlock()
	defer s.detach()
	if err != nil {
		return err
	}
	s.logger.Info("nats stream subscribed", "subject", subject)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-closed:
			return nil
		case err := <-asyncErrs:
			sink.OnError(ctx, err)
		case msg := <-msgs:
			if err := sink.OnEvent(ctx, capture.Event{Payload: string(msg.Data)}); err != nil {
				return err
			}
		}
	}
}

func (s *Stream) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	s.sub = nil
}
