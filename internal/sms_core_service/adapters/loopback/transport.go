// Package loopback is a development carrier: every segment handed to it is
// answered with configured sent and delivered result codes.
package loopback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/walletsms/golang_services/internal/core_sms/classifier"
	"github.com/walletsms/golang_services/internal/sms_core_service/app"
)

var ErrSimulatedSendFailure = errors.New("loopback transport simulated send failure")

// CallbackSink is satisfied by *app.OutboundMachine.
type CallbackSink interface {
	OnSent(ctx context.Context, token string, resultCode int) error
	OnDelivered(ctx context.Context, token string, resultCode int) error
}

type Options struct {
	FailSend       bool          // refuse every hand-off synchronously
	SentCode       int           // result of the sent callback
	DeliveredCode  int           // result of the delivered callback, only after a successful send
	SimulatedDelay time.Duration // latency before each callback
}

// Transport answers callbacks on its own goroutines, like a radio would.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu   sync.RWMutex
	sink CallbackSink
	wg   sync.WaitGroup
}

func NewTransport(opts Options, logger *slog.Logger) *Transport {
	return &Transport{opts: opts, logger: logger.With("transport", "loopback")}
}

// DefaultOptions succeed at both steps.
func DefaultOptions() Options {
	return Options{SentCode: classifier.ResultOK, DeliveredCode: classifier.ResultOK}
}

// Attach sets where callbacks go. The machine is built with the transport, so
// the sink is bound afterwards.
func (t *Transport) Attach(sink CallbackSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sink = sink
}

func (t *Transport) SendSegment(ctx context.Context, d app.SegmentDispatch) error {
	t.logger.InfoContext(ctx, "Loopback: segment handed off", "recipient", d.PhoneNumber, "body_length", len(d.Body))
	if t.opts.FailSend {
		t.logger.WarnContext(ctx, "Loopback: simulated send failure", "recipient", d.PhoneNumber)
		return ErrSimulatedSendFailure
	}

	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()
	if sink == nil {
		t.logger.WarnContext(ctx, "Loopback: no callback sink attached, outcomes will never arrive")
		return nil
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		cbCtx := context.Background()
		t.sleep()
		if err := sink.OnSent(cbCtx, d.SentToken, t.opts.SentCode); err != nil {
			t.logger.Error("Loopback: sent callback failed", "error", err)
			return
		}
		if t.opts.SentCode != classifier.ResultOK {
			return
		}
		t.sleep()
		if err := sink.OnDelivered(cbCtx, d.DeliveredToken, t.opts.DeliveredCode); err != nil {
			t.logger.Error("Loopback: delivered callback failed", "error", err)
		}
	}()
	return nil
}

func (t *Transport) sleep() {
	if t.opts.SimulatedDelay > 0 {
		time.Sleep(t.opts.SimulatedDelay)
	}
}

// Wait blocks until every scheduled callback has run.
func (t *Transport) Wait() {
	t.wg.Wait()
}
