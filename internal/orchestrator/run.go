package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ai-gateway/chatstream-go/internal/pipeline"
	"github.com/ai-gateway/chatstream-go/internal/reqerr"
	"github.com/ai-gateway/chatstream-go/internal/splitter"
	"github.com/ai-gateway/chatstream-go/internal/sse"
	"github.com/ai-gateway/chatstream-go/internal/transform"
	"github.com/ai-gateway/chatstream-go/internal/transport"
)

// pending is the live state of one run. Only cancel may be called from
// other goroutines; the rest belongs to the run goroutine.
type pending[T any] struct {
	id      string
	cancel  context.CancelCauseFunc
	overall *time.Timer
	stream  *time.Timer
	chunks  []T
	done    chan struct{}
}

// arm (re)starts the per-chunk timer.
func (p *pending[T]) arm(d time.Duration) {
	if d <= 0 {
		return
	}
	if p.stream == nil {
		p.stream = time.AfterFunc(d, func() { p.cancel(reqerr.ErrStreamTimeout) })
		return
	}
	p.stream.Reset(d)
}

func (p *pending[T]) disarm() {
	if p.stream != nil {
		p.stream.Stop()
	}
}

func (p *pending[T]) stopTimers() {
	if p.overall != nil {
		p.overall.Stop()
	}
	p.disarm()
}

// item is what the pipeline yields: a chunk, a record to skip, or the end
// of the stream.
type item[T any] struct {
	v    T
	skip bool
	done bool
}

func (r *Request[T]) run(ctx context.Context, p *pending[T], body json.RawMessage) {
	ctx, span := r.tracer.Start(ctx, "chatstream.request", trace.WithAttributes(
		attribute.String("request.id", p.id),
		attribute.String("url.full", r.url),
	))
	err := r.exchange(ctx, p, body)
	// a timer firing after the exchange completed must not turn it into a failure
	p.stopTimers()
	r.settle(ctx, p, span, err)
}

func (r *Request[T]) exchange(ctx context.Context, p *pending[T], body json.RawMessage) error {
	headers := http.Header{RequestIDHeader: {p.id}}
	resp, err := await(ctx, func() (*http.Response, error) {
		return r.client.Send(ctx, r.url, transport.SendOptions{Method: r.method, Params: body, Headers: headers})
	}, func(resp *http.Response) { _ = resp.Body.Close() })
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	dispatch := Classify(contentType, r.custom != nil)
	r.log.Debug().Str("request_id", p.id).Int("status", resp.StatusCode).Str("content_type", contentType).Stringer("dispatch", dispatch).Msg("orchestrator: response")

	switch dispatch {
	case DispatchEventStream:
		return r.stream(ctx, p, resp.Body, pipeline.New(resp.Body, sse.Separator, r.eventItem))
	case DispatchCustom:
		sep := r.separator
		if sep == nil {
			sep = splitter.Newline
		}
		return r.stream(ctx, p, resp.Body, pipeline.New(resp.Body, sep, r.customItem))
	case DispatchJSON:
		return r.buffer(ctx, p, resp.Body)
	}
	return errors.Wrapf(reqerr.ErrUnsupportedContentType, "%q", contentType)
}

func (r *Request[T]) eventItem(record string) (item[T], error) {
	ev, err := sse.Parse(record)
	if err != nil {
		return item[T]{}, err
	}
	// records without data (keepalive pings, bare id or retry) are only
	// delivered to callers asking for the raw record
	if ev.Empty() || (ev.Data == "" && !rawEvents[T]()) {
		return item[T]{skip: true}, nil
	}
	if ev.Done() && !r.keepDone {
		return item[T]{done: true}, nil
	}
	v, err := transform.Event[T](ev)
	return item[T]{v: v}, err
}

func rawEvents[T any]() bool {
	var zero T
	_, ok := any(zero).(sse.Event)
	return ok
}

func (r *Request[T]) customItem(segment string) (item[T], error) {
	v, err := r.custom(segment)
	return item[T]{v: v}, err
}

func (r *Request[T]) stream(ctx context.Context, p *pending[T], body io.Closer, s *pipeline.Stream[item[T]]) error {
	r.setState(p, StateStreaming)
	for {
		p.arm(r.streamTimeout)
		it, err := drain(ctx, body, s.Next)
		p.disarm()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if it.done {
			return nil
		}
		if it.skip {
			continue
		}
		r.update(p, it.v)
	}
}

func (r *Request[T]) buffer(ctx context.Context, p *pending[T], body io.ReadCloser) error {
	r.setState(p, StateBuffering)
	p.arm(r.streamTimeout)
	data, err := drain(ctx, body, func() ([]byte, error) { return io.ReadAll(body) })
	p.disarm()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	v, err := transform.Bytes[T](data)
	if err != nil {
		return reqerr.Wrap(reqerr.NameDecode, err, "decode response: %v", err)
	}
	r.update(p, v)
	// OnUpdate may have aborted the run
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

func (r *Request[T]) update(p *pending[T], v T) {
	p.chunks = append(p.chunks, v)
	if r.usage != nil {
		r.usage.AddChunks(1)
	}
	if r.callbacks.OnUpdate != nil {
		r.callbacks.OnUpdate(v)
	}
}

// settle fires the single terminal callback. The exchange observes
// cancellation at every suspension point, so a nil err means it completed
// first; a failed exchange reports the cancellation cause when there is one.
func (r *Request[T]) settle(ctx context.Context, p *pending[T], span trace.Span, err error) {
	if err != nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}

	var (
		state   = StateSucceeded
		outcome = state.String()
		failure *reqerr.Error
	)
	if err != nil {
		failure = reqerr.Normalize(err)
		outcome = failure.Name
		switch failure.Name {
		case reqerr.NameAbort:
			state = StateAborted
		case reqerr.NameTimeout, reqerr.NameStreamTimeout:
			state = StateTimedOut
		default:
			state = StateFailed
		}
	}

	r.mu.Lock()
	r.state = state
	r.pending = nil
	r.mu.Unlock()

	if r.usage != nil {
		r.usage.Settle(outcome)
	}
	span.SetAttributes(attribute.Int("chunks", len(p.chunks)), attribute.String("outcome", outcome))
	if failure != nil {
		span.RecordError(failure)
		span.SetStatus(codes.Error, failure.Message)
		r.log.Debug().Str("request_id", p.id).Str("error", failure.Name).Msg(failure.Message)
	} else {
		r.log.Debug().Str("request_id", p.id).Int("chunks", len(p.chunks)).Msg("orchestrator: succeeded")
	}
	span.End()

	if failure != nil {
		if r.callbacks.OnError != nil {
			r.callbacks.OnError(failure)
		}
	} else if r.callbacks.OnSuccess != nil {
		r.callbacks.OnSuccess(p.chunks)
	}

	p.cancel(context.Canceled)
	close(p.done)
}

type result[V any] struct {
	v   V
	err error
}

func spawn[V any](fn func() (V, error)) <-chan result[V] {
	ch := make(chan result[V], 1)
	go func() {
		v, err := fn()
		ch <- result[V]{v: v, err: err}
	}()
	return ch
}

// await runs fn on its own goroutine and waits for it or for ctx. A result
// that arrives after ctx is done is passed to release.
func await[V any](ctx context.Context, fn func() (V, error), release func(V)) (V, error) {
	if ctx.Err() != nil {
		var zero V
		return zero, context.Cause(ctx)
	}
	ch := spawn(fn)
	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		if release != nil {
			go func() {
				if res := <-ch; res.err == nil {
					release(res.v)
				}
			}()
		}
		var zero V
		return zero, context.Cause(ctx)
	}
}

// drain is await for work reading from body. Once ctx is done it closes
// body and waits for fn to return, so neither the read nor a transform
// outlives the run.
func drain[V any](ctx context.Context, body io.Closer, fn func() (V, error)) (V, error) {
	if ctx.Err() != nil {
		var zero V
		return zero, context.Cause(ctx)
	}
	ch := spawn(fn)
	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		_ = body.Close()
		<-ch
		var zero V
		return zero, context.Cause(ctx)
	}
}

func newID() string { return uuid.NewString() }
