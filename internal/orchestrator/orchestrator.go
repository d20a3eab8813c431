// Package orchestrator drives one chat request at a time: it sends the
// request, picks the body handling from the response content type, enforces
// the overall and per-chunk timeouts and reports through callbacks.
//
// Every callback runs on the request's own goroutine, in order. Exactly one
// of OnSuccess or OnError fires per Run, after all OnUpdate calls. Abort,
// the overall timeout and the stream timeout all cancel the request context
// with a cause and share the same teardown.
package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ai-gateway/chatstream-go/internal/metrics"
	"github.com/ai-gateway/chatstream-go/internal/provider"
	"github.com/ai-gateway/chatstream-go/internal/reqerr"
	"github.com/ai-gateway/chatstream-go/internal/splitter"
	"github.com/ai-gateway/chatstream-go/internal/transform"
	"github.com/ai-gateway/chatstream-go/internal/transport"
)

// RequestIDHeader carries the per-run id.
const RequestIDHeader = "X-Request-Id"

const tracerName = "github.com/ai-gateway/chatstream-go/internal/orchestrator"

// Callbacks receive the results of a run. Nil callbacks are skipped.
type Callbacks[T any] struct {
	OnUpdate  func(chunk T)
	OnSuccess func(chunks []T)
	OnError   func(err error)
}

// Request issues chat requests against one URL. A Request runs at most one
// request at a time; Run while pending fails with reqerr.ErrBusy.
type Request[T any] struct {
	url           string
	params        provider.Params
	method        string
	headers       http.Header
	timeout       time.Duration
	streamTimeout time.Duration
	doer          transport.Doer
	middlewares   transport.Middlewares
	custom        transform.Func[T]
	separator     splitter.Separator
	callbacks     Callbacks[T]
	manual        bool
	keepDone      bool
	log           zerolog.Logger
	usage         *metrics.Usage
	tracer        trace.Tracer
	client        *transport.Client

	mu      sync.Mutex
	state   State
	pending *pending[T]
	done    chan struct{}
}

type Option[T any] func(*Request[T])

// WithParams sets the payload sent by the implicit run.
func WithParams[T any](p provider.Params) Option[T] {
	return func(r *Request[T]) { r.params = p }
}

// WithMethod overrides the HTTP method, POST by default.
func WithMethod[T any](method string) Option[T] {
	return func(r *Request[T]) { r.method = method }
}

func WithHeaders[T any](h http.Header) Option[T] {
	return func(r *Request[T]) { r.headers = h.Clone() }
}

// WithTimeout bounds the whole request. Zero disables it.
func WithTimeout[T any](d time.Duration) Option[T] {
	return func(r *Request[T]) { r.timeout = d }
}

// WithStreamTimeout bounds the wait for each chunk once the response has
// arrived. Zero disables it.
func WithStreamTimeout[T any](d time.Duration) Option[T] {
	return func(r *Request[T]) { r.streamTimeout = d }
}

// WithFetch replaces the HTTP round trip, mainly for tests.
func WithFetch[T any](d transport.Doer) Option[T] {
	return func(r *Request[T]) { r.doer = d }
}

func WithMiddlewares[T any](m transport.Middlewares) Option[T] {
	return func(r *Request[T]) { r.middlewares = m }
}

// WithTransform streams every response through fn, whatever its content
// type, splitting the body on sep (newline when nil). A call to fn in
// progress when the run is cancelled is waited for before OnError fires.
func WithTransform[T any](fn transform.Func[T], sep splitter.Separator) Option[T] {
	return func(r *Request[T]) {
		r.custom = fn
		r.separator = sep
	}
}

func WithCallbacks[T any](cb Callbacks[T]) Option[T] {
	return func(r *Request[T]) { r.callbacks = cb }
}

// WithManual stops New from starting a run; call Run explicitly.
func WithManual[T any]() Option[T] {
	return func(r *Request[T]) { r.manual = true }
}

// WithKeepDone delivers the SSE [DONE] event as a chunk instead of ending
// the stream on it.
func WithKeepDone[T any]() Option[T] {
	return func(r *Request[T]) { r.keepDone = true }
}

func WithLogger[T any](l zerolog.Logger) Option[T] {
	return func(r *Request[T]) { r.log = l }
}

func WithUsage[T any](u *metrics.Usage) Option[T] {
	return func(r *Request[T]) { r.usage = u }
}

func WithTracer[T any](t trace.Tracer) Option[T] {
	return func(r *Request[T]) { r.tracer = t }
}

// WithTransport uses c for the network call. Fetch, headers and
// middlewares options are then ignored.
func WithTransport[T any](c *transport.Client) Option[T] {
	return func(r *Request[T]) { r.client = c }
}

// New validates the configuration and, unless WithManual is given, starts
// a run with the configured params.
func New[T any](rawURL string, opts ...Option[T]) (*Request[T], error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, reqerr.ErrMissingURL
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, reqerr.Wrap(reqerr.NameConfiguration, err, "invalid url %q", rawURL)
	}

	r := &Request[T]{
		url:    rawURL,
		log:    log.Logger,
		tracer: otel.Tracer(tracerName),
		done:   closed(),
	}
	for _, o := range opts {
		if o != nil {
			o(r)
		}
	}
	if r.client == nil {
		r.client = transport.New(
			transport.WithDoer(r.doer),
			transport.WithHeaders(r.headers),
			transport.WithMiddlewares(r.middlewares),
			transport.WithLogger(r.log),
		)
	}

	if !r.manual {
		if err := r.Run(context.Background(), r.params); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Run starts a request with params. It returns once the request is
// underway; results arrive through the callbacks.
func (r *Request[T]) Run(ctx context.Context, params provider.Params) error {
	// serialize now so later changes by the caller are not observed
	body, err := json.Marshal(params)
	if err != nil {
		return reqerr.Wrap(reqerr.NameConfiguration, err, "encode params: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		return errors.WithStack(reqerr.ErrBusy)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	p := &pending[T]{
		id:     newID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if r.timeout > 0 {
		p.overall = time.AfterFunc(r.timeout, func() { cancel(reqerr.ErrTimeout) })
	}
	r.pending = p
	r.done = p.done
	r.state = StateSending
	if r.usage != nil {
		r.usage.Start()
	}
	r.log.Debug().Str("request_id", p.id).Str("url", r.url).Bool("stream", params.Stream).Msg("orchestrator: run")

	go r.run(ctx, p, body)
	return nil
}

// Abort cancels the pending request, if any. The run ends with OnError
// carrying an AbortError. Calling Abort again, or after the run settled,
// does nothing.
func (r *Request[T]) Abort() {
	r.mu.Lock()
	p := r.pending
	r.mu.Unlock()
	if p != nil {
		p.cancel(reqerr.ErrAbort)
	}
}

// Done is closed once the terminal callback of the latest run returned.
func (r *Request[T]) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Wait blocks until the latest run settled.
func (r *Request[T]) Wait() { <-r.Done() }

func (r *Request[T]) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Request[T]) setState(p *pending[T], s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	r.log.Debug().Str("request_id", p.id).Stringer("state", s).Msg("orchestrator: state change")
}

func closed() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
