package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"spotarb/internal/model"
	"spotarb/internal/signing"
)

const (
	defaultTimeout = 10 * time.Second
	maxRawBody     = 2048
	redacted       = "[REDACTED]"
)

// Option customizes a venue client.
type Option func(*restClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *restClient) {
		c.http = hc
	}
}

// WithBaseURL overrides the venue's REST root.
func WithBaseURL(baseURL string) Option {
	return func(c *restClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout bounds every outbound call.
func WithTimeout(d time.Duration) Option {
	return func(c *restClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock sets the time source used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *restClient) {
		c.now = now
	}
}

// CallObserver receives the duration and outcome of each venue call.
// kind is empty for successful calls.
type CallObserver func(venue, op string, elapsed time.Duration, kind model.ErrorKind)

// WithObserver registers a CallObserver.
func WithObserver(obs CallObserver) Option {
	return func(c *restClient) {
		c.observe = obs
	}
}

// signFunc adds venue authentication headers to req.
type signFunc func(req *http.Request, method, path string, body []byte)

// restClient is the transport shared by both venues. It performs a single
// attempt per call and reports failures of the transport and HTTP layers
// as descriptors; venue envelopes are interpreted by the adapters.
type restClient struct {
	venue   string
	baseURL string
	timeout time.Duration
	http    *http.Client
	creds   signing.Credentials
	sign    signFunc
	now     func() time.Time
	observe CallObserver
	logger  *slog.Logger
}

func newRESTClient(venue, baseURL string, creds signing.Credentials, logger *slog.Logger, opts []Option) *restClient {
	c := &restClient{
		venue:   venue,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		creds:   creds,
		now:     time.Now,
		logger:  logger.With(slog.String("venue", venue)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// do sends one request. signed requests carry the venue's auth headers.
// The returned body is only set when the HTTP layer succeeded.
func (c *restClient) do(ctx context.Context, op, method, path string, body []byte, signed bool) ([]byte, *model.ErrorDescriptor) {
	start := time.Now()
	respBody, desc := c.roundTrip(ctx, method, path, body, signed)

	var kind model.ErrorKind
	if desc != nil {
		kind = desc.Kind
	}
	if c.observe != nil {
		c.observe(c.venue, op, time.Since(start), kind)
	}
	c.logger.Debug("venue call",
		slog.String("op", op),
		slog.String("path", path),
		slog.Duration("elapsed", time.Since(start)),
		slog.String("kind", string(kind)),
	)
	return respBody, desc
}

func (c *restClient) roundTrip(ctx context.Context, method, path string, body []byte, signed bool) ([]byte, *model.ErrorDescriptor) {
	if signed {
		if err := c.creds.Validate(); err != nil {
			return nil, model.NewDescriptor(model.KindMissingCredentials, c.venue, model.StagePrecondition, err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, model.NewDescriptor(model.KindInvalidParameters, c.venue, model.StagePrecondition,
			fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		c.sign(req, method, path, body)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *restClient) transportError(ctx context.Context, err error) *model.ErrorDescriptor {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return model.NewDescriptor(model.KindTimeout, c.venue, model.StageTransport,
			fmt.Sprintf("no response within %s", c.timeout))
	}
	return model.NewDescriptor(model.KindNetworkError, c.venue, model.StageTransport, c.redact(err.Error()))
}

// statusError maps a non-2xx response. The venue envelope, when present,
// only enriches the descriptor; the kind stays http_error (or rate_limited
// for 429).
func (c *restClient) statusError(status int, body []byte) *model.ErrorDescriptor {
	kind := model.KindHTTPError
	if status == http.StatusTooManyRequests {
		kind = model.KindRateLimited
	}
	desc := &model.ErrorDescriptor{
		Kind:       kind,
		Venue:      c.venue,
		Stage:      model.StageHTTP,
		HTTPStatus: status,
		Message:    http.StatusText(status),
		RawBody:    c.raw(body),
	}
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.Code != "" {
		desc.VenueCode = string(env.Code)
		if env.Msg != "" {
			desc.Message = c.redact(env.Msg)
		}
	}
	return desc
}

func (c *restClient) parseError(body []byte, err error) *model.ErrorDescriptor {
	return &model.ErrorDescriptor{
		Kind:    model.KindMalformedResponse,
		Venue:   c.venue,
		Stage:   model.StageParse,
		Message: fmt.Sprintf("decode response: %v", err),
		RawBody: c.raw(body),
	}
}

func (c *restClient) malformedSuccess(body []byte, msg string) *model.ErrorDescriptor {
	return &model.ErrorDescriptor{
		Kind:    model.KindMalformedResponse,
		Venue:   c.venue,
		Stage:   model.StageMalformedSuccess,
		Message: msg,
		RawBody: c.raw(body),
	}
}

// raw returns body truncated and with every secret replaced.
// raw redacts before truncating so a secret cut at the limit cannot leak.
func (c *restClient) raw(body []byte) string {
	s := c.redact(string(body))
	if len(s) > maxRawBody {
		s = s[:maxRawBody]
	}
	return s
}

func (c *restClient) redact(s string) string {
	for _, secret := range []string{c.creds.Secret, c.creds.Passphrase, c.creds.APIKey} {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return s
}

// envelope is the {code, msg, data} wrapper both venues use.
type envelope struct {
	Code flexString      `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
