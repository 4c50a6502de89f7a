package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"echo/internal/event"
	"echo/internal/logging"
)

const (
	eventsRoute          = "/ws/events"
	eventStreamSpanName  = "echo.stream"
	streamBufferSize     = 1024
	streamWriteTimeout   = 10 * time.Second
	maxCloseReasonBytes  = 123
	closeReasonBusClosed = "event bus closed"
)

// EventsHandler streams Echo events over a websocket. The optional name
// query parameter restricts the stream to one event name and replay=N
// first sends up to N retained events of that name.
type EventsHandler struct {
	Bus            *event.Bus[event.Echo]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if !validateToken(r, h.AuthToken) {
		rejectStream(w, r, logger, &apiError{Status: http.StatusUnauthorized, Message: "unauthorized", Code: codeUnauthorized})
		return
	}
	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("name"))
	replayCount := 0
	if raw := query.Get("replay"); raw != "" {
		count, apiErr := parseLimit(raw, defaultRecentEvents, maxRecentEvents)
		if apiErr != nil {
			rejectStream(w, r, logger, apiErr)
			return
		}
		replayCount = count
	}
	if h.Bus == nil {
		rejectStream(w, r, logger, unavailable("event stream"))
		return
	}

	matches := func(echo event.Echo) bool {
		return name == "" || echo.Name() == name
	}
	// Subscribe before reading history so nothing published in between is
	// missed; the overlap is dropped by hash.
	live, cancel := h.Bus.SubscribeFiltered(matches)
	defer cancel()
	var replay []event.Echo
	if replayCount > 0 {
		replay = lastMatching(h.Bus.History(0), matches, replayCount)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  streamBufferSize,
		WriteBufferSize: streamBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, h.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("event stream upgrade failed", streamLogFields(r, name, map[string]string{
			logging.FieldError: err.Error(),
		}))
		return
	}

	_, span := startEventStreamSpan(r, name, replayCount)
	defer span.End()
	stream := &eventStream{
		conn:   conn,
		span:   span,
		logger: logger.With(streamLogFields(r, name, nil)),
	}
	stream.serve(replay, live)
}

// eventStream writes echoes to one websocket client and records what it
// sent on the connection span.
type eventStream struct {
	conn   *websocket.Conn
	span   trace.Span
	logger *logging.Logger
	sent   int
	last   *event.Echo
}

func (s *eventStream) serve(replay []event.Echo, live <-chan event.Echo) {
	defer s.conn.Close()

	replayed := make(map[string]struct{}, len(replay))
	for _, echo := range replay {
		if err := s.send(echo, true); err != nil {
			s.close(websocket.CloseInternalServerErr, "replay failed", err)
			return
		}
		replayed[echo.Hash()] = struct{}{}
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.finish(websocket.CloseNormalClosure, "client closed", nil)
			return
		case echo, ok := <-live:
			if !ok {
				s.close(websocket.CloseGoingAway, closeReasonBusClosed, nil)
				return
			}
			if _, seen := replayed[echo.Hash()]; seen {
				delete(replayed, echo.Hash())
				continue
			}
			if err := s.send(echo, false); err != nil {
				s.close(websocket.CloseInternalServerErr, "write failed", err)
				return
			}
		}
	}
}

func (s *eventStream) send(echo event.Echo, replayed bool) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(echo); err != nil {
		return fmt.Errorf("write %s %s: %w", echo.Name(), echo.ShortHash(), err)
	}
	s.sent++
	s.last = &echo
	s.span.AddEvent("echo.sent", trace.WithAttributes(
		attribute.String("echo.name", echo.Name()),
		attribute.String("echo.hash", echo.ShortHash()),
		attribute.Bool("echo.replayed", replayed),
	))
	return nil
}

// close sends a close frame whose reason names the last echo delivered.
func (s *eventStream) close(code int, reason string, err error) {
	reason = s.finish(code, reason, err)
	deadline := time.Now().Add(streamWriteTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// finish records the outcome on the span and log and returns the close
// reason.
func (s *eventStream) finish(code int, reason string, err error) string {
	reason = truncateCloseReason(s.closeReason(reason))
	attrs := []attribute.KeyValue{
		attribute.Int("echo.sent", s.sent),
		attribute.Int("websocket.close_code", code),
		attribute.String("websocket.close_reason", reason),
	}
	fields := map[string]string{
		"sent":       strconv.Itoa(s.sent),
		"close_code": strconv.Itoa(code),
		"reason":     reason,
	}
	if s.last != nil {
		attrs = append(attrs,
			attribute.String("echo.last_name", s.last.Name()),
			attribute.String("echo.last_hash", s.last.ShortHash()),
		)
		fields[logging.FieldHash] = s.last.ShortHash()
	}
	s.span.SetAttributes(attrs...)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		fields[logging.FieldError] = err.Error()
		s.logger.Warn("event stream failed", fields)
		return reason
	}
	s.logger.Debug("event stream closed", fields)
	return reason
}

func (s *eventStream) closeReason(reason string) string {
	if s.last == nil {
		return fmt.Sprintf("%s, no echoes sent", reason)
	}
	return fmt.Sprintf("%s after %d echoes, last %s %s", reason, s.sent, s.last.Name(), s.last.ShortHash())
}

// lastMatching returns up to count of the newest items accepted by match,
// oldest first.
func lastMatching(history []event.Echo, match func(event.Echo) bool, count int) []event.Echo {
	matched := make([]event.Echo, 0, len(history))
	for _, echo := range history {
		if match(echo) {
			matched = append(matched, echo)
		}
	}
	if len(matched) > count {
		matched = matched[len(matched)-count:]
	}
	return matched
}

// rejectStream answers a request that never reached the upgrade with a JSON
// error.
func rejectStream(w http.ResponseWriter, r *http.Request, logger *logging.Logger, apiErr *apiError) {
	fields := streamLogFields(r, "", map[string]string{
		"status": strconv.Itoa(apiErr.Status),
		"code":   errorCode(apiErr),
	})
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Error("event stream rejected", fields)
	} else {
		logger.Warn("event stream rejected", fields)
	}
	writeJSONError(w, apiErr)
}

func streamLogFields(r *http.Request, name string, extra map[string]string) map[string]string {
	fields := map[string]string{"http.route": eventsRoute}
	if r.RemoteAddr != "" {
		fields["remote_addr"] = r.RemoteAddr
	}
	if name != "" {
		fields["echo.name"] = name
	}
	for key, value := range extra {
		fields[key] = value
	}
	return fields
}

func startEventStreamSpan(r *http.Request, name string, replay int) (context.Context, trace.Span) {
	ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	attrs := []attribute.KeyValue{
		attribute.String("http.route", eventsRoute),
		attribute.String("http.target", redactedTarget(r)),
		attribute.Int("echo.replay", replay),
	}
	if name != "" {
		attrs = append(attrs, attribute.String("echo.filter", name))
	}
	return otelapi.Tracer("echo/api").Start(ctx, eventStreamSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// redactedTarget is the request URI without the auth token.
func redactedTarget(r *http.Request) string {
	target := *r.URL
	query := target.Query()
	query.Del("token")
	target.RawQuery = query.Encode()
	return target.RequestURI()
}

func truncateCloseReason(reason string) string {
	if len(reason) <= maxCloseReasonBytes {
		return reason
	}
	return reason[:maxCloseReasonBytes]
}
