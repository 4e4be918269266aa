package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldworks/answerhub/pkg/events"
)

// stubRunner emits a fixed happy-path event sequence.
type stubRunner struct {
	events   []events.Event
	threadID string
	question string
}

func (s *stubRunner) Run(ctx context.Context, threadID, question string, em *events.Emitter) error {
	defer em.Close()
	s.threadID = threadID
	s.question = question
	for _, ev := range s.events {
		if err := em.Emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

type stubHealth struct{ err error }

func (s *stubHealth) Health(context.Context) error { return s.err }

func happyEvents() []events.Event {
	return []events.Event{
		events.RouteDecision(events.RouteSQL),
		events.ToolStart(events.ToolSQLAgent),
		events.Token(events.ChannelFinal, "There are 10 "),
		events.Token(events.ChannelFinal, "active technicians."),
		events.Complete(events.Stats{Tokens: 2, FinalTokens: 2}),
	}
}

func validBody() string {
	return `{"input":{"message":"How many technicians are active?"},"conversation":{"id":"t1","user_id":"u","company_id":"c"}}`
}

func postAnswer(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/answers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAnswerStreamsSSE(t *testing.T) {
	runner := &stubRunner{events: happyEvents()}
	srv := NewServer(runner, &stubHealth{})

	rec := postAnswer(t, srv, validBody())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "t1", runner.threadID)
	assert.Equal(t, "How many technicians are active?", runner.question)

	// Each frame is one "data: <json>" line followed by a blank line.
	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 5)

	var got []events.Event
	for _, frame := range frames {
		require.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev))
		got = append(got, ev)
	}
	assert.Equal(t, events.TypeRouteDecision, got[0].Type)
	assert.Equal(t, events.RouteSQL, got[0].Route)
	assert.Equal(t, events.TypeComplete, got[4].Type)
	require.NotNil(t, got[4].Stats)
	assert.Equal(t, 2, got[4].Stats.FinalTokens)
}

func TestAnswerValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing message",
			body: `{"input":{},"conversation":{"id":"t1","user_id":"u","company_id":"c"}}`,
			want: "input.message is required",
		},
		{
			name: "message too long",
			body: `{"input":{"message":"` + strings.Repeat("x", 2001) + `"},"conversation":{"id":"t1","user_id":"u","company_id":"c"}}`,
			want: "exceeds 2000 characters",
		},
		{
			name: "missing conversation id",
			body: `{"input":{"message":"hi"},"conversation":{"user_id":"u","company_id":"c"}}`,
			want: "conversation.id is required",
		},
		{
			name: "missing user id",
			body: `{"input":{"message":"hi"},"conversation":{"id":"t1","company_id":"c"}}`,
			want: "conversation.user_id is required",
		},
		{
			name: "not json",
			body: `{{{`,
			want: "invalid request body",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(&stubRunner{}, &stubHealth{})
			rec := postAnswer(t, srv, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestHealthOK(t *testing.T) {
	srv := NewServer(&stubRunner{}, &stubHealth{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthDegraded(t *testing.T) {
	srv := NewServer(&stubRunner{}, &stubHealth{err: errors.New("database is locked")})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}
