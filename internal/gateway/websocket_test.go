package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/calculator-studio/internal/models"
	"github.com/bizmatters/calculator-studio/internal/session"
)

func dialStream(t *testing.T, s *testServer, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	server := httptest.NewServer(s.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/generate" + query
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return dialer.Dial(url, header)
}

func readEvent(t *testing.T, conn *websocket.Conn) models.GenerationEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev models.GenerationEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestStreamGeneration_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	_, resp, err := dialStream(t, s, "", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dialStream(t, s, "?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStreamGeneration_QueryToken(t *testing.T) {
	s := newTestServer(t)

	conn, _, err := dialStream(t, s, "?token="+s.token(t, "user-1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(StreamRequest{Prompt: "  loan payment calculator "}))

	ev := readEvent(t, conn)
	assert.Equal(t, models.EventTypeGenerating, ev.EventType)
	assert.Equal(t, "loan payment calculator", ev.Prompt)

	ev = readEvent(t, conn)
	require.Equal(t, models.EventTypeCompleted, ev.EventType)
	require.NotNil(t, ev.Result)
	assert.Equal(t, models.SourceFallback, ev.Result.Source)
	assert.Equal(t, models.KindLoan, ev.Result.Spec.Kind)
	assert.False(t, ev.Timestamp.IsZero())

	assert.Equal(t, session.StateIdle, s.sessions.Get("user-1").State())

	// the connection stays open for further prompts
	require.NoError(t, conn.WriteJSON(StreamRequest{Prompt: ""}))
	ev = readEvent(t, conn)
	assert.Equal(t, models.EventTypeError, ev.EventType)
	assert.Equal(t, "Prompt is required", ev.Error)
}

func TestStreamGeneration_HeaderTokenAndBusySession(t *testing.T) {
	s := newTestServer(t)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token(t, "user-3"))

	conn, _, err := dialStream(t, s, "", header)
	require.NoError(t, err)
	defer conn.Close()

	sess := s.sessions.Get("user-3")
	require.NoError(t, sess.Begin("tip"))

	require.NoError(t, conn.WriteJSON(StreamRequest{Prompt: "bmi"}))
	ev := readEvent(t, conn)
	assert.Equal(t, models.EventTypeError, ev.EventType)
	assert.Equal(t, "A calculator is already being generated", ev.Error)

	sess.Fail()
	require.NoError(t, conn.WriteJSON(StreamRequest{Prompt: "bmi"}))
	assert.Equal(t, models.EventTypeGenerating, readEvent(t, conn).EventType)
	assert.Equal(t, models.EventTypeCompleted, readEvent(t, conn).EventType)
}
