package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/abstimmung-app/backend/internal/broadcast"
	"github.com/abstimmung-app/backend/internal/handler"
	"github.com/abstimmung-app/backend/internal/model/event"
	"github.com/abstimmung-app/backend/internal/registry"
	"github.com/abstimmung-app/backend/internal/service/auth"
	"github.com/abstimmung-app/backend/internal/service/voting"
	"github.com/abstimmung-app/backend/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	m := store.NewMemory()
	reg := registry.New()
	authSvc := auth.NewService(m, bcrypt.MinCost)
	anonymous, err := authSvc.EnsureAnonymous(context.Background())
	require.NoError(t, err)

	votingSvc := voting.NewService(m, nil, broadcast.New(reg), anonymous.ID)

	srv := httptest.NewServer(handler.NewRouter(authSvc, votingSvc, reg))
	t.Cleanup(srv.Close)
	return srv
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) read() event.Envelope {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	env, err := event.Decode(raw)
	require.NoError(c.t, err)
	return env
}

// nextOfKind skips envelopes of other kinds, e.g. refreshes interleaved with
// a response.
func (c *wsClient) nextOfKind(kind event.Kind) event.Envelope {
	c.t.Helper()
	for {
		env := c.read()
		if env.Event == kind {
			return env
		}
	}
}

func (c *wsClient) sendOp(op string, args any, location string) {
	c.t.Helper()
	result, err := json.Marshal(args)
	require.NoError(c.t, err)
	payload, err := json.Marshal(event.Payload{Type: op, Result: result})
	require.NoError(c.t, err)

	env := event.Envelope{Event: event.KindMessage, Payload: payload}
	if location != "" {
		loc, err := json.Marshal(location)
		require.NoError(c.t, err)
		env.Location = loc
	}
	raw, err := event.Encode(env)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, raw))
}

func (c *wsClient) answer() map[string]any {
	c.t.Helper()
	env := c.nextOfKind(event.KindMessage)
	var payload map[string]any
	require.NoError(c.t, json.Unmarshal(env.Payload, &payload))
	return payload
}

func (c *wsClient) register(username string) string {
	c.t.Helper()
	c.sendOp("registerUser", map[string]any{
		"userName":  username,
		"password":  "pw-" + username,
		"email":     username + "@example.org",
		"shownName": username,
	}, "")
	payload := c.answer()
	require.Equal(c.t, "Success", payload["result"])
	return payload["uid"].(string)
}

func TestWelcomeIsFirstEnvelope(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)

	env := c.read()
	assert.Equal(t, event.KindOnline, env.Event)
	assert.JSONEq(t, `"Welcome"`, string(env.Payload))
}

func TestRegisterAndLoginOverWire(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	c.nextOfKind(event.KindOnline)

	uid := c.register("alice")
	assert.NotEmpty(t, uid)

	c.sendOp("loginUser", map[string]any{"userName": "alice", "password": "pw-alice"}, "")
	payload := c.answer()
	assert.Equal(t, "Success", payload["result"])
	assert.Equal(t, uid, payload["uid"])

	c.sendOp("loginUser", map[string]any{"userName": "alice", "password": "wrong"}, "")
	payload = c.answer()
	assert.Equal(t, "Unsuccessful", payload["result"])
}

func TestUnknownOperationEchoesPayloadAndConnectionStaysUsable(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	c.nextOfKind(event.KindOnline)

	c.sendOp("frobnicate", map[string]any{"some": "args"}, "")
	payload := c.answer()
	assert.Equal(t, "Result", payload["type"])
	assert.Equal(t, "Error", payload["result"])
	echoed := payload["error"].(map[string]any)
	assert.Equal(t, "frobnicate", echoed["type"])

	// The same connection still serves valid requests.
	c.register("bob")
}

func TestMalformedEnvelopeIsDroppedSilently(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	c.nextOfKind(event.KindOnline)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("this is not json")))
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(`{"payload":"no event field"}`)))

	// The next valid request gets exactly one response; the garbage got none.
	uid := c.register("carol")
	assert.NotEmpty(t, uid)
}

func TestCorrelationTokenIsEchoed(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	c.nextOfKind(event.KindOnline)

	c.sendOp("loginUser", map[string]any{"userName": "ghost", "password": "x"}, "req-42")
	env := c.nextOfKind(event.KindMessage)
	assert.Equal(t, `"req-42"`, string(env.Location))
}

func TestMutationsBroadcastRefreshToOtherClients(t *testing.T) {
	srv := newTestServer(t)
	c1 := dial(t, srv)
	c1.nextOfKind(event.KindOnline)
	c2 := dial(t, srv)
	c2.nextOfKind(event.KindOnline)

	uid := c1.register("alice")

	c1.sendOp("createSession", map[string]any{"uid": uid, "name": "room", "description": ""}, "")
	payload := c1.answer()
	require.Equal(t, "Answer", payload["type"])
	sessionID := payload["result"].(string)
	require.NotEmpty(t, sessionID)

	// The uninvolved client receives an unsolicited refresh with no payload.
	env := c2.nextOfKind(event.KindRefresh)
	assert.Nil(t, env.Payload)
}

func TestFullVotingScenarioOverWire(t *testing.T) {
	srv := newTestServer(t)
	c1 := dial(t, srv)
	c1.nextOfKind(event.KindOnline)
	c2 := dial(t, srv)
	c2.nextOfKind(event.KindOnline)

	u1 := c1.register("alice")
	u2 := c2.register("bob")

	c1.sendOp("createSession", map[string]any{"uid": u1, "name": "room"}, "")
	sessionID := c1.answer()["result"].(string)

	c2.sendOp("joinSession", map[string]any{"sessionId": sessionID, "uid": u2}, "")
	payload := c2.answer()
	require.Equal(t, "Session", payload["result"])

	c1.sendOp("createSurvey", map[string]any{
		"surveySession": sessionID,
		"creator":       u1,
		"surveyName":    "lunch",
		"surveyOpened":  true,
	}, "")
	surveyID := c1.answer()["result"].(string)
	require.NotEmpty(t, surveyID)

	c1.sendOp("voteForSurvey", map[string]any{"surveyID": surveyID, "uid": u1, "sendID": 0}, "")
	payload = c1.answer()
	require.Equal(t, "Voted Successful", payload["result"])

	c2.sendOp("voteForSurvey", map[string]any{"surveyID": surveyID, "uid": u2, "sendID": 1}, "")
	payload = c2.answer()
	require.Equal(t, "Voted Successful", payload["result"])
	voted := payload["event"].(map[string]any)
	assert.Equal(t, false, voted["surveyOpened"], "survey must auto-close after the last member voted")

	// Both members voted, the survey is closed; a re-vote reports that.
	c1.sendOp("voteForSurvey", map[string]any{"surveyID": surveyID, "uid": u1, "sendID": 1}, "")
	payload = c1.answer()
	assert.Equal(t, "Error", payload["result"])
	assert.Equal(t, "survey closed", payload["error"])

	c1.sendOp("getSurveyFromID", map[string]any{"surveyId": surveyID}, "")
	payload = c1.answer()
	require.Equal(t, "Survey", payload["result"])
	survey := payload["survey"].(map[string]any)
	assert.Len(t, survey["participantUsers"], 2)
	tally := payload["tally"].(map[string]any)
	assert.Equal(t, float64(1), tally["approve"])
	assert.Equal(t, float64(1), tally["deny"])
}

func TestReadQueriesOverWire(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	c.nextOfKind(event.KindOnline)

	uid := c.register("alice")
	c.sendOp("createSession", map[string]any{"uid": uid, "name": "room"}, "")
	sessionID := c.answer()["result"].(string)

	c.sendOp("getAllSessions", map[string]any{"uid": uid}, "")
	payload := c.answer()
	require.Equal(t, "Sessions", payload["result"])
	assert.Len(t, payload["sessions"], 1)

	c.sendOp("getAllSessionsNames", map[string]any{"uid": uid}, "")
	payload = c.answer()
	require.Equal(t, "Sessions", payload["result"])

	c.sendOp("getSessionFromID", map[string]any{"sessionID": sessionID}, "")
	payload = c.answer()
	require.Equal(t, "Session", payload["result"])
	session := payload["session"].(map[string]any)
	assert.Equal(t, sessionID, session["id"])

	c.sendOp("getAllSurveysFromSession", map[string]any{"sessionId": sessionID}, "")
	payload = c.answer()
	assert.Equal(t, "Surveys", payload["result"])

	c.sendOp("getAllSessionsAndSurveys", map[string]any{"uid": uid}, "")
	payload = c.answer()
	assert.Equal(t, "Sessions", payload["result"])
}

func TestSessionLifecycleOpsOverWire(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	c.nextOfKind(event.KindOnline)

	uid := c.register("alice")
	c.sendOp("createSession", map[string]any{"uid": uid, "name": "room"}, "")
	sessionID := c.answer()["result"].(string)

	c.sendOp("updateSession", map[string]any{"id": sessionID, "name": "renamed", "description": "d"}, "")
	assert.Equal(t, "Session updated Successful", c.answer()["result"])

	c.sendOp("leaveSession", map[string]any{"sessionId": sessionID, "uid": uid}, "")
	assert.Equal(t, "Leave successful", c.answer()["result"])

	c.sendOp("stopSession", map[string]any{"sessionId": sessionID}, "")
	assert.Equal(t, "Session stopped Successful", c.answer()["result"])

	c.sendOp("stopSession", map[string]any{"sessionId": "ghost"}, "")
	payload := c.answer()
	assert.Equal(t, "Error", payload["result"])
}
