package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"codepair/internal/app"
	"codepair/internal/config"
	"codepair/pkg/types"
)

const frameTimeout = 2 * time.Second

// startServer runs a full application on a free port with the given store
// backend and returns its base URL.
func startServer(t *testing.T, backend string) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Store.Backend = backend
	if backend == "redis" {
		mr := miniredis.RunT(t)
		cfg.Store.RedisAddr = mr.Addr()
	}

	application, err := app.NewApplication(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})

	return "http://" + application.Addr()
}

var backends = []string{"memory", "sqlite", "redis"}

// forEachBackend runs fn against a fresh server per store backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, base string)) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			fn(t, startServer(t, backend))
		})
	}
}

func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createSession(t *testing.T, base, name, language string) types.Session {
	t.Helper()
	var s types.Session
	status := doJSON(t, http.MethodPost, base+"/sessions", map[string]string{"name": name, "language": language}, &s)
	require.Equal(t, http.StatusCreated, status)
	return s
}

type sessionWithUsers struct {
	types.Session
	Users []types.Participant `json:"users"`
}

func getSession(t *testing.T, base, id string) sessionWithUsers {
	t.Helper()
	var s sessionWithUsers
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, base+"/sessions/"+id, nil, &s))
	return s
}

func listUsers(t *testing.T, base, id string) []types.Participant {
	t.Helper()
	var resp struct {
		Users []types.Participant `json:"users"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, base+"/sessions/"+id+"/users", nil, &resp))
	require.NotNil(t, resp.Users)
	return resp.Users
}

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// client is a realtime participant driven by the test.
type client struct {
	t      *testing.T
	conn   *websocket.Conn
	id     string
	frames chan wireFrame
	done   chan struct{}
}

func dial(t *testing.T, base string) *client {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+base[len("http"):]+"/ws", nil)
	require.NoError(t, err)

	c := &client{
		t:      t,
		conn:   conn,
		frames: make(chan wireFrame, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(c.close)

	var hello types.Connected
	c.expect(types.EventConnected, &hello)
	require.NotEmpty(t, hello.ConnectionID)
	c.id = hello.ConnectionID
	return c
}

func (c *client) readLoop() {
	defer close(c.done)
	for {
		var f wireFrame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		select {
		case c.frames <- f:
		case <-time.After(frameTimeout):
			return
		}
	}
}

func (c *client) close() {
	_ = c.conn.Close()
	<-c.done
}

func (c *client) send(eventType string, data interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]interface{}{"type": eventType, "data": data}))
}

func (c *client) sendRaw(payload string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func (c *client) join(sessionID string) {
	c.send(types.EventJoinSession, map[string]string{"sessionId": sessionID})
}

// expect skips frames until one of eventType arrives and decodes it into out.
func (c *client) expect(eventType string, out interface{}) {
	c.t.Helper()
	deadline := time.After(frameTimeout)
	for {
		select {
		case f := <-c.frames:
			if f.Type != eventType {
				continue
			}
			if out != nil {
				require.NoError(c.t, json.Unmarshal(f.Data, out))
			}
			return
		case <-c.done:
			c.t.Fatalf("connection %s closed while waiting for %s", c.id, eventType)
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s on %s", eventType, c.id)
		}
	}
}

// expectUsers waits for a users-update listing exactly n participants.
func (c *client) expectUsers(n int) []types.Participant {
	c.t.Helper()
	deadline := time.Now().Add(frameTimeout)
	for time.Now().Before(deadline) {
		var u types.UsersUpdate
		c.expect(types.EventUsersUpdate, &u)
		if len(u.Users) == n {
			return u.Users
		}
	}
	c.t.Fatalf("no users-update with %d users on %s", n, c.id)
	return nil
}

// refuse fails if a frame of eventType arrives within wait.
func (c *client) refuse(eventType string, wait time.Duration) {
	c.t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case f := <-c.frames:
			if f.Type == eventType {
				c.t.Fatalf("unexpected %s on %s: %s", eventType, c.id, string(f.Data))
			}
		case <-deadline:
			return
		}
	}
}
