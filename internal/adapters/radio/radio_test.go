package radio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, srv *httptest.Server) Config {
	t.Helper()
	parsed, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)
	return Config{Scheme: parsed.Scheme, Hostname: parsed.Hostname(), Port: port, Username: "u", Password: "p", Retries: 1, RetryInterval: 10 * time.Millisecond}
}

func TestSendAcceptsSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/session", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv), srv.Client(), nil)
	res := c.Send(context.Background(), "wifi.recon.channel clear")
	assert.True(t, res.OK)
}

func TestSendAccepts400AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv), srv.Client(), nil)
	res := c.Send(context.Background(), "wifi.assoc AA:BB:CC:00:00:01")
	assert.True(t, res.OK)
}

func TestSendRejectedStatusFailsWithoutRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv), srv.Client(), nil)
	res := c.Send(context.Background(), "wifi.deauth 11:22:33:44:55:66")
	assert.False(t, res.OK)
	assert.Equal(t, 1, calls)
}

func TestSessionParsesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"wifi": {"aps": [{"mac":"aa:bb:cc:00:00:01","hostname":"coffeeshop","channel":6,"rssi":-40,"encryption":"WPA2","clients":[{"mac":"11:22:33:44:55:66","vendor":"Acme","rssi":-50}]}]},
			"interfaces": [{"name":"wlan0"}],
			"modules": [{"name":"wifi.recon","running":true}]
		}`))
	}))
	defer srv.Close()

	c := New(testConfig(t, srv), srv.Client(), nil)
	snap, err := c.Session(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.AccessPoints, 1)
	assert.Equal(t, "coffeeshop", snap.AccessPoints[0].Hostname)
	require.Len(t, snap.AccessPoints[0].Clients, 1)
	assert.Equal(t, "Acme", snap.AccessPoints[0].Clients[0].Vendor)
	assert.Equal(t, []string{"wlan0"}, snap.Interfaces)
	assert.True(t, snap.Modules["wifi.recon"])
}

func TestSessionMalformedBodyReturnsNilNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(testConfig(t, srv), srv.Client(), nil)
	snap, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

var upgrader = websocket.Upgrader{}

func TestSubscribeEventsForwardsTextFramesAndMarksReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"tag":"wifi.client.handshake","data":{}}`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv), srv.Client(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames, err := c.SubscribeEvents(ctx)
	require.NoError(t, err)

	select {
	case frame := <-frames:
		assert.Contains(t, frame, "wifi.client.handshake")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event frame")
	}

	require.Eventually(t, c.Ready, time.Second, 10*time.Millisecond)
}

func TestSubscribeEventsClosesChannelOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	c := New(testConfig(t, srv), srv.Client(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	frames, err := c.SubscribeEvents(ctx)
	require.NoError(t, err)

	require.Eventually(t, c.Ready, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case _, ok := <-frames:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
