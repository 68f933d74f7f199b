// Package radio implements ports.RadioController against the external
// packet-capture daemon: an HTTP command/snapshot channel plus a websocket
// event stream, with basic-auth, retry-with-timeout, and jittered
// reconnection.
package radio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
	"github.com/lcalzada-xor/nightjar/internal/telemetry"
)

// Config bundles the connection settings a Controller needs.
type Config struct {
	Scheme   string // "http"/"https"; derived from Port == 443 if empty
	Hostname string
	Port     int
	Username string
	Password string

	// Retries bounds how many times Send retries a failed command before
	// giving up.
	Retries int
	// RetryInterval is how long Send waits between retries.
	RetryInterval time.Duration
	// MinReconnect/MaxReconnect bound the jittered sleep between websocket
	// reconnect attempts.
	MinReconnect time.Duration
	MaxReconnect time.Duration
}

func (c Config) scheme() string {
	if c.Scheme != "" {
		return c.Scheme
	}
	if c.Port == 443 {
		return "https"
	}
	return "http"
}

func (c Config) wsScheme() string {
	if c.scheme() == "https" {
		return "wss"
	}
	return "ws"
}

func (c Config) baseURL() string {
	return fmt.Sprintf("%s://%s:%d/api", c.scheme(), c.Hostname, c.Port)
}

func (c Config) eventsURL() string {
	return fmt.Sprintf("%s://%s:%d/api/events", c.wsScheme(), c.Hostname, c.Port)
}

func defaults(c Config) Config {
	if c.Retries == 0 {
		c.Retries = 5
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 15 * time.Second
	}
	if c.MinReconnect == 0 {
		c.MinReconnect = 500 * time.Millisecond
	}
	if c.MaxReconnect == 0 {
		c.MaxReconnect = 5 * time.Second
	}
	return c
}

// Controller is the HTTP+WS ports.RadioController implementation.
type Controller struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger
	ready  atomic.Bool
}

// New constructs a Controller. httpClient may be nil, in which case a
// 10-second-timeout client is used (matching the original's global timeout).
func New(cfg Config, httpClient *http.Client, log *slog.Logger) *Controller {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{cfg: defaults(cfg), client: httpClient, log: log}
}

// Ready reports whether the event websocket is currently connected.
func (c *Controller) Ready() bool { return c.ready.Load() }

type commandRequest struct {
	Cmd string `json:"cmd"`
}

// requestTimeout bounds each individual POST attempt; a request that times
// out is treated as delivered-but-unhappy, not a transport failure (the
// driver got it and won't be happier on retry).
const requestTimeout = 2 * time.Second

// Send POSTs cmd to <base>/session, retrying on transport error up to
// cfg.Retries times with cfg.RetryInterval between attempts. A 2xx or
// 400-409 response, or a per-request timeout, is treated as final: the
// driver received the command and won't be happier on retry.
func (c *Controller) Send(ctx context.Context, cmd string) ports.CommandResult {
	ctx, span := otel.Tracer("radio").Start(ctx, "radio.send")
	defer span.End()
	span.SetAttributes(attribute.String("radio.cmd", cmd))

	url := c.cfg.baseURL() + "/session"
	body, _ := json.Marshal(commandRequest{Cmd: cmd})
	verb := commandVerb(cmd)
	telemetry.CommandsTotal.WithLabelValues(verb).Inc()

	attemptsLeft := c.cfg.Retries
	for {
		c.log.Debug("commanding radio driver", "cmd", cmd)
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		status, err := c.post(reqCtx, url, body)
		cancel()

		if err == nil {
			if status >= 200 && status < 300 || (status >= 400 && status < 410) {
				return ports.CommandResult{OK: true}
			}
			c.log.Error("radio command rejected", "cmd", cmd, "status", status)
			telemetry.CommandErrorsTotal.WithLabelValues(verb, "rejected").Inc()
			return ports.CommandResult{OK: false, Err: fmt.Errorf("radio driver returned status %d", status)}
		}

		if errors.Is(err, context.DeadlineExceeded) {
			c.log.Warn("radio command request timed out", "cmd", cmd)
			return ports.CommandResult{OK: true}
		}

		c.log.Warn("radio command request error", "cmd", cmd, "error", err)
		if attemptsLeft == 0 {
			telemetry.CommandErrorsTotal.WithLabelValues(verb, "transport").Inc()
			return ports.CommandResult{OK: false, Err: err}
		}
		attemptsLeft--

		select {
		case <-ctx.Done():
			telemetry.CommandErrorsTotal.WithLabelValues(verb, "transport").Inc()
			return ports.CommandResult{OK: false, Err: ctx.Err()}
		case <-time.After(c.cfg.RetryInterval):
		}
	}
}

func commandVerb(cmd string) string {
	verb, _, found := strings.Cut(cmd, " ")
	if !found {
		return cmd
	}
	return verb
}

func (c *Controller) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

type wireStation struct {
	MAC      string `json:"mac"`
	Hostname string `json:"hostname"`
	Vendor   string `json:"vendor"`
	RSSI     int    `json:"rssi"`
}

type wireAccessPoint struct {
	MAC        string        `json:"mac"`
	Hostname   string        `json:"hostname"`
	Channel    int           `json:"channel"`
	RSSI       int           `json:"rssi"`
	Encryption string        `json:"encryption"`
	Clients    []wireStation `json:"clients"`
}

type wireWifi struct {
	APs []wireAccessPoint `json:"aps"`
}

type wireInterface struct {
	Name string `json:"name"`
}

type wireModule struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

type wireSession struct {
	Wifi       wireWifi        `json:"wifi"`
	Interfaces []wireInterface `json:"interfaces"`
	Modules    []wireModule    `json:"modules"`
}

// Session fetches and deserializes the current session snapshot from
// <base>/session. A malformed body is logged and returns nil, nil: the
// caller treats it as "no data this round", not a fatal error.
func (c *Controller) Session(ctx context.Context) (*ports.SessionSnapshot, error) {
	ctx, span := otel.Tracer("radio").Start(ctx, "radio.session")
	defer span.End()

	url := c.cfg.baseURL() + "/session"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wire wireSession
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		c.log.Error("failed to parse session JSON", "error", err)
		return nil, nil
	}

	return &ports.SessionSnapshot{
		AccessPoints: toDomainAPs(wire.Wifi.APs),
		Interfaces:   toInterfaceNames(wire.Interfaces),
		Modules:      toModuleMap(wire.Modules),
	}, nil
}

func toDomainAPs(aps []wireAccessPoint) []domain.AccessPoint {
	out := make([]domain.AccessPoint, 0, len(aps))
	for _, ap := range aps {
		out = append(out, domain.AccessPoint{
			MAC:        ap.MAC,
			Hostname:   ap.Hostname,
			Channel:    ap.Channel,
			RSSI:       ap.RSSI,
			Encryption: ap.Encryption,
			Clients:    toDomainStations(ap.Clients),
		})
	}
	return out
}

func toDomainStations(stas []wireStation) []domain.Station {
	out := make([]domain.Station, 0, len(stas))
	for _, sta := range stas {
		out = append(out, domain.Station{MAC: sta.MAC, Hostname: sta.Hostname, Vendor: sta.Vendor, RSSI: sta.RSSI})
	}
	return out
}

func toInterfaceNames(ifaces []wireInterface) []string {
	out := make([]string, 0, len(ifaces))
	for _, i := range ifaces {
		out = append(out, i.Name)
	}
	return out
}

func toModuleMap(mods []wireModule) map[string]bool {
	out := make(map[string]bool, len(mods))
	for _, m := range mods {
		out[m.Name] = m.Running
	}
	return out
}

// SubscribeEvents dials the event websocket and forwards every text frame
// onto the returned channel, reconnecting with jittered backoff on failure
// until ctx is done, at which point the channel is closed.
func (c *Controller) SubscribeEvents(ctx context.Context) (<-chan string, error) {
	out := make(chan string, 1000)
	go c.runEventLoop(ctx, out)
	return out, nil
}

func (c *Controller) runEventLoop(ctx context.Context, out chan<- string) {
	defer close(out)
	for {
		if ctx.Err() != nil {
			return
		}
		c.connectAndRead(ctx, out)
		if ctx.Err() != nil {
			return
		}

		sleep := jitteredBackoff(c.cfg.MinReconnect, c.cfg.MaxReconnect)
		c.log.Info("reconnecting to radio driver event stream", "in", sleep)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func jitteredBackoff(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func (c *Controller) connectAndRead(ctx context.Context, out chan<- string) {
	url := c.cfg.eventsURL()
	c.log.Info("connecting to radio driver event stream", "url", url)

	header := http.Header{}
	header.Set("Authorization", basicAuthHeader(c.cfg.Username, c.cfg.Password))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		c.log.Warn("event stream connect failed", "error", err)
		return
	}
	defer conn.Close()

	c.ready.Store(true)
	defer c.ready.Store(false)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Warn("event stream read error", "error", err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case out <- string(data):
		default:
			c.log.Warn("event inbox full, dropping frame")
		}
	}
}

func basicAuthHeader(username, password string) string {
	req := &http.Request{Header: http.Header{}}
	req.SetBasicAuth(username, password)
	return req.Header.Get("Authorization")
}
