package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-sacn/internal/config"
	diag "github.com/coreman2200/funtimes-sacn/internal/diagnostics"
	"github.com/coreman2200/funtimes-sacn/internal/receiver"
	"github.com/coreman2200/funtimes-sacn/internal/render"
)

const (
	writeWait    = 200 * time.Millisecond
	diagInterval = time.Second
)

// Status is the receiver snapshot published with each frame. It must be
// taken on the goroutine that owns the receiver.
type Status struct {
	Bindings  []receiver.BindingInfo
	Stats     receiver.Stats
	Universes []receiver.UniverseState
}

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// State serves health, frame and diagnostic endpoints and holds the runtime
// controls (brightness, blackout) the render loop reads.
type State struct {
	mu         sync.RWMutex
	FPS        int
	ConfigPath string
	Config     *config.Config

	brightness float64
	blackout   bool

	frame     render.FrameInfo
	status    Status
	diags     []diag.Diagnostic
	prevStats receiver.Stats
	lastEval  time.Time
	startTime time.Time

	clients     map[*client]bool
	diagClients map[*client]bool
}

func NewState(fps int, brightness float64) *State {
	return &State{
		FPS:         fps,
		brightness:  brightness,
		startTime:   time.Now(),
		clients:     map[*client]bool{},
		diagClients: map[*client]bool{},
	}
}

func (s *State) Brightness() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.brightness
}

func (s *State) Blackout() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blackout
}

// Diagnostics returns the last evaluated set.
func (s *State) Diagnostics() []diag.Diagnostic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]diag.Diagnostic(nil), s.diags...)
}

// Publish records a rendered frame, broadcasts it to frame clients and, at
// most once per second of frame time, re-evaluates diagnostics.
func (s *State) Publish(fi render.FrameInfo, st Status) {
	fi.Lights = append([]render.LightFrame(nil), fi.Lights...)
	for i := range fi.Lights {
		fi.Lights[i].RGB = append([]byte(nil), fi.Lights[i].RGB...)
	}

	s.mu.Lock()
	s.frame = fi
	s.status = st
	var fresh []diag.Diagnostic
	if s.lastEval.IsZero() || fi.At.Sub(s.lastEval) >= diagInterval {
		lights := make([]diag.LightStatus, len(fi.Lights))
		for i, l := range fi.Lights {
			lights[i] = diag.LightStatus{Name: l.Name, Universe: l.Universe, On: l.On}
		}
		cur := diag.Evaluate(diag.Snapshot{
			At:        fi.At,
			Bindings:  st.Bindings,
			Stats:     st.Stats,
			Prev:      s.prevStats,
			Universes: st.Universes,
			Lights:    lights,
		})
		fresh = diag.Diff(s.diags, cur)
		s.diags = cur
		s.prevStats = st.Stats
		s.lastEval = fi.At
	}
	s.mu.Unlock()

	s.broadcastFrame(fi)
	for _, d := range fresh {
		s.pushDiag(d)
	}
}

func (s *State) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, s.clients, func(c *client) {
		b, _ := json.Marshal(s.controls())
		_ = c.write(b)
	})
}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, s.diagClients, func(c *client) {
		for _, d := range s.Diagnostics() {
			b, _ := json.Marshal(d)
			if err := c.write(b); err != nil {
				return
			}
		}
	})
}

// serveWS registers the connection in set, sends the greeting and drains
// reads until the peer goes away.
func (s *State) serveWS(w http.ResponseWriter, r *http.Request, set map[*client]bool, hello func(*client)) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	s.mu.Lock()
	set[c] = true
	s.mu.Unlock()
	hello(c)

	go func() {
		defer func() {
			s.mu.Lock()
			delete(set, c)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// HandleControlWS accepts {"brightness": 0.5} and {"blackout": true} and
// answers each message with the resulting controls.
func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		s.applyControl(msg)
		b, _ := json.Marshal(s.controls())
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

type universeInfo struct {
	Universe   uint16    `json:"universe"`
	LastPacket time.Time `json:"last_packet"`
	Length     int       `json:"length"`
	Blanked    bool      `json:"blanked"`
	Sequence   uint8     `json:"sequence"`
	Source     uuid.UUID `json:"source"`
	SourceName string    `json:"source_name,omitempty"`
	Priority   uint8     `json:"priority"`
}

type lightInfo struct {
	Name     string `json:"name"`
	Effect   string `json:"effect"`
	Universe uint16 `json:"universe"`
	On       bool   `json:"on"`
}

// HandleHealth reports receiver and light state. It answers 503 while any
// binding has failed.
func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ok := true
	for _, b := range s.status.Bindings {
		if b.State == receiver.BindFailed.String() {
			ok = false
		}
	}
	unis := make([]universeInfo, len(s.status.Universes))
	for i, u := range s.status.Universes {
		unis[i] = universeInfo{
			Universe:   u.Universe,
			LastPacket: u.LastPacket,
			Length:     u.Length,
			Blanked:    u.Blanked,
			Sequence:   u.Sequence,
			Source:     u.Source,
			SourceName: u.SourceName,
			Priority:   u.Priority,
		}
	}
	lights := make([]lightInfo, len(s.frame.Lights))
	for i, l := range s.frame.Lights {
		lights[i] = lightInfo{Name: l.Name, Effect: l.Effect, Universe: l.Universe, On: l.On}
	}
	resp := map[string]any{
		"ok":         ok,
		"frame_id":   s.frame.Seq,
		"uptime_s":   time.Since(s.startTime).Seconds(),
		"fps":        s.FPS,
		"brightness": s.brightness,
		"blackout":   s.blackout,
		"stats":      s.status.Stats,
		"bindings":   s.status.Bindings,
		"universes":  unis,
		"lights":     lights,
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *State) controls() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{"brightness": s.brightness, "blackout": s.blackout, "fps": s.FPS}
}

func (s *State) applyControl(msg map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := msg["brightness"].(float64); ok {
		s.brightness = clamp(v, 0, 1)
	}
	if v, ok := msg["blackout"].(bool); ok {
		s.blackout = v
	}
	s.saveConfig()
}

// saveConfig persists the brightness. Caller holds mu.
func (s *State) saveConfig() {
	if s.ConfigPath == "" || s.Config == nil {
		return
	}
	s.Config.Brightness = max(s.brightness, 0.001)
	if err := config.Save(s.ConfigPath, s.Config); err != nil {
		log.Warn().Err(err).Str("path", s.ConfigPath).Msg("save config")
	}
}

func (s *State) broadcastFrame(fi render.FrameInfo) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.clients) == 0 {
		return
	}
	b, _ := json.Marshal(fi)
	for c := range s.clients {
		if err := c.write(b); err != nil {
			log.Debug().Err(err).Msg("write frame")
		}
	}
}

func (s *State) pushDiag(d diag.Diagnostic) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, _ := json.Marshal(d)
	for c := range s.diagClients {
		if err := c.write(b); err != nil {
			log.Debug().Err(err).Msg("write diag")
		}
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Routes mounts the handlers on mux.
func (s *State) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.HandleFramesWS)
	mux.HandleFunc("/diag", s.HandleDiagWS)
	mux.HandleFunc("/control", s.HandleControlWS)
	mux.HandleFunc("/health", s.HandleHealth)
}

// WithCORS allows browser dashboards on other origins.
func WithCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
