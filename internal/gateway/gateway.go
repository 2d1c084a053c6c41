package gateway

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cardroom/internal/auth"
	"cardroom/internal/codec"
	"cardroom/internal/lobby"
	"cardroom/internal/match"
	"cardroom/internal/replay"
)

const (
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
	handshakeTimeout = 10 * time.Second
	sendQueueSize    = 256
	maxBadFrames     = 5
	pingInterval     = 30 * time.Second
	kickFlushDelay   = 250 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Config tunes the gateway surface.
type Config struct {
	// MaxConnections caps concurrently served connections via a semaphore;
	// saturation refuses the handshake with resource_exhaustion.
	MaxConnections int
}

func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 1024
	}
	return c
}

// Gateway owns every client connection: handshake, dispatch, delivery. It is
// transport-agnostic past the accept path.
type Gateway struct {
	cfg       Config
	auth      auth.Service
	lobby     *lobby.Lobby
	recorder  replay.Recorder
	snapshots *match.SnapshotCache
	routes    map[routeKey]handlerFunc

	mu         sync.RWMutex
	sessions   map[uint64]*Session // connID -> session
	byAccount  map[uint64]*Session // accountID -> live session
	nextConnID uint64

	slots chan struct{}
}

func New(cfg Config, authSvc auth.Service, lby *lobby.Lobby, rec replay.Recorder, snapshots *match.SnapshotCache) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{
		cfg:       cfg,
		auth:      authSvc,
		lobby:     lby,
		recorder:  rec,
		snapshots: snapshots,
		sessions:  make(map[uint64]*Session),
		byAccount: make(map[uint64]*Session),
		slots:     make(chan struct{}, cfg.MaxConnections),
	}
	g.routes = buildRoutes()
	return g
}

// SendToAccount delivers one envelope to an account's live session, if any.
// The lobby uses it for room fan-out.
func (g *Gateway) SendToAccount(accountID uint64, env codec.EventEnvelope) {
	g.mu.RLock()
	s := g.byAccount[accountID]
	g.mu.RUnlock()
	if s != nil {
		s.enqueueEvent(env)
	}
}

// HandleWebSocket upgrades and serves one websocket client.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] upgrade error: %v", err)
		return
	}
	mc := newWSMessageConn(conn)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go g.serve(mc, true)
}

// ServeTCP accepts length-prefixed framed connections until the listener
// closes.
func (g *Gateway) ServeTCP(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("[Gateway] tcp accept stopped: %v", err)
			return
		}
		go g.serve(newTCPMessageConn(conn), false)
	}
}

// serve runs the whole connection lifecycle: slot, handshake, pumps.
func (g *Gateway) serve(mc MessageConn, ws bool) {
	select {
	case g.slots <- struct{}{}:
	default:
		g.refuse(mc, codec.CodeResourceExhaustion, "server at connection capacity")
		return
	}
	defer func() { <-g.slots }()

	account, token, ok := g.handshake(mc)
	if !ok {
		return
	}

	g.mu.Lock()
	g.nextConnID++
	s := newSession(g.nextConnID, account, mc, g)
	if old := g.byAccount[account.ID]; old != nil {
		old.close()
	}
	g.sessions[s.ConnID] = s
	g.byAccount[account.ID] = s
	total := len(g.sessions)
	g.mu.Unlock()

	log.Printf("[Gateway] conn %d authenticated account=%d (%s) from %s, total=%d",
		s.ConnID, account.ID, account.Username, mc.RemoteAddr(), total)

	hello := codec.HelloResponse{
		OK:            true,
		AccountID:     account.ID,
		Username:      account.Username,
		SessionToken:  token,
		ServerVersion: codec.ProtocolVersion,
	}
	payload, err := json.Marshal(hello)
	if err == nil {
		err = mc.WriteMessage(payload)
	}
	if err != nil {
		log.Printf("[Gateway] conn %d hello write failed: %v", s.ConnID, err)
		g.disconnect(s)
		return
	}

	go g.writePump(s, ws)
	g.readPump(s)
	g.disconnect(s)
}

// handshake enforces the bounded first-frame contract: version, then
// credentials or a session token, all within handshakeTimeout.
func (g *Gateway) handshake(mc MessageConn) (auth.Account, string, bool) {
	mc.SetReadDeadline(time.Now().Add(handshakeTimeout))
	raw, err := mc.ReadMessage()
	if err != nil {
		g.refuse(mc, codec.CodeHandshakeTimeout, "no hello before deadline")
		return auth.Account{}, "", false
	}

	var req codec.HelloRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		g.refuse(mc, codec.CodeMalformedCommand, "hello is not valid JSON")
		return auth.Account{}, "", false
	}
	if req.ProtocolVersion != codec.ProtocolVersion {
		g.refuse(mc, codec.CodeVersionMismatch, "unsupported protocol version")
		return auth.Account{}, "", false
	}

	var account auth.Account
	var token string
	switch {
	case req.SessionToken != "":
		var ok bool
		account, ok = g.auth.ResolveSession(req.SessionToken)
		if !ok {
			g.refuse(mc, codec.CodeAuthFailed, "invalid or expired session token")
			return auth.Account{}, "", false
		}
		token = req.SessionToken
	case req.Register:
		account, token, err = g.auth.Register(req.Username, req.Password)
		if err != nil {
			g.refuse(mc, codec.CodeAuthFailed, err.Error())
			return auth.Account{}, "", false
		}
	default:
		account, token, err = g.auth.Login(req.Username, req.Password)
		if err != nil {
			g.refuse(mc, codec.CodeAuthFailed, "invalid credentials")
			return auth.Account{}, "", false
		}
	}
	return account, token, true
}

// refuse writes a terminal HelloResponse and hangs up; no session exists yet.
func (g *Gateway) refuse(mc MessageConn, code, msg string) {
	resp := codec.HelloResponse{
		OK:            false,
		ErrorCode:     code,
		ErrorMessage:  msg,
		ServerVersion: codec.ProtocolVersion,
	}
	if payload, err := json.Marshal(resp); err == nil {
		mc.WriteMessage(payload)
	}
	mc.Close()
}

func (g *Gateway) readPump(s *Session) {
	for {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))
		raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[Gateway] conn %d read error: %v", s.ConnID, err)
				}
			}
			return
		}
		g.handleFrame(s, raw)
	}
}

// handleFrame processes one inbound document. Every accepted command yields
// exactly one response with its correlation id; undecodable input never
// reaches a handler.
func (g *Gateway) handleFrame(s *Session, raw []byte) {
	cmd, err := codec.DecodeCommand(raw)
	if err != nil {
		if cmd.CorrelationID != 0 {
			s.enqueueResponse(codec.ErrResponse(cmd.CorrelationID, codec.CodeMalformedCommand, err.Error()))
		}
		if s.countBadFrame() {
			log.Printf("[Gateway] conn %d exceeded malformed-frame budget, closing", s.ConnID)
			s.close()
		}
		return
	}

	if !s.claimCorrelation(cmd.CorrelationID) {
		s.enqueueResponse(codec.ErrResponse(cmd.CorrelationID, codec.CodeMalformedCommand,
			"correlation id already in flight"))
		return
	}
	resp := g.dispatch(s, cmd)
	s.releaseCorrelation(cmd.CorrelationID)
	s.enqueueResponse(resp)
}

func (g *Gateway) writePump(s *Session, ws bool) {
	var ping *time.Ticker
	if ws {
		ping = time.NewTicker(pingInterval)
		defer ping.Stop()
	} else {
		// TCP liveness rides on the read deadline alone.
		ping = time.NewTicker(time.Hour)
		ping.Stop()
	}
	defer s.close()

	for {
		select {
		case payload := <-s.send:
			if err := s.conn.WriteMessage(payload); err != nil {
				return
			}
		case <-ping.C:
			wsc, ok := s.conn.(*wsMessageConn)
			if !ok {
				continue
			}
			wsc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wsc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}

// disconnect runs close processing once per session: unregister, leave
// rooms, hand matches to the connection-loss grace path.
func (g *Gateway) disconnect(s *Session) {
	s.close()

	g.mu.Lock()
	delete(g.sessions, s.ConnID)
	current := g.byAccount[s.Account.ID] == s
	if current {
		delete(g.byAccount, s.Account.ID)
	}
	total := len(g.sessions)
	g.mu.Unlock()

	// A replaced session must not kick its successor out of rooms/matches.
	if current {
		g.lobby.LeaveEverywhere(s.Account.ID)
	}
	log.Printf("[Gateway] conn %d closed (account=%d), total=%d", s.ConnID, s.Account.ID, total)
}

// SessionCount reports live connections, for /health.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// kickAccount force-closes an account's session, used by moderation.
func (g *Gateway) kickAccount(accountID uint64, reason string) bool {
	g.mu.RLock()
	s := g.byAccount[accountID]
	g.mu.RUnlock()
	if s == nil {
		return false
	}
	g.notifyAccount(accountID, "warn", "kicked: "+reason)
	// Let the write pump flush the notice before the connection dies.
	time.AfterFunc(kickFlushDelay, s.close)
	return true
}

// notifyAccount pushes a server-origin notice outside any room/game stream.
func (g *Gateway) notifyAccount(accountID uint64, level, message string) bool {
	g.mu.RLock()
	s := g.byAccount[accountID]
	g.mu.RUnlock()
	if s == nil {
		return false
	}
	payload, err := json.Marshal(codec.ServerNotice{Level: level, Message: message})
	if err != nil {
		return false
	}
	s.enqueueEvent(codec.EventEnvelope{
		Origin:     codec.OriginServer,
		Type:       "notice",
		Payload:    payload,
		ServerTsMs: time.Now().UnixMilli(),
	})
	return true
}
