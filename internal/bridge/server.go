package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clawdbot/clawdbot/internal/pairing"
	"github.com/clawdbot/clawdbot/internal/tracing"
)

const (
	heartbeatInterval = 15 * time.Second
	handshakeTimeout  = 30 * time.Second
	maxMissedPings    = 2
)

// CommandHandler processes a command frame from an attached session.
type CommandHandler func(ctx context.Context, sess *Session, cmd CommandFrame)

// Server accepts bridge-protocol TCP connections from companion nodes.
type Server struct {
	Bind       string
	Port       int
	ServerName string
	Caps       []string

	Pairing *pairing.Store
	Handle  CommandHandler
	Log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	listener net.Listener
}

// NewServer constructs a Server; call Serve to start accepting connections.
func NewServer(bind string, port int, serverName string, caps []string, ps *pairing.Store, handle CommandHandler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		Bind:       bind,
		Port:       port,
		ServerName: serverName,
		Caps:       caps,
		Pairing:    ps,
		Handle:     handle,
		Log:        log,
		sessions:   make(map[string]*Session),
	}
}

// Session is one attached node's duplex connection.
type Session struct {
	NodeID      string
	DisplayName string
	Platform    string

	conn      net.Conn
	writeMu   sync.Mutex
	seqOut    int64
	lastSeqIn int64
	missed    int32
	closeOnce sync.Once
	closed    chan struct{}
}

// Send delivers an event frame to the session, stamping the next seq.
func (s *Session) Send(event string, data map[string]string) error {
	seq := atomic.AddInt64(&s.seqOut, 1)
	f := Frame{Type: frameEvent, Seq: seq, Body: encodeBody(EventFrame{Event: event, Data: data})}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, f)
}

func (s *Session) sendRaw(f Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(s.conn, f)
}

// Close ends the session, optionally after a graceful Goodbye frame.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		if reason != "" {
			_ = s.sendRaw(Frame{Type: frameGoodbye, Body: encodeBody(Goodbye{Reason: reason})})
		}
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Serve listens on Bind:Port until ctx is cancelled.
func (srv *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", srv.Bind, srv.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	srv.Log.Info("bridge server listening", "addr", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go srv.handleConn(ctx, conn)
	}
}

func (srv *Server) handleConn(ctx context.Context, conn net.Conn) {
	ctx, span := tracing.StartSpan(ctx, "bridge.handshake",
		attribute.String("remote_addr", conn.RemoteAddr().String()))
	defer span.End()

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	f, err := readFrame(conn)
	if err != nil || f.Type != frameHello {
		_ = conn.Close()
		return
	}
	var hello Hello
	if err := decodeBody(f, &hello); err != nil || hello.NodeID == "" {
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})
	span.SetAttributes(attribute.String("node_id", hello.NodeID))

	if !srv.authenticate(hello) {
		code := srv.Pairing.RequestCode("bridge", hello.NodeID).Value
		_ = writeFrame(conn, Frame{Type: framePair, Body: encodeBody(PairRequired{Status: "pair", Code: code})})
		_ = conn.Close()
		return
	}

	sess := &Session{
		NodeID:      hello.NodeID,
		DisplayName: hello.DisplayName,
		Platform:    hello.Platform,
		conn:        conn,
		closed:      make(chan struct{}),
	}

	srv.displaceAndRegister(sess)
	defer srv.unregister(sess)

	if err := sess.sendRaw(Frame{Type: frameWelcome, Body: encodeBody(Welcome{ServerName: srv.ServerName, Capabilities: srv.Caps})}); err != nil {
		return
	}

	go srv.heartbeatLoop(ctx, sess)
	srv.readLoop(ctx, sess)
}

// authenticate validates Hello.Token against the bridge-token keyed by
// nodeId.
func (srv *Server) authenticate(hello Hello) bool {
	if hello.Token == "" {
		return false
	}
	want, ok := srv.Pairing.BridgeToken(hello.NodeID)
	if !ok {
		return false
	}
	return want == hello.Token
}

// displaceAndRegister enforces at most one attached session per nodeId,
// gracefully closing any prior session first.
func (srv *Server) displaceAndRegister(sess *Session) {
	srv.mu.Lock()
	prior, ok := srv.sessions[sess.NodeID]
	srv.sessions[sess.NodeID] = sess
	srv.mu.Unlock()

	if ok {
		prior.Close("displaced by new session")
	}
}

func (srv *Server) unregister(sess *Session) {
	srv.mu.Lock()
	if srv.sessions[sess.NodeID] == sess {
		delete(srv.sessions, sess.NodeID)
	}
	srv.mu.Unlock()
	sess.Close("")
}

func (srv *Server) heartbeatLoop(ctx context.Context, sess *Session) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.closed:
			return
		case <-ticker.C:
			if atomic.AddInt32(&sess.missed, 1) > maxMissedPings {
				srv.Log.Warn("bridge session missed heartbeats", "nodeId", sess.NodeID)
				sess.Close("heartbeat timeout")
				return
			}
			seq := atomic.AddInt64(&sess.seqOut, 1)
			if err := sess.sendRaw(Frame{Type: framePing, Seq: seq, Body: encodeBody(Ping{TS: time.Now().UnixMilli()})}); err != nil {
				sess.Close("")
				return
			}
		}
	}
}

func (srv *Server) readLoop(ctx context.Context, sess *Session) {
	for {
		f, err := readFrame(sess.conn)
		if err != nil {
			return
		}

		// Out-of-order frames are dropped.
		if f.Seq != 0 {
			if f.Seq <= sess.lastSeqIn {
				continue
			}
			sess.lastSeqIn = f.Seq
		}

		switch f.Type {
		case framePing:
			var p Ping
			_ = decodeBody(f, &p)
			_ = sess.sendRaw(Frame{Type: framePong, Body: encodeBody(Pong{TS: p.TS})})
		case framePong:
			atomic.StoreInt32(&sess.missed, 0)
		case frameGoodbye:
			return
		case frameCommand:
			var cmd CommandFrame
			if err := decodeBody(f, &cmd); err != nil {
				continue
			}
			if srv.Handle != nil {
				srv.Handle(ctx, sess, cmd)
			}
		}
	}
}

// Broadcast sends an event to every attached session.
func (srv *Server) Broadcast(event string, data map[string]string) {
	srv.mu.Lock()
	sessions := make([]*Session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()
	for _, s := range sessions {
		_ = s.Send(event, data)
	}
}

// SessionFor returns the attached session for nodeId, if any.
func (srv *Server) SessionFor(nodeID string) (*Session, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	s, ok := srv.sessions[nodeID]
	return s, ok
}
