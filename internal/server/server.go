package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"github.com/lattice-markets/matchcore/internal/book"
	"github.com/lattice-markets/matchcore/internal/ingress"
)

// ErrImproperTask is returned by a worker that received a task it cannot
// handle, the Go equivalent of saiputravu-Exchange's ErrImproperConversion.
var ErrImproperTask = errors.New("server: task is not a session")

const (
	defaultWorkers  = 10
	maxFrameSize    = 64
	defaultTaskChan = 256
)

// session is one connected client, identified by a uuid rather than the
// teacher's monotonic uint16 connection id — sessions here can outlive a
// single process restart's worth of ids and the matcher's Command.ClientID
// needs a string key regardless.
type session struct {
	id   uuid.UUID
	conn net.Conn
}

// Server accepts TCP connections, decodes wire frames off each one via a
// tomb-supervised worker pool, and feeds decoded commands to a single
// Matcher goroutine. Grounded on
// _examples/saiputravu-Exchange/internal/net/server.go's Run/Shutdown/
// handleConnection shape, adapted from its multi-asset Engine interface
// down to one instrument's book.Book.
type Server struct {
	addr    string
	book    *book.Book
	ring    *ingress.Ring[Command]
	matcher *Matcher
	log     zerolog.Logger

	pool WorkerPool

	// ingressLatency tracks the time from a connection's socket read to the
	// moment its decoded command is pushed onto the matcher's ring, per
	// SPEC_FULL.md §9's restored ingress-boundary histogram.
	ingressLatency *ingress.Histogram

	sessionsMu sync.Mutex
	sessions   map[uuid.UUID]*session

	cancel context.CancelFunc
}

// New builds a Server listening on addr and dispatching onto b.
func New(addr string, b *book.Book, logger zerolog.Logger) *Server {
	ring := ingress.NewRing[Command]()
	return &Server{
		addr:           addr,
		book:           b,
		ring:           ring,
		matcher:        NewMatcher(b, ring, logger),
		log:            logger,
		pool:           NewWorkerPool(defaultWorkers, logger),
		ingressLatency: ingress.NewHistogram(),
		sessions:       make(map[uuid.UUID]*session),
	}
}

// IngressLatency exposes the server's socket-read-to-ring-push histogram,
// mainly for metrics export and diagnostics dumps.
func (s *Server) IngressLatency() *ingress.Histogram {
	return s.ingressLatency
}

// Run listens on addr and blocks until ctx is cancelled or an unrecoverable
// listener error occurs. It supervises the matcher goroutine and
// connection-handling worker pool under one tomb so either's death tears
// down the other.
func (s *Server) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	defer listener.Close()

	t.Go(func() error { return s.matcher.Run(t) })
	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	s.log.Info().Str("addr", s.addr).Msg("server listening")

	for {
		select {
		case <-ctx.Done():
			return t.Wait()
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return t.Wait()
				default:
				}
				s.log.Error().Err(err).Msg("accept failed")
				continue
			}

			sess := s.addSession(conn)
			s.log.Info().Str("session", sess.id.String()).Msg("client connected")
			s.pool.AddTask(sess)
		}
	}
}

// Shutdown cancels the server's context, unwinding the listener loop, the
// worker pool, and the matcher.
func (s *Server) Shutdown() {
	s.log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) addSession(conn net.Conn) *session {
	sess := &session{id: uuid.New(), conn: conn}
	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()
	return sess
}

func (s *Server) removeSession(id uuid.UUID) {
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
}

// handleConnection reads one wire frame off task's connection, decodes it,
// and forwards it to the matcher via the ingress ring, then requeues the
// session for its next frame — the same requeue-after-one-message shape as
// saiputravu-Exchange's handleConnection.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	sess, ok := task.(*session)
	if !ok {
		return ErrImproperTask
	}

	select {
	case <-t.Dying():
		s.closeSession(sess)
		return nil
	default:
	}

	readStart := time.Now()

	buf := make([]byte, maxFrameSize)
	n, err := sess.conn.Read(buf)
	if err != nil {
		s.log.Error().Err(err).Str("session", sess.id.String()).Msg("connection read failed")
		s.closeSession(sess)
		return nil
	}

	decoded, err := ingress.DecodeFrame(buf[:n])
	if err != nil {
		s.log.Error().Err(err).Str("session", sess.id.String()).Msg("failed to decode frame")
		s.pool.AddTask(sess)
		return nil
	}

	cmd := Command{ClientID: sess.id.String()}
	switch f := decoded.(type) {
	case ingress.NewOrderFrame:
		cmd.NewOrder = &f
	case ingress.CancelOrderFrame:
		cmd.Cancel = &f
	case ingress.MarketOrderFrame:
		cmd.MarketOrder = &f
	}
	s.ring.Push(cmd)
	s.ingressLatency.RecordLatency(uint64(time.Since(readStart).Nanoseconds()))

	s.pool.AddTask(sess)
	return nil
}

func (s *Server) closeSession(sess *session) {
	sess.conn.Close()
	s.removeSession(sess.id)
}
