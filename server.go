package filewire

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/filewire/chunker"
	"github.com/opd-ai/filewire/config"
	"github.com/opd-ai/filewire/protocol"
	"github.com/opd-ai/filewire/session"
)

// FileHandler is invoked with every successfully verified transfer.
type FileHandler func(meta chunker.Metadata, data []byte)

// Server accepts connections and runs receive sessions on them. Each
// connection is serviced by its own goroutine; no mutable state is
// shared across connections beyond the read-only configuration.
type Server struct {
	cfg      config.Config
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.RWMutex
	handler FileHandler
}

// NewServer validates cfg, binds the listen address and starts
// accepting connections.
func NewServer(cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewServer",
		"addr":     listener.Addr().String(),
	}).Info("Server started")

	s.wg.Add(1)
	go s.acceptConnections()

	return s, nil
}

// OnFile registers the handler invoked for each verified transfer.
// This method is safe for concurrent use.
func (s *Server) OnFile(handler FileHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops accepting connections and unblocks in-flight reads by
// closing the listener. Connection goroutines observe the close as
// ErrConnectionClosed and exit; Close waits for them.
func (s *Server) Close() error {
	s.cancel()
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

// acceptConnections hands each accepted connection to its own
// goroutine.
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptConnections",
				"error":    err.Error(),
			}).Warn("Accept failed")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"function": "acceptConnections",
			"remote":   conn.RemoteAddr().String(),
		}).Info("Connection established")

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs receive sessions on one connection until the
// peer disconnects. A failed attempt does not end the connection: the
// peer may start a fresh attempt on the same stream.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Close the connection on shutdown so a parked read unblocks.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	for {
		receiver := session.NewReceiver(conn)
		data, meta, err := receiver.Run()
		if err != nil {
			if errors.Is(err, protocol.ErrConnectionClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "handleConnection",
					"remote":   remote,
				}).Info("Client disconnected")
				return
			}

			var frameErr *protocol.FrameError
			if errors.As(err, &frameErr) {
				// Framing is broken; nothing further on this stream
				// can be trusted.
				logrus.WithFields(logrus.Fields{
					"function": "handleConnection",
					"remote":   remote,
					"error":    err.Error(),
				}).Error("Closing connection after frame error")
				return
			}

			// Incomplete or mismatched transfer: the result frame has
			// been sent, wait for the client's next attempt.
			logrus.WithFields(logrus.Fields{
				"function": "handleConnection",
				"remote":   remote,
				"error":    err.Error(),
			}).Warn("Receive attempt failed, awaiting retry")
			continue
		}

		s.mu.RLock()
		handler := s.handler
		s.mu.RUnlock()
		if handler != nil {
			handler(meta, data)
		}
	}
}
