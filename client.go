package filewire

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/filewire/chunker"
	"github.com/opd-ai/filewire/config"
	"github.com/opd-ai/filewire/fault"
	"github.com/opd-ai/filewire/protocol"
	"github.com/opd-ai/filewire/retry"
	"github.com/opd-ai/filewire/session"
)

// Client uploads files to a Server, retrying whole attempts under the
// retry controller. It keeps a single connection across attempts and
// redials only when the connection itself fails.
type Client struct {
	cfg      config.Config
	conn     net.Conn
	injector session.Injector
}

// NewClient validates cfg and prepares a client. When error simulation
// is enabled the outbound chunk stream of every attempt passes through
// a fault injector seeded from the configuration. The first transfer
// dials the server lazily.
func NewClient(cfg config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{cfg: cfg}
	if cfg.SimulateErrors {
		injector, err := fault.NewInjector(cfg.FaultConfig())
		if err != nil {
			return nil, err
		}
		c.injector = injector
	}

	return c, nil
}

// SetInjector overrides the outbound fault policy. Pass nil for a
// faithful stream.
func (c *Client) SetInjector(in session.Injector) {
	c.injector = in
}

// Close tears down the connection if one is open.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SendFile transfers data under the given name, restarting the whole
// transfer on any failed attempt up to the configured budget. On
// success the outcome carries the verified buffer; on failure it
// carries the attempt count and the last attempt's diagnostic detail.
func (c *Client) SendFile(ctx context.Context, name string, data []byte) retry.Outcome {
	checksum, chunks, err := chunker.Split(data, c.cfg.ChunkSize)
	if err != nil {
		return retry.Outcome{Err: err}
	}

	meta := chunker.Metadata{
		FileName:    name,
		FileSize:    uint64(len(data)),
		ChunkSize:   uint32(c.cfg.ChunkSize),
		TotalChunks: uint32(len(chunks)),
		Checksum:    checksum,
	}

	logrus.WithFields(logrus.Fields{
		"function":  "SendFile",
		"file_name": name,
		"size":      len(data),
		"total":     meta.TotalChunks,
		"checksum":  checksum,
	}).Info("Starting supervised transfer")

	outcome := retry.Run(ctx, func(attempt int) ([]byte, error) {
		if err := c.runAttempt(meta, chunks); err != nil {
			return nil, err
		}
		return data, nil
	}, retry.Config{
		MaxRetries: c.cfg.MaxRetries,
		Delay:      c.cfg.RetryDelay.Std(),
	})

	if outcome.Success {
		logrus.WithFields(logrus.Fields{
			"function": "SendFile",
			"attempts": outcome.Attempts,
			"elapsed":  outcome.Elapsed,
			"checksum": checksum,
		}).Info("Transfer successful")
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "SendFile",
			"attempts": outcome.Attempts,
			"elapsed":  outcome.Elapsed,
			"error":    outcome.Err.Error(),
		}).Error("Transfer failed")
	}

	return outcome
}

// SendPath reads the file at path and transfers it under its base name.
func (c *Client) SendPath(ctx context.Context, path string) retry.Outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return retry.Outcome{Err: err}
	}
	return c.SendFile(ctx, filepath.Base(path), data)
}

// runAttempt performs one sender session over the current connection.
// Connection-level failures reset the connection so the next attempt
// redials.
func (c *Client) runAttempt(meta chunker.Metadata, chunks []chunker.Chunk) error {
	conn, err := c.ensureConn()
	if err != nil {
		return err
	}

	sender := session.NewSender(conn, c.injector)
	if err := sender.Run(meta, chunks); err != nil {
		if c.isConnectionError(err) {
			c.resetConn()
		}
		return err
	}
	return nil
}

// ensureConn dials the server if no connection is open.
func (c *Client) ensureConn() (net.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := net.Dial("tcp", c.cfg.Addr())
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "ensureConn",
		"addr":     c.cfg.Addr(),
	}).Info("Connected to server")

	c.conn = conn
	return conn, nil
}

// resetConn drops a connection that can no longer be trusted.
func (c *Client) resetConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// isConnectionError reports whether err means the stream itself is
// unusable, as opposed to a verification failure the same connection
// can retry over.
func (c *Client) isConnectionError(err error) bool {
	var frameErr *protocol.FrameError
	return errors.Is(err, protocol.ErrConnectionClosed) || errors.As(err, &frameErr)
}
