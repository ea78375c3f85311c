package fsidxd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"fsindex/internal/version"
)

// ErrAlreadyRunning means another daemon answered on the socket; the
// caller should exit cleanly instead of fighting over it.
var ErrAlreadyRunning = errors.New("another daemon is already running")

type Options struct {
	SocketPath string
	Log        *slog.Logger
}

type Server struct {
	opts Options
	h    *Handlers
	log  *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	closeOnce sync.Once
	closed    chan struct{}
}

func NewServer(h *Handlers, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		opts:   opts,
		h:      h,
		log:    log,
		closed: make(chan struct{}),
	}
}

func (s *Server) SocketPath() string {
	if s == nil {
		return ""
	}
	return s.opts.SocketPath
}

// Run claims the socket and serves until Close. A socket whose owner
// still answers ping yields ErrAlreadyRunning; a socket nobody answers
// on is treated as stale and removed.
func (s *Server) Run() error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	path := strings.TrimSpace(s.opts.SocketPath)
	if path == "" {
		return fmt.Errorf("socket path is required")
	}

	if _, err := os.Stat(path); err == nil {
		if c, err := Dial(path); err == nil {
			pingErr := c.Ping()
			_ = c.Close()
			if pingErr == nil {
				return ErrAlreadyRunning
			}
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
		s.log.Info("removed stale socket", "path", path)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("listening", "socket", path)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}

	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	defer func() { _ = w.Flush() }()

	for {
		var req Request
		line, err := ReadOneLine(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			return
		}

		if err := json.Unmarshal(line, &req); err != nil {
			_ = WriteOneLine(w, Response{
				JSONRPC: "2.0",
				ID:      json.RawMessage("null"),
				Error:   &ErrorObject{Code: -32700, Message: "parse error"},
			})
			_ = w.Flush()
			continue
		}

		if len(req.ID) == 0 {
			// Notification: no response.
			_ = s.dispatch(req)
			continue
		}

		resp := s.dispatch(req)
		_ = WriteOneLine(w, resp)
		_ = w.Flush()
	}
}

func (s *Server) dispatch(req Request) Response {
	resp := Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		resp.Error = &ErrorObject{Code: -32600, Message: "invalid jsonrpc version"}
		return resp
	}

	switch req.Method {
	case "ping":
		resp.Result = "pong"
	case "version":
		resp.Result = version.String()
	case "status":
		st, err := s.h.Status()
		if err != nil {
			resp.Error = &ErrorObject{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = st
	case "search":
		var p SearchParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &p); err != nil {
				resp.Error = &ErrorObject{Code: -32602, Message: "invalid params"}
				return resp
			}
		}
		if strings.TrimSpace(p.Keywords) == "" {
			resp.Error = &ErrorObject{Code: -32602, Message: "keywords is required"}
			return resp
		}
		paths, err := s.h.Search(p)
		if err != nil {
			resp.Error = &ErrorObject{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = paths
	case "path.add":
		p, ok := pathParams(req, &resp)
		if !ok {
			return resp
		}
		added, err := s.h.PathAdd(p)
		if err != nil {
			resp.Error = &ErrorObject{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = added
	case "path.remove":
		p, ok := pathParams(req, &resp)
		if !ok {
			return resp
		}
		removed, err := s.h.PathRemove(p)
		if err != nil {
			resp.Error = &ErrorObject{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = removed
	case "path.exists":
		p, ok := pathParams(req, &resp)
		if !ok {
			return resp
		}
		exists, err := s.h.PathExists(p)
		if err != nil {
			resp.Error = &ErrorObject{Code: -32000, Message: err.Error()}
			return resp
		}
		resp.Result = exists
	default:
		resp.Error = &ErrorObject{Code: -32601, Message: "method not found"}
	}

	return resp
}

func pathParams(req Request, resp *Response) (PathParams, bool) {
	var p PathParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			resp.Error = &ErrorObject{Code: -32602, Message: "invalid params"}
			return p, false
		}
	}
	if strings.TrimSpace(p.Path) == "" {
		resp.Error = &ErrorObject{Code: -32602, Message: "path is required"}
		return p, false
	}
	return p, true
}
