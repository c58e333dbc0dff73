package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

const (
	maxRequestBytes  = 64 << 10
	maxResponseBytes = 8 << 20
)

// Serve answers one request per connection until ctx is cancelled or the
// listener is closed.
func Serve(ctx context.Context, listener net.Listener, handler Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			resp := serveConn(ctx, conn, handler)
			if !resp.OK {
				logger.Debug("ipc request failed", "error", resp.Error)
			}
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) Response {
	resp := func() Response {
		line, err := readLine(conn, maxRequestBytes)
		if err != nil {
			return Response{Error: fmt.Sprintf("read request: %v", err)}
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			return Response{Error: fmt.Sprintf("decode request: %v", err)}
		}
		return handler.Handle(ctx, req)
	}()
	_ = json.NewEncoder(conn).Encode(resp)
	return resp
}

func readLine(r io.Reader, limit int64) ([]byte, error) {
	reader := bufio.NewReader(io.LimitReader(r, limit))
	return reader.ReadBytes('\n')
}
