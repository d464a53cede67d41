package out

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"time"

	trackerout "tmk/internal/modules/tracker/port/out"
)

// JSON-RPC over a unix socket is the boundary between the editor
// plumbing and the per-instance daemon.

type JSONRPCServer struct{}

type JSONRPCClient struct{}

func NewJSONRPCServer() trackerout.IPCServer {
	return &JSONRPCServer{}
}

func NewJSONRPCClient() trackerout.IPCClient {
	return &JSONRPCClient{}
}

type rpcHandler struct {
	h trackerout.IPCHandler
}

type reportReq struct {
	Project string
	Job     string
	Seconds int64
}

type statusResp struct {
	Status trackerout.DaemonStatus
}

type empty struct{}

func (s *rpcHandler) Report(req reportReq, _ *empty) error {
	return s.h.Report(context.Background(), req.Project, req.Job, req.Seconds)
}

func (s *rpcHandler) Status(_ empty, resp *statusResp) error {
	status, err := s.h.Status(context.Background())
	if err != nil {
		return err
	}
	resp.Status = status
	return nil
}

func (s *rpcHandler) Stop(_ empty, _ *empty) error {
	return s.h.Stop(context.Background())
}

func (s *JSONRPCServer) Serve(ctx context.Context, socketPath string, handler trackerout.IPCHandler) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale ipc socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen ipc socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod ipc socket: %w", err)
	}
	defer ln.Close()

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName("Tracker", &rpcHandler{h: handler}); err != nil {
		return fmt.Errorf("register ipc handler: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go rpcSrv.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

func (c *JSONRPCClient) Report(ctx context.Context, socketPath, project, job string, seconds int64) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call("Tracker.Report", reportReq{Project: project, Job: job, Seconds: seconds}, &empty{})
}

func (c *JSONRPCClient) Status(ctx context.Context, socketPath string) (trackerout.DaemonStatus, error) {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return trackerout.DaemonStatus{}, err
	}
	defer client.Close()
	resp := statusResp{}
	if err := client.Call("Tracker.Status", empty{}, &resp); err != nil {
		return trackerout.DaemonStatus{}, err
	}
	return resp.Status, nil
}

func (c *JSONRPCClient) Stop(ctx context.Context, socketPath string) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call("Tracker.Stop", empty{}, &empty{})
}

func dialClient(ctx context.Context, socketPath string) (*rpc.Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn)), nil
}
