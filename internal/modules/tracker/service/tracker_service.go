package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"tmk/internal/modules/tracker/domain"
	trackerout "tmk/internal/modules/tracker/port/out"
	"tmk/internal/platform/clock"
)

const (
	DiscoveryWindow   = 3 * time.Second
	HeartbeatInterval = 2 * time.Second
	LivenessMultiple  = 3
	ReportInterval    = 10 * time.Second
	FlushInterval     = 15 * time.Second

	daemonStartTimeout = 5 * time.Second
	// maxBufferedSeconds caps degraded-mode buffering at six hours of
	// activity before further reports are dropped.
	maxBufferedSeconds = 6 * 60 * 60
)

var ErrDaemonStartFailed = errors.New("tracker daemon failed to start")

type runtimeState struct {
	election  *domain.Election
	transport trackerout.RuntimeTransport
	// local holds seconds measured here and not yet delivered to the
	// server; aggregate holds server-side deltas awaiting a flush.
	local     *domain.DeltaBuffer
	aggregate *domain.DeltaBuffer
	cancel    context.CancelFunc
	degraded  bool

	lastProject string
	lastJob     string
}

// TrackerService runs one editor instance's share of the tracking
// protocol: reporting local activity, electing the single writer, and,
// while holding the server role, aggregating everyone's reports into
// the sheet.
type TrackerService struct {
	sheets    trackerout.SheetApplier
	transport trackerout.Transport
	daemon    trackerout.DaemonStore
	ipcServer trackerout.IPCServer
	ipcClient trackerout.IPCClient
	activity  trackerout.ActivityStore
	clk       clock.Clock
	logger    *log.Logger

	// namespace scopes peer discovery to one sheet identity; instance
	// names this daemon's runtime dir for respawning.
	namespace string
	instance  string

	mu      sync.RWMutex
	runtime *runtimeState
}

func NewTrackerService(
	sheets trackerout.SheetApplier,
	transport trackerout.Transport,
	daemon trackerout.DaemonStore,
	ipcServer trackerout.IPCServer,
	ipcClient trackerout.IPCClient,
	activity trackerout.ActivityStore,
	clk clock.Clock,
	logger *log.Logger,
	namespace, instance string,
) *TrackerService {
	if logger == nil {
		logger = log.Default()
	}
	return &TrackerService{
		sheets:    sheets,
		transport: transport,
		daemon:    daemon,
		ipcServer: ipcServer,
		ipcClient: ipcClient,
		activity:  activity,
		clk:       clk,
		logger:    logger,
		namespace: namespace,
		instance:  instance,
	}
}

// RunDaemon is the long-lived instance loop. It returns when the
// context is cancelled or a Stop arrives over IPC.
func (s *TrackerService) RunDaemon(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt, err := s.transport.Start(runCtx, trackerout.TransportStartInput{Namespace: s.namespace}, trackerout.TransportHandlers{
		OnAnnouncement: s.observeAnnouncement,
		OnReport:       s.ingestReport,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runtime = &runtimeState{
		election:  domain.NewElection(rt.InstanceID(), DiscoveryWindow, LivenessMultiple*HeartbeatInterval, s.clk.Now()),
		transport: rt,
		local:     domain.NewDeltaBuffer(maxBufferedSeconds),
		aggregate: domain.NewDeltaBuffer(maxBufferedSeconds),
		cancel:    cancel,
	}
	s.mu.Unlock()

	if err := s.daemon.WritePID(runCtx, os.Getpid()); err != nil {
		_ = rt.Stop()
		return err
	}
	s.logger.Info("tracker instance started", "instance_id", rt.InstanceID(), "namespace", s.namespace, "addrs", rt.ListenAddrs())

	ipcErr := make(chan error, 1)
	go func() {
		if s.ipcServer == nil {
			ipcErr <- fmt.Errorf("ipc server is not configured")
			return
		}
		ipcErr <- s.ipcServer.Serve(runCtx, s.daemon.SocketPath(), s)
	}()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()
	report := time.NewTicker(ReportInterval)
	defer report.Stop()
	flush := time.NewTicker(FlushInterval)
	defer flush.Stop()

	for {
		select {
		case <-runCtx.Done():
			s.shutdown()
			return nil
		case err := <-ipcErr:
			s.shutdown()
			if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case <-heartbeat.C:
			s.heartbeatTick(runCtx)
		case <-report.C:
			s.reportTick(runCtx)
		case <-flush.C:
			s.flushTick(runCtx)
		}
	}
}

// Report implements the IPC surface: the editor plumbing hands over
// elapsed active seconds for its current (project, job).
func (s *TrackerService) Report(_ context.Context, project, job string, seconds int64) error {
	if project == "" || job == "" {
		return fmt.Errorf("project and job are required")
	}
	clamped, wasClamped := domain.ClampSeconds(seconds, ReportInterval)
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := s.runtime
	if rt == nil {
		return fmt.Errorf("tracker is not running")
	}
	rt.lastProject, rt.lastJob = project, job
	if wasClamped {
		s.logger.Warn("implausible activity report clamped", "project", project, "job", job, "seconds", seconds)
		s.appendActivity(domain.ActivityEvent{Type: domain.ActivityClamped, Message: fmt.Sprintf("clamped report of %ds for %s.%s", seconds, project, job)})
	}
	if clamped > 0 && !rt.local.Add(project, job, clamped) {
		s.logger.Warn("report buffer full, dropping seconds", "project", project, "job", job, "seconds", clamped)
	}
	return nil
}

// Status implements the IPC surface.
func (s *TrackerService) Status(_ context.Context) (trackerout.DaemonStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt := s.runtime
	if rt == nil {
		return trackerout.DaemonStatus{}, fmt.Errorf("tracker is not running")
	}
	return trackerout.DaemonStatus{
		InstanceID:     rt.transport.InstanceID(),
		Role:           string(rt.election.Role()),
		Epoch:          rt.election.Epoch(),
		ServerID:       rt.election.ServerID(),
		PeerCount:      rt.transport.PeerCount(),
		PendingSeconds: rt.local.Total() + rt.aggregate.Total(),
		DroppedSeconds: rt.local.Dropped() + rt.aggregate.Dropped(),
		Degraded:       rt.degraded,
		LastProject:    rt.lastProject,
		LastJob:        rt.lastJob,
		ListenAddrs:    rt.transport.ListenAddrs(),
	}, nil
}

// Stop implements the IPC surface.
func (s *TrackerService) Stop(_ context.Context) error {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt != nil && rt.cancel != nil {
		rt.cancel()
	}
	return nil
}

func (s *TrackerService) observeAnnouncement(ann domain.Announcement) {
	s.mu.Lock()
	rt := s.runtime
	if rt == nil {
		s.mu.Unlock()
		return
	}
	event := rt.election.Observe(ann, s.clk.Now())
	s.mu.Unlock()
	s.handleEvent(event, ann.InstanceID)
}

// ingestReport receives a peer's delta. While serving it lands in the
// aggregate; otherwise it is folded into the local buffer and forwarded
// to the real server on the next report tick. Reports sent into the
// brief window around a role change are thus delayed, not lost.
//
// Peer deltas are coalesced sums, already clamped report by report at
// their origin, so they are bounded by the buffering cap and not by
// the per-report limit.
func (s *TrackerService) ingestReport(report domain.DeltaReport) {
	clamped, wasClamped := domain.ClampForwardedSeconds(report.Seconds, maxBufferedSeconds)
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := s.runtime
	if rt == nil {
		return
	}
	if wasClamped {
		s.logger.Warn("implausible peer delta clamped", "peer", report.InstanceID, "seconds", report.Seconds)
		s.appendActivity(domain.ActivityEvent{Type: domain.ActivityClamped, Message: fmt.Sprintf("clamped peer delta of %ds from %s", report.Seconds, report.InstanceID)})
	}
	if clamped == 0 {
		return
	}
	buffer := rt.local
	if rt.election.Role() == domain.RoleServer {
		buffer = rt.aggregate
	}
	if !buffer.Add(report.Project, report.Job, clamped) {
		s.logger.Warn("delta buffer full, dropping peer seconds", "peer", report.InstanceID, "seconds", clamped)
	}
}

func (s *TrackerService) heartbeatTick(ctx context.Context) {
	s.mu.Lock()
	rt := s.runtime
	if rt == nil {
		s.mu.Unlock()
		return
	}
	event := rt.election.Tick(s.clk.Now())
	ann := rt.election.Announcement()
	transport := rt.transport
	s.mu.Unlock()

	s.handleEvent(event, ann.InstanceID)
	if err := transport.Announce(ctx, ann); err != nil {
		s.logger.Debug("announce failed, retrying next heartbeat", "err", err)
	}
}

func (s *TrackerService) handleEvent(event domain.Event, instanceID string) {
	switch event {
	case domain.EventPromoted:
		s.logger.Info("promoted to server", "instance_id", instanceID)
		s.appendActivity(domain.ActivityEvent{Type: domain.ActivityPromoted, Message: "promoted to server"})
		s.onPromoted()
	case domain.EventDemoted:
		s.logger.Info("higher claim observed, yielding server role")
		s.appendActivity(domain.ActivityEvent{Type: domain.ActivityDemoted, Message: "yielded server role"})
		s.onDemoted()
	case domain.EventServerAdopted:
		s.logger.Info("following server", "server_id", s.currentServerID())
	case domain.EventServerLost:
		s.logger.Warn("server heartbeats stopped, re-running discovery")
		s.appendActivity(domain.ActivityEvent{Type: domain.ActivityServerLost, Message: "server lost, rediscovering"})
	}
}

// onPromoted verifies the sheet is writable. An unwritable sheet does
// not crash the instance; it keeps serving in degraded mode, buffering
// reports until the sheet becomes writable or the buffer fills.
func (s *TrackerService) onPromoted() {
	err := s.sheets.Probe(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runtime == nil {
		return
	}
	s.runtime.degraded = err != nil
	if err != nil {
		s.logger.Warn("sheet not writable, serving in report-only mode", "err", err)
		s.appendActivity(domain.ActivityEvent{Type: domain.ActivityDegraded, Message: "sheet not writable at promotion"})
	}
}

// onDemoted flushes what the late server still held. Whatever cannot be
// written moves to the local buffer and is forwarded to the winner.
func (s *TrackerService) onDemoted() {
	s.mu.Lock()
	rt := s.runtime
	if rt == nil {
		s.mu.Unlock()
		return
	}
	pending := rt.aggregate.Drain()
	s.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	if err := s.sheets.Apply(context.Background(), pending); err != nil {
		s.logger.Warn("final flush failed, forwarding deltas to new server", "err", err)
		s.mu.Lock()
		if s.runtime != nil {
			s.runtime.local.Restore(pending)
		}
		s.mu.Unlock()
	}
}

// reportTick delivers locally buffered seconds: straight into the
// aggregate when serving, over the transport when following. Failed
// sends are restored and retried next tick.
func (s *TrackerService) reportTick(ctx context.Context) {
	s.mu.Lock()
	rt := s.runtime
	if rt == nil || rt.local.Len() == 0 {
		s.mu.Unlock()
		return
	}
	role := rt.election.Role()
	serverID := rt.election.ServerID()
	instanceID := rt.transport.InstanceID()
	pending := rt.local.Drain()

	if role == domain.RoleServer {
		for _, d := range pending {
			rt.aggregate.Add(d.Project, d.Job, d.Seconds)
		}
		s.mu.Unlock()
		return
	}
	if role != domain.RoleClient || serverID == "" {
		rt.local.Restore(pending)
		s.mu.Unlock()
		return
	}
	transport := rt.transport
	s.mu.Unlock()

	for i, d := range pending {
		report := domain.DeltaReport{InstanceID: instanceID, Project: d.Project, Job: d.Job, Seconds: d.Seconds}
		if err := transport.SendReport(ctx, serverID, report); err != nil {
			s.logger.Debug("report send failed, retrying next tick", "err", err)
			s.mu.Lock()
			if s.runtime != nil {
				s.runtime.local.Restore(pending[i:])
			}
			s.mu.Unlock()
			return
		}
	}
}

// flushTick writes the aggregate to the sheet. Writes are coalesced to
// one rewrite per interval rather than one per delta.
func (s *TrackerService) flushTick(ctx context.Context) {
	s.mu.Lock()
	rt := s.runtime
	if rt == nil || rt.election.Role() != domain.RoleServer || rt.aggregate.Len() == 0 {
		s.mu.Unlock()
		return
	}
	pending := rt.aggregate.Drain()
	s.mu.Unlock()

	if err := s.sheets.Apply(ctx, pending); err != nil {
		s.logger.Warn("flush failed, keeping deltas buffered", "err", err)
		s.mu.Lock()
		if s.runtime != nil {
			s.runtime.aggregate.Restore(pending)
			s.runtime.degraded = true
		}
		s.mu.Unlock()
		return
	}
	var total int64
	for _, d := range pending {
		total += d.Seconds
	}
	s.mu.Lock()
	if s.runtime != nil {
		s.runtime.degraded = false
	}
	s.mu.Unlock()
	s.appendActivity(domain.ActivityEvent{Type: domain.ActivityFlushed, Message: fmt.Sprintf("flushed %ds across %d entries", total, len(pending))})
}

// shutdown performs the final flush before the process exits so
// measured time survives a clean stop.
func (s *TrackerService) shutdown() {
	s.mu.Lock()
	rt := s.runtime
	if rt == nil {
		s.mu.Unlock()
		return
	}
	role := rt.election.Role()
	pending := append(rt.aggregate.Drain(), rt.local.Drain()...)
	transport := rt.transport
	serverID := rt.election.ServerID()
	instanceID := transport.InstanceID()
	s.runtime = nil
	s.mu.Unlock()

	if len(pending) > 0 {
		if role == domain.RoleServer {
			if err := s.sheets.Apply(context.Background(), pending); err != nil {
				s.logger.Warn("final flush failed on shutdown", "err", err)
			}
		} else if serverID != "" {
			sendCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			for _, d := range pending {
				report := domain.DeltaReport{InstanceID: instanceID, Project: d.Project, Job: d.Job, Seconds: d.Seconds}
				if err := transport.SendReport(sendCtx, serverID, report); err != nil {
					s.logger.Warn("could not hand off pending seconds on shutdown", "err", err)
					break
				}
			}
			cancel()
		}
	}
	_ = transport.Stop()
	_ = s.daemon.ClearPID(context.Background())
	_ = os.Remove(s.daemon.SocketPath())
	s.logger.Info("tracker instance stopped")
}

func (s *TrackerService) currentServerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runtime == nil {
		return ""
	}
	return s.runtime.election.ServerID()
}

func (s *TrackerService) appendActivity(event domain.ActivityEvent) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Append(context.Background(), event); err != nil {
		s.logger.Debug("activity append failed", "err", err)
	}
}

// StartDaemon spawns a detached daemon process for this instance and
// waits for its socket.
func (s *TrackerService) StartDaemon(ctx context.Context) error {
	status, err := s.DaemonStatus(ctx)
	if err == nil && status.Running {
		if socketReachable(s.daemon.SocketPath()) {
			return nil
		}
		return fmt.Errorf("%w: process alive but socket unavailable", ErrDaemonStartFailed)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.daemon.LogPath()), 0o755); err != nil {
		return fmt.Errorf("create daemon log dir: %w", err)
	}
	if err := os.Remove(s.daemon.SocketPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale daemon socket: %w", err)
	}

	logFile, err := os.OpenFile(s.daemon.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, "daemon", "__run", "--instance", s.instance)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if err := s.daemon.WritePID(ctx, cmd.Process.Pid); err != nil {
		return err
	}
	_ = cmd.Process.Release()

	if err := waitForSocket(s.daemon.SocketPath(), daemonStartTimeout); err != nil {
		_ = s.daemon.ClearPID(ctx)
		return fmt.Errorf("%w: %v", ErrDaemonStartFailed, err)
	}
	return nil
}

func (s *TrackerService) StopDaemon(ctx context.Context) error {
	s.mu.RLock()
	rt := s.runtime
	s.mu.RUnlock()
	if rt != nil && rt.cancel != nil {
		rt.cancel()
		return nil
	}

	if s.ipcClient != nil {
		_ = s.ipcClient.Stop(ctx, s.daemon.SocketPath())
	}

	pid, err := s.daemon.ReadPID(ctx)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(s.daemon.SocketPath())
			return nil
		}
		return err
	}
	if pid <= 0 || !processAlive(pid) {
		_ = s.daemon.ClearPID(ctx)
		_ = os.Remove(s.daemon.SocketPath())
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("stop daemon pid=%d: %w", pid, err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if processAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	if err := s.daemon.ClearPID(ctx); err != nil {
		return err
	}
	_ = os.Remove(s.daemon.SocketPath())
	return nil
}

func (s *TrackerService) DaemonStatus(ctx context.Context) (trackerout.DaemonRuntimeStatus, error) {
	out := trackerout.DaemonRuntimeStatus{SocketPath: s.daemon.SocketPath()}
	pid, err := s.daemon.ReadPID(ctx)
	if err == nil {
		out.PID = pid
		out.Running = processAlive(pid)
	}
	if out.Running && s.ipcClient != nil {
		status, statusErr := s.ipcClient.Status(ctx, s.daemon.SocketPath())
		if statusErr == nil {
			out.Status = status
		}
	}
	return out, nil
}

// ReportViaIPC forwards an activity report to the running daemon.
func (s *TrackerService) ReportViaIPC(ctx context.Context, project, job string, seconds int64) error {
	if s.ipcClient == nil {
		return fmt.Errorf("ipc client is not configured")
	}
	return s.ipcClient.Report(ctx, s.daemon.SocketPath(), project, job, seconds)
}

func (s *TrackerService) ActivityTail(ctx context.Context, limit int) ([]domain.ActivityEvent, error) {
	if s.activity == nil {
		return []domain.ActivityEvent{}, nil
	}
	return s.activity.Tail(ctx, limit)
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func socketReachable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if socketReachable(path) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("socket %s did not come up within %s", path, timeout)
}
