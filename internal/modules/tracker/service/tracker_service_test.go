package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"tmk/internal/modules/tracker/domain"
	trackerout "tmk/internal/modules/tracker/port/out"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRuntime struct {
	mu      sync.Mutex
	id      string
	anns    []domain.Announcement
	reports []domain.DeltaReport
	sendErr error
	stopped bool
}

func (r *fakeRuntime) InstanceID() string { return r.id }

func (r *fakeRuntime) Announce(_ context.Context, ann domain.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anns = append(r.anns, ann)
	return nil
}

func (r *fakeRuntime) SendReport(_ context.Context, _ string, report domain.DeltaReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.reports = append(r.reports, report)
	return nil
}

func (r *fakeRuntime) PeerCount() int { return 0 }

func (r *fakeRuntime) ListenAddrs() []string {
	return []string{"/ip4/127.0.0.1/tcp/4001/p2p/" + r.id}
}

func (r *fakeRuntime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	return nil
}

func (r *fakeRuntime) sentReports() []domain.DeltaReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DeltaReport(nil), r.reports...)
}

type fakeTransport struct {
	runtime  *fakeRuntime
	mu       sync.Mutex
	handlers trackerout.TransportHandlers
}

func (t *fakeTransport) Start(_ context.Context, _ trackerout.TransportStartInput, handlers trackerout.TransportHandlers) (trackerout.RuntimeTransport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = handlers
	return t.runtime, nil
}

func (t *fakeTransport) deliver(ann domain.Announcement) {
	t.mu.Lock()
	h := t.handlers.OnAnnouncement
	t.mu.Unlock()
	h(ann)
}

func (t *fakeTransport) deliverReport(report domain.DeltaReport) {
	t.mu.Lock()
	h := t.handlers.OnReport
	t.mu.Unlock()
	h(report)
}

type fakeSheetApplier struct {
	mu       sync.Mutex
	applied  []domain.PendingDelta
	applyErr error
	probeErr error
}

func (a *fakeSheetApplier) Apply(_ context.Context, deltas []domain.PendingDelta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.applyErr != nil {
		return a.applyErr
	}
	a.applied = append(a.applied, deltas...)
	return nil
}

func (a *fakeSheetApplier) Probe(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.probeErr
}

func (a *fakeSheetApplier) appliedDeltas() []domain.PendingDelta {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.PendingDelta(nil), a.applied...)
}

type fakeDaemonStore struct {
	mu  sync.Mutex
	dir string
	pid int
}

func (s *fakeDaemonStore) WritePID(_ context.Context, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = pid
	return nil
}

func (s *fakeDaemonStore) ReadPID(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pid == 0 {
		return 0, errors.New("no pid recorded")
	}
	return s.pid, nil
}

func (s *fakeDaemonStore) ClearPID(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pid = 0
	return nil
}

func (s *fakeDaemonStore) SocketPath() string { return filepath.Join(s.dir, "tracker.sock") }
func (s *fakeDaemonStore) LogPath() string    { return filepath.Join(s.dir, "tracker.log") }

// fakeIPCServer blocks until the daemon context is cancelled, the way
// the real unix-socket server does.
type fakeIPCServer struct{}

func (fakeIPCServer) Serve(ctx context.Context, _ string, _ trackerout.IPCHandler) error {
	<-ctx.Done()
	return ctx.Err()
}

type harness struct {
	svc       *TrackerService
	clk       *fakeClock
	transport *fakeTransport
	sheets    *fakeSheetApplier
	done      chan error
	cancel    context.CancelFunc
	stopOnce  sync.Once
}

// stop cancels the daemon loop and waits for it to exit. Safe to call
// more than once; the cleanup hook always calls it.
func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.stopOnce.Do(func() {
		h.cancel()
		select {
		case <-h.done:
		case <-time.After(3 * time.Second):
			t.Error("daemon loop did not exit")
		}
	})
}

func startHarness(t *testing.T, instanceID string) *harness {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	transport := &fakeTransport{runtime: &fakeRuntime{id: instanceID}}
	sheets := &fakeSheetApplier{}
	store := &fakeDaemonStore{dir: t.TempDir()}
	logger := log.New(io.Discard)

	svc := NewTrackerService(sheets, transport, store, fakeIPCServer{}, nil, nil, clk, logger, "testns", "inst-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.RunDaemon(ctx)
	}()

	// The runtime exists once Report stops refusing.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.Status(ctx); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	h := &harness{svc: svc, clk: clk, transport: transport, sheets: sheets, done: done, cancel: cancel}
	t.Cleanup(func() { h.stop(t) })
	return h
}

func (h *harness) waitForRole(t *testing.T, role domain.Role) {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		status, err := h.svc.Status(context.Background())
		if err == nil && status.Role == string(role) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("instance never reached role %q", role)
}

func TestReportBuffersAndTracksLastJob(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")
	ctx := context.Background()

	if err := h.svc.Report(ctx, "website", "redesign", 8); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := h.svc.Report(ctx, "website", "redesign", 5); err != nil {
		t.Fatalf("Report: %v", err)
	}

	status, err := h.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PendingSeconds != 13 {
		t.Errorf("PendingSeconds = %d, want 13", status.PendingSeconds)
	}
	if status.LastProject != "website" || status.LastJob != "redesign" {
		t.Errorf("last job = %s.%s, want website.redesign", status.LastProject, status.LastJob)
	}
}

func TestReportClampsImplausibleSeconds(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")
	ctx := context.Background()

	if err := h.svc.Report(ctx, "website", "redesign", -50); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := h.svc.Report(ctx, "website", "redesign", 1_000_000); err != nil {
		t.Fatalf("Report: %v", err)
	}

	status, err := h.svc.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PendingSeconds != 0 {
		t.Errorf("PendingSeconds = %d, want 0 after clamping", status.PendingSeconds)
	}
}

func TestReportRejectsMissingProject(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")
	if err := h.svc.Report(context.Background(), "", "job", 5); err == nil {
		t.Fatal("expected error for empty project")
	}
}

func TestAdoptsAnnouncedServer(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")

	h.transport.deliver(domain.Announcement{InstanceID: "peer-b", Role: domain.RoleServer, Epoch: 1})

	status, err := h.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Role != string(domain.RoleClient) {
		t.Errorf("Role = %s, want client", status.Role)
	}
	if status.ServerID != "peer-b" {
		t.Errorf("ServerID = %s, want peer-b", status.ServerID)
	}
}

func TestPromotesAfterQuietDiscovery(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")

	h.clk.Advance(DiscoveryWindow + time.Second)
	h.waitForRole(t, domain.RoleServer)

	status, err := h.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Epoch != 1 {
		t.Errorf("Epoch = %d, want 1", status.Epoch)
	}
	if status.ServerID != "peer-a" {
		t.Errorf("ServerID = %s, want self", status.ServerID)
	}
}

func TestServerFlushesAggregateOnShutdown(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")

	h.clk.Advance(DiscoveryWindow + time.Second)
	h.waitForRole(t, domain.RoleServer)

	h.transport.deliverReport(domain.DeltaReport{InstanceID: "peer-b", Project: "website", Job: "redesign", Seconds: 9})
	h.transport.deliverReport(domain.DeltaReport{InstanceID: "peer-c", Project: "website", Job: "redesign", Seconds: 4})

	h.stop(t)

	applied := h.sheets.appliedDeltas()
	if len(applied) != 1 {
		t.Fatalf("applied %d deltas, want 1 coalesced", len(applied))
	}
	if applied[0].Project != "website" || applied[0].Job != "redesign" || applied[0].Seconds != 13 {
		t.Errorf("applied = %+v, want website.redesign 13s", applied[0])
	}
}

func TestServerAcceptsCoalescedPeerHandoff(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")

	h.clk.Advance(DiscoveryWindow + time.Second)
	h.waitForRole(t, domain.RoleServer)

	// A departing peer hands over the sum of many reports in one delta,
	// well above what a single editor report may carry.
	h.transport.deliverReport(domain.DeltaReport{InstanceID: "peer-b", Project: "website", Job: "redesign", Seconds: 300})

	status, err := h.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.PendingSeconds != 300 {
		t.Errorf("PendingSeconds = %d, want 300", status.PendingSeconds)
	}

	h.stop(t)

	applied := h.sheets.appliedDeltas()
	if len(applied) != 1 {
		t.Fatalf("applied %d deltas, want 1", len(applied))
	}
	if applied[0].Project != "website" || applied[0].Job != "redesign" || applied[0].Seconds != 300 {
		t.Errorf("applied = %+v, want website.redesign 300s", applied[0])
	}
}

func TestClientHandsPendingToServerOnShutdown(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")

	h.transport.deliver(domain.Announcement{InstanceID: "peer-b", Role: domain.RoleServer, Epoch: 1})
	if err := h.svc.Report(context.Background(), "website", "redesign", 7); err != nil {
		t.Fatalf("Report: %v", err)
	}

	h.stop(t)

	reports := h.transport.runtime.sentReports()
	if len(reports) != 1 {
		t.Fatalf("sent %d reports, want 1", len(reports))
	}
	if reports[0].Project != "website" || reports[0].Seconds != 7 {
		t.Errorf("report = %+v, want website 7s", reports[0])
	}
	if len(h.sheets.appliedDeltas()) != 0 {
		t.Error("client wrote the sheet directly")
	}
}

func TestDemotionYieldsToHigherClaim(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")

	h.clk.Advance(DiscoveryWindow + time.Second)
	h.waitForRole(t, domain.RoleServer)

	h.transport.deliver(domain.Announcement{InstanceID: "peer-z", Role: domain.RoleServer, Epoch: 5})

	status, err := h.svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Role != string(domain.RoleClient) {
		t.Errorf("Role = %s, want client after yielding", status.Role)
	}
	if status.ServerID != "peer-z" {
		t.Errorf("ServerID = %s, want peer-z", status.ServerID)
	}
}

func TestPromotionWithUnwritableSheetDegrades(t *testing.T) {
	t.Parallel()
	h := startHarness(t, "peer-a")
	h.sheets.mu.Lock()
	h.sheets.probeErr = errors.New("sheet directory is read only")
	h.sheets.mu.Unlock()

	h.clk.Advance(DiscoveryWindow + time.Second)
	h.waitForRole(t, domain.RoleServer)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := h.svc.Status(context.Background())
		if err == nil && status.Degraded {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("instance never entered degraded mode")
}

func TestStatusBeforeRunFails(t *testing.T) {
	t.Parallel()
	svc := NewTrackerService(&fakeSheetApplier{}, &fakeTransport{runtime: &fakeRuntime{id: "x"}}, &fakeDaemonStore{dir: t.TempDir()}, fakeIPCServer{}, nil, nil, &fakeClock{now: time.Now()}, log.New(io.Discard), "ns", "inst")
	if _, err := svc.Status(context.Background()); err == nil {
		t.Fatal("expected error before RunDaemon")
	}
}
