package out

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"

	"tmk/internal/modules/tracker/domain"
	trackerout "tmk/internal/modules/tracker/port/out"
)

const (
	announceProtocol protocol.ID = "/tmk/announce/1.0.0"
	reportProtocol   protocol.ID = "/tmk/report/1.0.0"

	connectTimeout = 4 * time.Second
	writeTimeout   = 3 * time.Second
)

// Libp2pTransport discovers peer instances over mDNS and exchanges
// announcements and delta reports over direct streams. The libp2p peer
// ID doubles as the instance ID, which makes the election tie-break
// stable across restarts of other peers.
type Libp2pTransport struct{}

func NewLibp2pTransport() trackerout.Transport {
	return &Libp2pTransport{}
}

type announceEnvelope struct {
	Namespace    string              `json:"namespace"`
	Announcement domain.Announcement `json:"announcement"`
}

type reportEnvelope struct {
	Namespace string             `json:"namespace"`
	Report    domain.DeltaReport `json:"report"`
}

type libp2pRuntime struct {
	host      host.Host
	namespace string
	handlers  trackerout.TransportHandlers
	discovery mdns.Service

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	peers    map[peer.ID]struct{}
	stopOnce sync.Once
}

func (t *Libp2pTransport) Start(ctx context.Context, input trackerout.TransportStartInput, handlers trackerout.TransportHandlers) (trackerout.RuntimeTransport, error) {
	h, err := libp2p.New(
		libp2p.ListenAddrStrings("/ip4/0.0.0.0/tcp/0", "/ip6/::/tcp/0"),
	)
	if err != nil {
		return nil, fmt.Errorf("start libp2p host: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &libp2pRuntime{
		host:      h,
		namespace: input.Namespace,
		handlers:  handlers,
		ctx:       runCtx,
		cancel:    cancel,
		peers:     map[peer.ID]struct{}{},
	}
	h.SetStreamHandler(announceProtocol, r.handleAnnounce)
	h.SetStreamHandler(reportProtocol, r.handleReport)

	r.discovery = mdns.NewMdnsService(h, "tmk-"+input.Namespace, r)
	if err := r.discovery.Start(); err != nil {
		cancel()
		_ = h.Close()
		return nil, fmt.Errorf("start mdns discovery: %w", err)
	}

	go func() {
		<-runCtx.Done()
		_ = r.Stop()
	}()
	return r, nil
}

func (r *libp2pRuntime) InstanceID() string {
	return r.host.ID().String()
}

// HandlePeerFound implements mdns.Notifee.
func (r *libp2pRuntime) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == r.host.ID() {
		return
	}
	r.host.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.ConnectedAddrTTL)
	connectCtx, cancel := context.WithTimeout(r.ctx, connectTimeout)
	defer cancel()
	if err := r.host.Connect(connectCtx, info); err != nil {
		return
	}
	r.mu.Lock()
	r.peers[info.ID] = struct{}{}
	r.mu.Unlock()
}

// Announce broadcasts the claim to every known peer. Unreachable peers
// are pruned; the caller retries on the next heartbeat.
func (r *libp2pRuntime) Announce(ctx context.Context, ann domain.Announcement) error {
	if r.ctx.Err() != nil {
		return domain.ErrTransportClosed
	}
	payload, err := json.Marshal(announceEnvelope{Namespace: r.namespace, Announcement: ann})
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range r.knownPeers() {
		if err := r.writeMessage(ctx, id, announceProtocol, payload); err != nil {
			r.forgetIfDisconnected(id)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *libp2pRuntime) SendReport(ctx context.Context, serverID string, report domain.DeltaReport) error {
	if r.ctx.Err() != nil {
		return domain.ErrTransportClosed
	}
	pid, err := peer.Decode(serverID)
	if err != nil {
		return fmt.Errorf("%w: bad server id %q", domain.ErrNoServer, serverID)
	}
	payload, err := json.Marshal(reportEnvelope{Namespace: r.namespace, Report: report})
	if err != nil {
		return err
	}
	if err := r.writeMessage(ctx, pid, reportProtocol, payload); err != nil {
		r.forgetIfDisconnected(pid)
		return err
	}
	return nil
}

func (r *libp2pRuntime) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *libp2pRuntime) Stop() error {
	var stopErr error
	r.stopOnce.Do(func() {
		r.cancel()
		if r.discovery != nil {
			_ = r.discovery.Close()
		}
		stopErr = r.host.Close()
	})
	return stopErr
}

func (r *libp2pRuntime) handleAnnounce(stream network.Stream) {
	defer stream.Close()
	env := announceEnvelope{}
	if err := json.NewDecoder(stream).Decode(&env); err != nil {
		return
	}
	if env.Namespace != r.namespace {
		return
	}
	r.rememberPeer(stream.Conn().RemotePeer())
	if r.handlers.OnAnnouncement != nil {
		r.handlers.OnAnnouncement(env.Announcement)
	}
}

func (r *libp2pRuntime) handleReport(stream network.Stream) {
	defer stream.Close()
	env := reportEnvelope{}
	if err := json.NewDecoder(stream).Decode(&env); err != nil {
		return
	}
	if env.Namespace != r.namespace {
		return
	}
	r.rememberPeer(stream.Conn().RemotePeer())
	if r.handlers.OnReport != nil {
		r.handlers.OnReport(env.Report)
	}
}

func (r *libp2pRuntime) writeMessage(ctx context.Context, id peer.ID, p protocol.ID, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	stream, err := r.host.NewStream(writeCtx, id, p)
	if err != nil {
		return err
	}
	defer stream.Close()
	_ = stream.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := stream.Write(payload); err != nil {
		return err
	}
	return nil
}

func (r *libp2pRuntime) knownPeers() []peer.ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]peer.ID, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	return out
}

func (r *libp2pRuntime) rememberPeer(id peer.ID) {
	r.mu.Lock()
	r.peers[id] = struct{}{}
	r.mu.Unlock()
}

func (r *libp2pRuntime) forgetIfDisconnected(id peer.ID) {
	if r.host.Network().Connectedness(id) == network.Connected {
		return
	}
	r.mu.Lock()
	delete(r.peers, id)
	r.mu.Unlock()
}

// ListenAddrs renders the host's full dialable addresses, for
// diagnostics.
func (r *libp2pRuntime) ListenAddrs() []string {
	out := make([]string, 0, len(r.host.Addrs()))
	for _, addr := range r.host.Addrs() {
		full := addr.Encapsulate(multiaddr.StringCast("/p2p/" + r.host.ID().String()))
		out = append(out, full.String())
	}
	return out
}
