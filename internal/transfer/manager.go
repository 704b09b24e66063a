// Package transfer implements consent-gated, per-chunk encrypted file
// transfer between linked peers.
package transfer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sharemesh/sharemesh/internal/protocol"
)

// DefaultProgressInterval rate-limits progress events per transfer.
const DefaultProgressInterval = 100 * time.Millisecond

// Conn is the frame sender for one peer. peer.Session satisfies it.
type Conn interface {
	Send(msgType string, payload any) error
	Done() <-chan struct{}
}

// Options configures a Manager.
type Options struct {
	// Store receives accepted files. Defaults to a MemoryStore.
	Store Store

	// OnEvent is called for every transfer event. It must not block.
	OnEvent func(Event)

	// ProgressInterval rate-limits progress events. Negative disables
	// throttling.
	ProgressInterval time.Duration

	Logger *slog.Logger
}

// Manager tracks outbound and inbound transfers, at most one of each per
// peer.
type Manager struct {
	store    Store
	onEvent  func(Event)
	interval time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	outbound map[string]*outbound
	inbound  map[string]*inbound
}

// NewManager creates a transfer manager.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    opts.Store,
		onEvent:  opts.OnEvent,
		interval: opts.ProgressInterval,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(map[string]*outbound),
		inbound:  make(map[string]*inbound),
	}
}

// SendFile offers a file to a peer and returns once file-meta is sent.
// Streaming starts when the peer accepts. If r is an io.Closer it is closed
// when the transfer ends.
func (m *Manager) SendFile(peerID string, conn Conn, name string, size int64, mimeType string, r io.Reader) error {
	name = filepath.Base(name)
	if !validName(name) {
		return WrapError("send file", ErrInvalidFile, "invalid file name")
	}
	if size < 0 {
		return WrapError("send file", ErrInvalidFile, "negative size")
	}
	if m.ctx.Err() != nil {
		return ErrClosed
	}

	key, err := NewKey()
	if err != nil {
		return err
	}
	o := &outbound{
		peerID:   peerID,
		conn:     conn,
		name:     name,
		size:     size,
		mimeType: mimeType,
		reader:   r,
		key:      key,
	}

	m.mu.Lock()
	if _, busy := m.outbound[peerID]; busy {
		m.mu.Unlock()
		key.Wipe()
		return NewFileError("send file", name, ErrTransferInProgress)
	}
	m.outbound[peerID] = o
	m.mu.Unlock()

	if err := conn.Send(protocol.TypeFileMeta, o.meta()); err != nil {
		m.removeOutbound(o)
		o.release()
		return NewFileError("send file-meta", name, linkErr(err))
	}

	m.logger.Info("file offered", "peer", peerID, "file", name, "size", size)
	return nil
}

// Accept consents to the pending transfer from peerID.
func (m *Manager) Accept(peerID string, conn Conn) error {
	in := m.pendingInbound(peerID)
	if in == nil {
		return NewError("accept", ErrNoPendingTransfer)
	}

	if err := in.accept(m.store); err != nil {
		m.failInbound(in, err)
		return err
	}
	if err := conn.Send(protocol.TypeAccept, protocol.Accept{Name: in.name}); err != nil {
		m.failInbound(in, linkErr(err))
		return NewFileError("accept", in.name, linkErr(err))
	}

	m.logger.Info("transfer accepted", "peer", peerID, "file", in.name)
	if in.size == 0 {
		m.emitInboundProgress(in, 0, false)
	}
	return nil
}

// Reject declines the pending transfer from peerID.
func (m *Manager) Reject(peerID string, conn Conn) error {
	in := m.pendingInbound(peerID)
	if in == nil {
		return NewError("reject", ErrNoPendingTransfer)
	}

	m.removeInbound(in)
	in.discard()
	m.logger.Info("transfer rejected", "peer", peerID, "file", in.name)

	if err := conn.Send(protocol.TypeReject, protocol.Reject{Name: in.name}); err != nil {
		return NewFileError("reject", in.name, linkErr(err))
	}
	return nil
}

// Pending returns the name and size of the unanswered offer from peerID.
func (m *Manager) Pending(peerID string) (string, int64, bool) {
	in := m.pendingInbound(peerID)
	if in == nil {
		return "", 0, false
	}
	return in.name, in.size, true
}

// Busy reports whether an outbound transfer to peerID is active.
func (m *Manager) Busy(peerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.outbound[peerID]
	return ok
}

// HandleFrame processes one transfer frame from peerID. Malformed frames are
// logged and dropped.
func (m *Manager) HandleFrame(peerID string, conn Conn, msg protocol.Message) {
	var err error
	switch msg.Type {
	case protocol.TypeFileMeta:
		var meta protocol.FileMeta
		if err = msg.DecodePayload(&meta); err == nil {
			m.handleMeta(peerID, conn, meta)
		}

	case protocol.TypeAccept:
		var accept protocol.Accept
		if err = msg.DecodePayload(&accept); err == nil {
			m.handleAccept(peerID, accept)
		}

	case protocol.TypeReject:
		var reject protocol.Reject
		if err = msg.DecodePayload(&reject); err == nil {
			m.handleReject(peerID, reject)
		}

	case protocol.TypeFileChunk:
		var chunk protocol.FileChunk
		if err = msg.DecodePayload(&chunk); err == nil {
			m.handleChunk(peerID, chunk)
		}

	case protocol.TypeFileEnd:
		var end protocol.FileEnd
		if err = msg.DecodePayload(&end); err == nil {
			m.handleEnd(peerID, end)
		}

	default:
		m.logger.Warn("ignoring unknown frame", "peer", peerID, "type", msg.Type)
	}

	if err != nil {
		m.logger.Warn("dropping malformed frame", "peer", peerID, "type", msg.Type, "error", err)
	}
}

func (m *Manager) handleMeta(peerID string, conn Conn, meta protocol.FileMeta) {
	name := filepath.Base(meta.Name)
	if !validName(name) || meta.Size < 0 {
		m.logger.Warn("rejecting invalid file offer", "peer", peerID, "file", meta.Name, "size", meta.Size)
		conn.Send(protocol.TypeReject, protocol.Reject{Name: meta.Name, Reason: "invalid offer"})
		return
	}
	key, err := KeyFromBytes(meta.Key)
	clear(meta.Key)
	if err != nil {
		m.logger.Warn("rejecting file offer with bad key", "peer", peerID, "file", name, "error", err)
		conn.Send(protocol.TypeReject, protocol.Reject{Name: meta.Name, Reason: "invalid key"})
		return
	}

	in := &inbound{
		peerID:   peerID,
		name:     name,
		size:     meta.Size,
		mimeType: meta.MimeType,
		key:      key,
		throttle: progressThrottle{interval: m.interval},
	}

	m.mu.Lock()
	if _, busy := m.inbound[peerID]; busy {
		m.mu.Unlock()
		key.Wipe()
		m.logger.Warn("rejecting second concurrent offer", "peer", peerID, "file", name)
		conn.Send(protocol.TypeReject, protocol.Reject{Name: meta.Name, Reason: "busy"})
		return
	}
	m.inbound[peerID] = in
	m.mu.Unlock()

	m.logger.Info("file offered by peer", "peer", peerID, "file", name, "size", meta.Size)
	m.onEvent(Event{
		Kind:      EventOffer,
		Direction: Inbound,
		PeerID:    peerID,
		Name:      name,
		MimeType:  meta.MimeType,
		Size:      meta.Size,
	})
}

func (m *Manager) handleAccept(peerID string, accept protocol.Accept) {
	m.mu.Lock()
	o := m.outbound[peerID]
	m.mu.Unlock()

	if o == nil || (accept.Name != "" && accept.Name != o.name) {
		m.logger.Warn("ignoring accept for unknown transfer", "peer", peerID, "file", accept.Name)
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	if !o.start(cancel) {
		cancel()
		m.logger.Debug("ignoring duplicate accept", "peer", peerID, "file", o.name)
		return
	}

	m.wg.Add(1)
	go m.runOutbound(ctx, o)
}

func (m *Manager) runOutbound(ctx context.Context, o *outbound) {
	defer m.wg.Done()
	defer o.abort()

	// The stream stops as soon as the peer goes away.
	go func() {
		select {
		case <-o.conn.Done():
			o.abort()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	throttle := progressThrottle{interval: m.interval}
	sent, err := o.stream(ctx, func(sent int64) {
		if throttle.allow(time.Now(), sent == o.size) {
			m.onEvent(Event{
				Kind:      EventProgress,
				Direction: Outbound,
				PeerID:    o.peerID,
				Name:      o.name,
				Size:      o.size,
				Bytes:     sent,
				Percent:   Percent(sent, o.size, false),
			})
		}
	})

	m.removeOutbound(o)
	o.release()

	if err != nil {
		m.logger.Warn("file send failed", "peer", o.peerID, "file", o.name, "sent", sent, "error", err)
		m.onEvent(Event{Kind: EventFailed, Direction: Outbound, PeerID: o.peerID, Name: o.name, Size: o.size, Bytes: sent, Err: err})
		return
	}

	m.logger.Info("file sent", "peer", o.peerID, "file", o.name, "size", sent, "duration", time.Since(start))
	m.onEvent(Event{
		Kind:      EventCompleted,
		Direction: Outbound,
		PeerID:    o.peerID,
		Name:      o.name,
		Size:      o.size,
		Bytes:     sent,
		Percent:   100,
	})
}

func (m *Manager) handleReject(peerID string, reject protocol.Reject) {
	m.mu.Lock()
	o := m.outbound[peerID]
	if o == nil || (reject.Name != "" && reject.Name != o.name) {
		m.mu.Unlock()
		m.logger.Warn("ignoring reject for unknown transfer", "peer", peerID, "file", reject.Name)
		return
	}
	if !o.retire() {
		m.mu.Unlock()
		m.logger.Warn("ignoring reject after accept", "peer", peerID, "file", o.name)
		return
	}
	delete(m.outbound, peerID)
	m.mu.Unlock()

	o.release()
	m.logger.Info("file declined by peer", "peer", peerID, "file", o.name, "reason", reject.Reason)
	m.onEvent(Event{
		Kind:      EventRejected,
		Direction: Outbound,
		PeerID:    peerID,
		Name:      o.name,
		Size:      o.size,
		Err:       ErrTransferRejected,
	})
}

func (m *Manager) handleChunk(peerID string, chunk protocol.FileChunk) {
	m.mu.Lock()
	in := m.inbound[peerID]
	m.mu.Unlock()

	if in == nil {
		m.logger.Warn("rejecting chunk without a transfer", "peer", peerID, "offset", chunk.Offset)
		return
	}
	if !in.isAccepted() {
		m.logger.Warn("rejecting chunk before accept", "peer", peerID, "file", in.name, "offset", chunk.Offset)
		return
	}

	received, err := in.write(chunk)
	if err != nil {
		m.failInbound(in, err)
		return
	}
	m.emitInboundProgress(in, received, false)
}

func (m *Manager) handleEnd(peerID string, end protocol.FileEnd) {
	m.mu.Lock()
	in := m.inbound[peerID]
	m.mu.Unlock()

	if in == nil {
		m.logger.Warn("rejecting file-end without a transfer", "peer", peerID, "file", end.Name)
		return
	}
	if !in.isAccepted() {
		m.logger.Warn("rejecting file-end before accept", "peer", peerID, "file", in.name)
		return
	}

	path, err := in.finish(end)
	if err != nil {
		m.failInbound(in, err)
		return
	}

	m.removeInbound(in)
	in.discard()
	m.emitInboundProgress(in, in.size, true)
	m.logger.Info("file received", "peer", peerID, "file", in.name, "size", in.size, "path", path)
	m.onEvent(Event{
		Kind:      EventCompleted,
		Direction: Inbound,
		PeerID:    peerID,
		Name:      in.name,
		MimeType:  in.mimeType,
		Size:      in.size,
		Bytes:     in.size,
		Percent:   100,
		Path:      path,
	})
}

// PeerClosed aborts every transfer with peerID.
func (m *Manager) PeerClosed(peerID string) {
	m.mu.Lock()
	o := m.outbound[peerID]
	in := m.inbound[peerID]
	m.mu.Unlock()

	if o != nil {
		if !o.retire() {
			// runOutbound reports the failure when the stream stops.
			o.abort()
		} else if m.removeOutbound(o) {
			o.release()
			m.onEvent(Event{Kind: EventFailed, Direction: Outbound, PeerID: peerID, Name: o.name, Size: o.size, Err: ErrLinkLost})
		}
	}
	if in != nil {
		m.failInbound(in, NewFileError("receive", in.name, ErrLinkLost))
	}
}

// Close aborts all transfers and waits for streams to stop.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	outs := m.outbound
	ins := m.inbound
	m.outbound = make(map[string]*outbound)
	m.inbound = make(map[string]*inbound)
	m.mu.Unlock()

	for _, o := range outs {
		o.release()
	}
	for _, in := range ins {
		in.discard()
	}
}

func (m *Manager) emitInboundProgress(in *inbound, received int64, done bool) {
	in.mu.Lock()
	allow := in.throttle.allow(time.Now(), done || received >= in.size)
	in.mu.Unlock()
	if !allow {
		return
	}
	m.onEvent(Event{
		Kind:      EventProgress,
		Direction: Inbound,
		PeerID:    in.peerID,
		Name:      in.name,
		Size:      in.size,
		Bytes:     received,
		Percent:   Percent(received, in.size, done),
	})
}

func (m *Manager) failInbound(in *inbound, err error) {
	if !m.removeInbound(in) {
		return
	}
	in.discard()

	in.mu.Lock()
	received := in.received
	in.mu.Unlock()

	m.logger.Warn("file receive failed", "peer", in.peerID, "file", in.name, "received", received, "error", err)
	m.onEvent(Event{Kind: EventFailed, Direction: Inbound, PeerID: in.peerID, Name: in.name, Size: in.size, Bytes: received, Err: err})
}

func (m *Manager) pendingInbound(peerID string) *inbound {
	m.mu.Lock()
	in := m.inbound[peerID]
	m.mu.Unlock()
	if in == nil || in.isAccepted() {
		return nil
	}
	return in
}

func (m *Manager) removeOutbound(o *outbound) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outbound[o.peerID] != o {
		return false
	}
	delete(m.outbound, o.peerID)
	return true
}

func (m *Manager) removeInbound(in *inbound) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inbound[in.peerID] != in {
		return false
	}
	delete(m.inbound, in.peerID)
	return true
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && name != string(filepath.Separator) &&
		!strings.ContainsAny(name, "/\\\x00")
}
