package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	// DataChannelLabel names the single ordered channel between two peers.
	DataChannelLabel = "sharemesh"

	highWaterMark = 2 * 1024 * 1024 // 2 MB - backpressure threshold
	lowWaterMark  = 512 * 1024      // 512 KB - resume threshold
	sendTimeout   = 60 * time.Second

	linkBuffer = 1024
)

var errBufferTimeout = errors.New("data channel buffer not draining")

// WebRTCTransport negotiates links as pion data channels. Candidates are
// trickled through the relay as they are gathered.
type WebRTCTransport struct {
	ICE    ICEConfig
	Logger *slog.Logger
}

var _ Transport = (*WebRTCTransport)(nil)

// Negotiate creates a peer connection. The initiator creates the data
// channel and sends the offer; the other side answers.
func (t *WebRTCTransport) Negotiate(ctx context.Context, req Request) (Negotiation, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pc, err := webrtc.NewPeerConnection(t.ICE.Configuration())
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	n := &rtcNegotiation{
		pc:     pc,
		req:    req,
		logger: logger.With("peer", req.PeerID),
		link:   make(chan Link, 1),
		closed: make(chan struct{}),
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := req.SendSignal(Signal{Type: SignalCandidate, Candidate: &init}); err != nil {
			n.logger.Debug("failed to relay ICE candidate", "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		n.logger.Debug("peer connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			n.fail()
		}
	})

	if req.Initiator {
		ordered := true
		dc, err := pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		n.bind(dc)

		offer, err := pc.CreateOffer(nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create offer: %w", err)
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			pc.Close()
			return nil, fmt.Errorf("set local description: %w", err)
		}
		if err := req.SendSignal(Signal{Type: SignalOffer, SDP: offer.SDP}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("send offer: %w", err)
		}
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() != DataChannelLabel {
				n.logger.Warn("ignoring unexpected data channel", "label", dc.Label())
				return
			}
			n.bind(dc)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			n.fail()
		case <-n.closed:
		}
	}()

	return n, nil
}

type rtcNegotiation struct {
	pc     *webrtc.PeerConnection
	req    Request
	logger *slog.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	delivered bool

	// pendingLink is the bound data channel, open or not.
	pendingLink *dataChannelLink

	link      chan Link
	closed    chan struct{}
	closeOnce sync.Once
}

func (n *rtcNegotiation) Link() <-chan Link { return n.link }

// HandleSignal applies an offer, answer or ICE candidate. Candidates that
// arrive before the remote description are queued.
func (n *rtcNegotiation) HandleSignal(sig Signal) error {
	switch sig.Type {
	case SignalOffer:
		if err := n.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sig.SDP}); err != nil {
			return err
		}
		answer, err := n.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := n.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return n.req.SendSignal(Signal{Type: SignalAnswer, SDP: answer.SDP})

	case SignalAnswer:
		return n.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sig.SDP})

	case SignalCandidate:
		if sig.Candidate == nil {
			return nil
		}
		n.mu.Lock()
		if !n.remoteSet {
			n.pending = append(n.pending, *sig.Candidate)
			n.mu.Unlock()
			return nil
		}
		n.mu.Unlock()
		if err := n.pc.AddICECandidate(*sig.Candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unexpected signal type %q", sig.Type)
}

func (n *rtcNegotiation) setRemote(desc webrtc.SessionDescription) error {
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	n.mu.Lock()
	n.remoteSet = true
	queued := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, c := range queued {
		if err := n.pc.AddICECandidate(c); err != nil {
			n.logger.Debug("failed to add queued ICE candidate", "error", err)
		}
	}
	return nil
}

// bind wires a data channel. Messages are queued from the start so nothing
// that arrives before the session attaches is lost.
func (n *rtcNegotiation) bind(dc *webrtc.DataChannel) {
	l := newDataChannelLink(n.pc, dc)

	dc.OnOpen(func() {
		n.mu.Lock()
		if n.delivered {
			n.mu.Unlock()
			return
		}
		n.delivered = true
		n.mu.Unlock()

		n.logger.Debug("data channel open")
		n.link <- l
		n.closeOnce.Do(func() { close(n.closed) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.push(msg.Data)
	})
	dc.OnClose(func() {
		l.Close()
	})
	dc.OnBufferedAmountLow(l.drained)
	dc.SetBufferedAmountLowThreshold(lowWaterMark)

	n.mu.Lock()
	n.pendingLink = l
	n.mu.Unlock()
}

// fail tears the connection down unless a link was already delivered, in
// which case the link owns the connection.
func (n *rtcNegotiation) fail() {
	n.mu.Lock()
	delivered := n.delivered
	l := n.pendingLink
	n.mu.Unlock()

	if delivered {
		if l != nil {
			l.Close()
		}
		return
	}
	n.Close()
}

func (n *rtcNegotiation) Close() error {
	n.mu.Lock()
	delivered := n.delivered
	n.mu.Unlock()

	n.closeOnce.Do(func() { close(n.closed) })
	if delivered {
		return nil
	}
	return n.pc.Close()
}

type dataChannelLink struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	messages chan []byte
	lowWater chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

func newDataChannelLink(pc *webrtc.PeerConnection, dc *webrtc.DataChannel) *dataChannelLink {
	return &dataChannelLink{
		pc:       pc,
		dc:       dc,
		messages: make(chan []byte, linkBuffer),
		lowWater: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (l *dataChannelLink) push(data []byte) {
	select {
	case l.messages <- data:
	case <-l.done:
	}
}

func (l *dataChannelLink) drained() {
	select {
	case l.lowWater <- struct{}{}:
	default:
	}
}

// Send waits for the channel's send buffer to fall below the high-water mark
// before queueing more data.
func (l *dataChannelLink) Send(data []byte) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}

	if l.dc.BufferedAmount() >= highWaterMark {
		timer := time.NewTimer(sendTimeout)
		defer timer.Stop()
		for l.dc.BufferedAmount() >= highWaterMark {
			select {
			case <-l.lowWater:
			case <-l.done:
				return ErrLinkClosed
			case <-timer.C:
				return errBufferTimeout
			}
		}
	}

	if err := l.dc.Send(data); err != nil {
		if l.dc.ReadyState() != webrtc.DataChannelStateOpen {
			return ErrLinkClosed
		}
		return err
	}
	return nil
}

func (l *dataChannelLink) Messages() <-chan []byte { return l.messages }

func (l *dataChannelLink) Done() <-chan struct{} { return l.done }

func (l *dataChannelLink) Close() error {
	first := false
	l.closeOnce.Do(func() {
		close(l.done)
		first = true
	})
	if !first {
		return nil
	}
	l.dc.Close()
	return l.pc.Close()
}
