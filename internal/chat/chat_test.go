package chat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sharemesh/sharemesh/internal/protocol"
)

type fakePeer struct {
	frames []protocol.Chat
	err    error
}

func (p *fakePeer) Send(msgType string, payload any) error {
	if p.err != nil {
		return p.err
	}
	if msgType != protocol.TypeChat {
		return fmt.Errorf("unexpected frame %s", msgType)
	}
	p.frames = append(p.frames, payload.(protocol.Chat))
	return nil
}

func newChannel(peers ...Peer) *Channel {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return NewChannel(Options{
		SelfID:   "me",
		SelfName: "NinjaBlaze",
		Peers:    func() []Peer { return peers },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      func() time.Time { return fixed },
	})
}

func TestBroadcastReachesEveryPeerAndEchoes(t *testing.T) {
	a, b := &fakePeer{}, &fakePeer{}
	c := newChannel(a, b)

	msg, sent, err := c.Broadcast("hello room")
	if err != nil || !sent {
		t.Fatalf("Broadcast = %v, %v", sent, err)
	}
	if !msg.Local || msg.SenderName != "NinjaBlaze" {
		t.Errorf("echo = %+v", msg)
	}
	for i, p := range []*fakePeer{a, b} {
		if len(p.frames) != 1 || p.frames[0].Text != "hello room" {
			t.Errorf("peer %d frames = %+v", i, p.frames)
		}
	}
	if got := c.Messages(); len(got) != 1 || got[0].Text != "hello room" {
		t.Errorf("log = %+v", got)
	}
}

func TestBroadcastIgnoresBlankText(t *testing.T) {
	p := &fakePeer{}
	c := newChannel(p)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, sent, _ := c.Broadcast(text); sent {
			t.Errorf("Broadcast(%q) sent", text)
		}
	}
	if len(p.frames) != 0 || len(c.Messages()) != 0 {
		t.Error("blank text reached the peer or the log")
	}
}

func TestBroadcastEchoesDespiteFailures(t *testing.T) {
	lost := errors.New("link down")
	ok := &fakePeer{}
	c := newChannel(&fakePeer{err: lost}, ok)

	_, sent, err := c.Broadcast("still here")
	if !sent {
		t.Fatal("Broadcast reported not sent")
	}
	if !errors.Is(err, lost) {
		t.Errorf("error = %v, want wrapped link error", err)
	}
	if len(ok.frames) != 1 {
		t.Error("healthy peer skipped after a failure")
	}
	if len(c.Messages()) != 1 {
		t.Error("local echo missing")
	}
}

func TestReceiveKeepsArrivalOrder(t *testing.T) {
	var seen []string
	c := NewChannel(Options{OnMessage: func(m Message) { seen = append(seen, m.Text) }})

	c.Receive("p1", "Blaze", protocol.Chat{Text: "first", SentAt: 2000})
	c.Receive("p2", "Nova", protocol.Chat{Text: "second", SentAt: 1000})
	if _, ok := c.Receive("p2", "Nova", protocol.Chat{Text: " "}); ok {
		t.Error("blank remote chat accepted")
	}

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[0].Text != "first" || msgs[1].Text != "second" {
		t.Fatalf("log = %+v", msgs)
	}
	if !msgs[1].SentAt.Equal(time.UnixMilli(1000)) {
		t.Errorf("SentAt = %v", msgs[1].SentAt)
	}
	if len(seen) != 2 {
		t.Errorf("OnMessage calls = %v", seen)
	}
}

func TestLogIsBounded(t *testing.T) {
	c := NewChannel(Options{LogSize: 3})
	for i := 0; i < 10; i++ {
		c.Receive("p", "Blaze", protocol.Chat{Text: fmt.Sprint(i)})
	}

	msgs := c.Messages()
	if len(msgs) != 3 {
		t.Fatalf("log length = %d, want 3", len(msgs))
	}
	if msgs[0].Text != "7" || msgs[2].Text != "9" {
		t.Errorf("log = %+v, want the newest three", msgs)
	}
}

func TestDefaultLogSize(t *testing.T) {
	c := NewChannel(Options{})
	for i := 0; i < DefaultLogSize+25; i++ {
		c.Receive("p", "Blaze", protocol.Chat{Text: "x"})
	}
	if got := len(c.Messages()); got != DefaultLogSize {
		t.Errorf("log length = %d, want %d", got, DefaultLogSize)
	}
}
