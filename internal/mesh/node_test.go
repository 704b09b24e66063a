package mesh

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sharemesh/sharemesh/internal/peer"
	"github.com/sharemesh/sharemesh/internal/relay"
	"github.com/sharemesh/sharemesh/internal/server"
	"github.com/sharemesh/sharemesh/internal/signaling"
	"github.com/sharemesh/sharemesh/internal/transfer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T) string {
	t.Helper()

	logger := discardLogger()
	hub := relay.NewHub(relay.NewRegistry(relay.RegistryOptions{}), relay.NewNameAllocator(0), logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(server.NewRouter(hub, server.Options{Logger: logger}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type testNode struct {
	*Node
	store  *transfer.MemoryStore
	events chan Event
}

func connect(t *testing.T, url string, transport peer.Transport) *testNode {
	t.Helper()

	tn := &testNode{store: transfer.NewMemoryStore(), events: make(chan Event, 4096)}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := Connect(ctx, Options{
		RelayURL:  url,
		Transport: transport,
		Store:     tn.store,
		OnEvent:   func(ev Event) { tn.events <- ev },
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	tn.Node = n
	return tn
}

// next waits for the first event of kind that satisfies match.
func (tn *testNode) next(t *testing.T, kind EventKind, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-tn.events:
			if ev.Kind == kind && (match == nil || match(ev)) {
				return ev
			}
		case <-timeout:
			t.Fatalf("%s: timed out waiting for %s", tn.Self().Name, kind)
		}
	}
}

func transferKind(kind transfer.EventKind) func(Event) bool {
	return func(ev Event) bool { return ev.Transfer.Kind == kind }
}

func linkedRoom(t *testing.T) (a, b *testNode, roomID string) {
	t.Helper()
	url := startRelay(t)
	transport := peer.NewLoopback()
	a = connect(t, url, transport)
	b = connect(t, url, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	roomID, err := a.CreateRoom(ctx, 2)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := b.JoinRoom(ctx, roomID); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	a.next(t, EventPeerLinked, nil)
	b.next(t, EventPeerLinked, nil)
	return a, b, roomID
}

func TestRoomChatAndTransfer(t *testing.T) {
	a, b, roomID := linkedRoom(t)

	if len(roomID) != relay.DefaultRoomIDLength || a.RoomID() != roomID || b.RoomID() != roomID {
		t.Fatalf("room ids: created %q, a %q, b %q", roomID, a.RoomID(), b.RoomID())
	}
	peers := a.Peers()
	if len(peers) != 1 || peers[0].Name != b.Self().Name || peers[0].State != peer.Linked {
		t.Fatalf("a.Peers() = %+v", peers)
	}

	if err := a.Say("hello mesh"); err != nil {
		t.Fatalf("Say: %v", err)
	}
	got := b.next(t, EventChat, nil)
	if got.Chat.Text != "hello mesh" || got.Chat.SenderName != a.Self().Name || got.Chat.Local {
		t.Errorf("chat at b = %+v", got.Chat)
	}
	if echo := a.next(t, EventChat, nil); !echo.Chat.Local {
		t.Errorf("a did not get a local echo: %+v", echo.Chat)
	}

	data := make([]byte, 40000)
	rand.Read(data)
	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := a.SendFile(b.Self().Name, path); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	offer := b.next(t, EventTransfer, transferKind(transfer.EventOffer))
	if offer.Transfer.Name != "photo.jpg" || offer.Transfer.MimeType != "image/jpeg" || offer.Peer.Name != a.Self().Name {
		t.Fatalf("offer = %+v", offer)
	}
	if name, size, ok := b.Pending(a.Self().Name); !ok || name != "photo.jpg" || size != 40000 {
		t.Errorf("Pending = %q, %d, %v", name, size, ok)
	}

	if err := b.Accept(a.Self().Name); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	done := b.next(t, EventTransfer, transferKind(transfer.EventCompleted))
	if stored, _ := b.store.Get(done.Transfer.Path); !bytes.Equal(stored, data) {
		t.Error("received file differs from the original")
	}
	a.next(t, EventTransfer, transferKind(transfer.EventCompleted))

	if err := b.LeaveRoom(); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	left := a.next(t, EventPeerLeft, nil)
	if left.Peer.ID != b.Self().ID {
		t.Errorf("peer left = %+v, want %s", left.Peer, b.Self().ID)
	}
	if len(a.Peers()) != 0 || len(b.Peers()) != 0 {
		t.Errorf("peers after leave: a=%v b=%v", a.Peers(), b.Peers())
	}
}

func TestRejectedOffer(t *testing.T) {
	a, b, _ := linkedRoom(t)

	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("private"), 0644)

	a.SendFile(b.Self().Name, path)
	b.next(t, EventTransfer, transferKind(transfer.EventOffer))
	if err := b.Reject(a.Self().Name); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	ev := a.next(t, EventTransfer, transferKind(transfer.EventRejected))
	if !errors.Is(ev.Transfer.Err, transfer.ErrTransferRejected) {
		t.Errorf("rejected error = %v", ev.Transfer.Err)
	}
	if b.store.Len() != 0 {
		t.Error("rejected file was stored")
	}
}

func TestDisconnectAbortsTransfer(t *testing.T) {
	a, b, _ := linkedRoom(t)

	path := filepath.Join(t.TempDir(), "big.bin")
	os.WriteFile(path, make([]byte, 1<<20), 0644)

	a.SendFile(b.Self().Name, path)
	b.next(t, EventTransfer, transferKind(transfer.EventOffer))
	b.Close()

	// Transfers are aborted before the peer is reported gone.
	failed := a.next(t, EventTransfer, transferKind(transfer.EventFailed))
	if !errors.Is(failed.Transfer.Err, transfer.ErrLinkLost) {
		t.Errorf("failure = %v, want ErrLinkLost", failed.Transfer.Err)
	}
	a.next(t, EventPeerLeft, nil)
	if len(a.Peers()) != 0 {
		t.Errorf("a still lists peers: %v", a.Peers())
	}
}

func TestJoinFullRoom(t *testing.T) {
	url := startRelay(t)
	transport := peer.NewLoopback()
	a := connect(t, url, transport)
	b := connect(t, url, transport)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	roomID, err := a.CreateRoom(ctx, 1)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	err = b.JoinRoom(ctx, roomID)
	var serr *signaling.ServerError
	if !errors.As(err, &serr) || serr.Code != signaling.CodeRoomFull {
		t.Fatalf("JoinRoom error = %v, want room_full", err)
	}
	if b.RoomID() != "" {
		t.Errorf("b.RoomID() = %q after a failed join", b.RoomID())
	}
}

func TestCreateRoomInvalidCapacity(t *testing.T) {
	a := connect(t, startRelay(t), peer.NewLoopback())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.CreateRoom(ctx, 0)
	var serr *signaling.ServerError
	if !errors.As(err, &serr) || serr.Code != signaling.CodeInvalidCapacity {
		t.Fatalf("CreateRoom error = %v, want invalid_capacity", err)
	}
}

func TestUnknownPeer(t *testing.T) {
	a, _, _ := linkedRoom(t)

	if err := a.SendFile("NobodyHere", "whatever"); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("SendFile error = %v, want ErrUnknownPeer", err)
	}
	if err := a.Accept("NobodyHere"); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("Accept error = %v, want ErrUnknownPeer", err)
	}
}

func TestLeaveWithoutRoom(t *testing.T) {
	a := connect(t, startRelay(t), peer.NewLoopback())
	if err := a.LeaveRoom(); !errors.Is(err, ErrNotInRoom) {
		t.Errorf("LeaveRoom error = %v, want ErrNotInRoom", err)
	}
}
