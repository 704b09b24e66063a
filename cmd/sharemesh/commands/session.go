package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sharemesh/sharemesh/internal/config"
	"github.com/sharemesh/sharemesh/internal/mesh"
	"github.com/sharemesh/sharemesh/internal/peer"
	"github.com/sharemesh/sharemesh/internal/signaling"
	"github.com/sharemesh/sharemesh/internal/transfer"
	"github.com/sharemesh/sharemesh/internal/ui"
)

const eventBuffer = 256

// enterFunc puts a connected node into a room and returns the room id.
type enterFunc func(ctx context.Context, n *mesh.Node) (string, error)

// runRoom connects to the relay, enters a room and runs the room screen
// until the user quits.
func runRoom(ctx context.Context, created bool, enter enterFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	events := make(chan mesh.Event, eventBuffer)
	screenDone := make(chan struct{})
	publish := newPublisher(ctx, events, screenDone, logger)

	spinner := ui.NewConnectionSpinner("Connecting to relay...")
	spinner.Start()
	node, err := mesh.Connect(ctx, mesh.Options{
		RelayURL:  cfg.RelayURL,
		Transport: newTransport(cfg, logger),
		Store:     &transfer.DirStore{Dir: cfg.OutputDir},
		OnEvent:   publish,
		Logger:    logger,
	})
	if err != nil {
		spinner.Error("Could not reach the relay")
		return transfer.NewError("connect to relay", describeRoomError(err))
	}
	defer node.Close()
	defer close(screenDone)

	spinner.UpdateMessage("Entering room...")
	roomID, err := enter(ctx, node)
	if err != nil {
		spinner.Error("Could not enter the room")
		return describeRoomError(err)
	}
	spinner.Success(fmt.Sprintf("You are %s", ui.SelfStyle.Render(node.Self().Name)))

	if created {
		fmt.Println(ui.RoomInfoView(roomID, "sharemesh join "+roomID))
	} else {
		ui.PrintInfof("Joined room %s", roomID)
	}
	fmt.Println()

	return ui.RunRoom(ui.RoomOptions{
		SelfName: node.Self().Name,
		RoomID:   roomID,
		Events:   events,
		Execute:  newExecutor(node),
		Peers:    node.Peers,
	})
}

// newPublisher feeds node events to the room screen. Progress updates are
// dropped while the screen is behind; every other event waits for it until
// the screen or ctx is done.
func newPublisher(ctx context.Context, events chan<- mesh.Event, screenDone <-chan struct{}, logger *slog.Logger) func(mesh.Event) {
	return func(ev mesh.Event) {
		if ev.Kind == mesh.EventTransfer && ev.Transfer.Kind == transfer.EventProgress {
			select {
			case events <- ev:
			default:
				logger.Debug("room screen is behind, dropping progress", "file", ev.Transfer.Name)
			}
			return
		}
		select {
		case events <- ev:
		case <-screenDone:
		case <-ctx.Done():
		}
	}
}

func newTransport(cfg *config.Config, logger *slog.Logger) peer.Transport {
	user, pass := cfg.GetTURNCredentials()
	return &peer.WebRTCTransport{
		ICE: peer.ICEConfig{
			STUNServers: cfg.GetSTUNServers(),
			TURNServers: cfg.GetTURNServers(),
			TURNUser:    user,
			TURNPass:    pass,
			ForceRelay:  cfg.ForceRelay,
		},
		Logger: logger,
	}
}

// describeRoomError turns relay error codes into something a user can act on.
func describeRoomError(err error) error {
	var serverErr *signaling.ServerError
	if !errors.As(err, &serverErr) {
		return err
	}
	switch serverErr.Code {
	case signaling.CodeRoomFull:
		return fmt.Errorf("room is full")
	case signaling.CodeRoomNotFound:
		return fmt.Errorf("room does not exist, check the id")
	case signaling.CodeInvalidCapacity:
		return fmt.Errorf("capacity must be at least 1")
	case signaling.CodeNameExhausted:
		return fmt.Errorf("relay has no free names, try again later")
	}
	return err
}
