package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sharemesh/sharemesh/internal/chat"
	"github.com/sharemesh/sharemesh/internal/mesh"
	"github.com/sharemesh/sharemesh/internal/peer"
	"github.com/sharemesh/sharemesh/internal/transfer"
	"github.com/sharemesh/sharemesh/internal/utils"
)

const (
	// NotificationTTL is how long a notification stays on screen.
	NotificationTTL = 5 * time.Second

	chatLines    = 12
	tickInterval = 250 * time.Millisecond
)

// ErrQuit is returned by an Executor to end the room session.
var ErrQuit = errors.New("quit")

// Executor runs one line of user input and returns a status message.
type Executor func(line string) (string, error)

// EventMsg carries a node event into the room model.
type EventMsg mesh.Event

// TickMsg is sent periodically to expire notifications and refresh speeds.
type TickMsg time.Time

type resultMsg struct {
	text string
	err  error
}

type notification struct {
	text    string
	style   lipgloss.Style
	expires time.Time
}

// RoomOptions configures a RoomModel.
type RoomOptions struct {
	SelfName string
	RoomID   string
	Events   <-chan mesh.Event
	Execute  Executor
	Peers    func() []mesh.PeerInfo
}

// RoomModel is the interactive room screen: chat log, peers, transfers and
// an input line.
type RoomModel struct {
	opts    RoomOptions
	input   textinput.Model
	spinner spinner.Model
	width   int

	peers     []mesh.PeerInfo
	chat      []chat.Message
	rows      map[transferKey]*transferRow
	order     []transferKey
	notes     []notification
	showPeers bool
	quitting  bool
	now       func() time.Time
}

// NewRoomModel creates the room screen.
func NewRoomModel(opts RoomOptions) *RoomModel {
	if opts.Peers == nil {
		opts.Peers = func() []mesh.PeerInfo { return nil }
	}

	ti := textinput.New()
	ti.Placeholder = "message, or /help"
	ti.Prompt = "› "
	ti.CharLimit = 2000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &RoomModel{
		opts:    opts,
		input:   ti,
		spinner: s,
		width:   80,
		rows:    make(map[transferKey]*transferRow),
		now:     time.Now,
	}
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listenForEvents(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *RoomModel) listenForEvents() tea.Cmd {
	if m.opts.Events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.opts.Events
		if !ok {
			return EventMsg(mesh.Event{Kind: mesh.EventRelayLost, Err: mesh.ErrRelayLost})
		}
		return EventMsg(ev)
	}
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line != "" {
				cmds = append(cmds, m.execute(line))
			}
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(10, msg.Width-4)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TickMsg:
		m.expire(time.Time(msg))
		if !m.quitting {
			cmds = append(cmds, tickCmd())
		}

	case EventMsg:
		m.handleEvent(mesh.Event(msg))
		cmds = append(cmds, m.listenForEvents())

	case resultMsg:
		if errors.Is(msg.err, ErrQuit) {
			m.quitting = true
			return m, tea.Quit
		}
		if msg.err != nil {
			m.notify(msg.err.Error(), ErrorStyle)
		} else if msg.text != "" {
			m.notify(msg.text, SuccessStyle)
		}
		m.peers = m.opts.Peers()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// execute runs the input line off the UI goroutine.
func (m *RoomModel) execute(line string) tea.Cmd {
	if line == "/peers" {
		m.showPeers = !m.showPeers
		m.peers = m.opts.Peers()
		return nil
	}
	exec := m.opts.Execute
	if exec == nil {
		return nil
	}
	return func() tea.Msg {
		text, err := exec(line)
		return resultMsg{text: text, err: err}
	}
}

func (m *RoomModel) handleEvent(ev mesh.Event) {
	now := m.now()
	switch ev.Kind {
	case mesh.EventPeerJoined:
		m.notify(fmt.Sprintf("%s %s joined, connecting...", IconPeer, ev.Peer.Name), MutedStyle)
	case mesh.EventPeerLinked:
		m.notify(fmt.Sprintf("%s connected to %s", IconConnect, ev.Peer.Name), SuccessStyle)
	case mesh.EventPeerLeft:
		m.notify(fmt.Sprintf("%s %s left", IconPeer, ev.Peer.Name), WarningStyle)
	case mesh.EventChat:
		m.chat = append(m.chat, ev.Chat)
		if over := len(m.chat) - chat.DefaultLogSize; over > 0 {
			m.chat = m.chat[over:]
		}
	case mesh.EventTransfer:
		m.handleTransfer(ev, now)
	case mesh.EventRelayError:
		m.notify(fmt.Sprintf("relay: %v", ev.Err), ErrorStyle)
	case mesh.EventRelayLost:
		m.notify("lost connection to the relay; existing peers stay connected", ErrorStyle)
	}
	m.peers = m.opts.Peers()
}

func (m *RoomModel) handleTransfer(ev mesh.Event, now time.Time) {
	t := ev.Transfer
	key := transferKey{peerID: ev.Peer.ID, direction: t.Direction}

	row, ok := m.rows[key]
	if !ok || (t.Kind == transfer.EventOffer && row.finished()) || row.name != t.Name {
		row = newTransferRow(ev.Peer.Name, t, now)
		if !ok {
			m.order = append(m.order, key)
		}
		m.rows[key] = row
	}
	row.apply(t, now)

	switch t.Kind {
	case transfer.EventOffer:
		m.notify(fmt.Sprintf("%s %s offers %s (%s): /accept %s or /reject %s",
			IconFile, ev.Peer.Name, t.Name, utils.FormatSize(t.Size), ev.Peer.Name, ev.Peer.Name), WarningStyle)
	case transfer.EventCompleted:
		if t.Direction == transfer.Inbound {
			m.notify(fmt.Sprintf("saved %s", t.Path), SuccessStyle)
		} else {
			m.notify(fmt.Sprintf("sent %s to %s", t.Name, ev.Peer.Name), SuccessStyle)
		}
	case transfer.EventRejected:
		m.notify(fmt.Sprintf("%s declined %s", ev.Peer.Name, t.Name), WarningStyle)
	case transfer.EventFailed:
		m.notify(fmt.Sprintf("%s failed: %v", t.Name, t.Err), ErrorStyle)
	}
}

func (m *RoomModel) notify(text string, style lipgloss.Style) {
	m.notes = append(m.notes, notification{text: text, style: style, expires: m.now().Add(NotificationTTL)})
	if len(m.notes) > 5 {
		m.notes = m.notes[len(m.notes)-5:]
	}
}

func (m *RoomModel) expire(now time.Time) {
	kept := m.notes[:0]
	for _, n := range m.notes {
		if now.Before(n.expires) {
			kept = append(kept, n)
		}
	}
	m.notes = kept
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	linked := 0
	for _, p := range m.peers {
		if p.State == peer.Linked {
			linked++
		}
	}
	header := fmt.Sprintf("%s Room %s  %s %s  %d/%d peers connected",
		IconRoom, m.opts.RoomID, IconPeer, m.opts.SelfName, linked, len(m.peers))
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n")

	if m.showPeers {
		b.WriteString(PeerTableView(m.peers))
		b.WriteString("\n\n")
	}

	start := max(0, len(m.chat)-chatLines)
	if len(m.chat) == 0 {
		b.WriteString(MutedStyle.Render("No messages yet. Type to chat."))
		b.WriteString("\n")
	}
	for _, msg := range m.chat[start:] {
		name := PeerStyle.Render(msg.SenderName)
		if msg.Local {
			name = SelfStyle.Render(msg.SenderName)
		}
		b.WriteString(fmt.Sprintf("%s %s: %s\n", MutedStyle.Render(msg.SentAt.Format("15:04")), name, msg.Text))
	}

	if len(m.order) > 0 {
		b.WriteString("\n")
		now := m.now()
		for _, key := range m.order {
			b.WriteString(m.rows[key].view(now))
			b.WriteString("\n")
		}
	}

	if len(m.notes) > 0 {
		b.WriteString("\n")
		for _, n := range m.notes {
			b.WriteString(n.style.Render(n.text))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("/send <peer> <file>  /accept <peer>  /reject <peer>  /peers  /leave  ctrl+c quit"))
	return b.String()
}

// RunRoom runs the room screen until the user quits.
func RunRoom(opts RoomOptions) error {
	_, err := tea.NewProgram(NewRoomModel(opts)).Run()
	return err
}
