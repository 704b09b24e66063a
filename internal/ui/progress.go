package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/sharemesh/sharemesh/internal/transfer"
	"github.com/sharemesh/sharemesh/internal/utils"
)

type transferKey struct {
	peerID    string
	direction transfer.Direction
}

// transferRow tracks one transfer for display.
type transferRow struct {
	peerName  string
	direction transfer.Direction
	name      string
	size      int64
	bytes     int64
	percent   float64
	started   time.Time
	state     transfer.EventKind
	errMsg    string
	bar       progress.Model
	updatedAt time.Time
}

func newTransferRow(peerName string, ev transfer.Event, now time.Time) *transferRow {
	return &transferRow{
		peerName:  peerName,
		direction: ev.Direction,
		name:      ev.Name,
		size:      ev.Size,
		state:     ev.Kind,
		updatedAt: now,
		bar: progress.New(
			progress.WithGradient(ProgressStart, ProgressEnd),
			progress.WithWidth(25),
			progress.WithoutPercentage(),
		),
	}
}

func (r *transferRow) apply(ev transfer.Event, now time.Time) {
	r.updatedAt = now
	r.state = ev.Kind
	switch ev.Kind {
	case transfer.EventProgress:
		// Timing starts with the first byte, not the offer.
		if r.started.IsZero() && ev.Bytes > 0 {
			r.started = now
		}
		r.bytes = ev.Bytes
		r.percent = ev.Percent
	case transfer.EventCompleted:
		r.bytes = ev.Size
		r.percent = 100
	case transfer.EventFailed, transfer.EventRejected:
		if ev.Err != nil {
			r.errMsg = ev.Err.Error()
		}
	}
}

func (r *transferRow) finished() bool {
	switch r.state {
	case transfer.EventCompleted, transfer.EventFailed, transfer.EventRejected:
		return true
	}
	return false
}

func (r *transferRow) view(now time.Time) string {
	var b strings.Builder

	icon, arrow := IconSend, "→"
	if r.direction == transfer.Inbound {
		icon, arrow = IconReceive, "←"
	}

	nameStyle := lipgloss.NewStyle()
	switch r.state {
	case transfer.EventCompleted:
		icon, nameStyle = IconSuccess, SuccessStyle
	case transfer.EventFailed, transfer.EventRejected:
		icon, nameStyle = IconError, ErrorStyle
	case transfer.EventOffer:
		icon, nameStyle = IconWaiting, MutedStyle
	}

	label := fmt.Sprintf("%s %s %s", utils.TruncateString(r.name, 22), arrow, utils.TruncateString(r.peerName, 16))
	b.WriteString(fmt.Sprintf("  %s %s ", icon, nameStyle.Width(44).Render(label)))
	b.WriteString(r.bar.ViewAs(r.percent / 100))
	b.WriteString(fmt.Sprintf(" %5.1f%%", r.percent))

	switch {
	case r.state == transfer.EventOffer && r.direction == transfer.Inbound:
		b.WriteString(MutedStyle.Render(fmt.Sprintf(" %s, waiting for /accept or /reject", utils.FormatSize(r.size))))
	case r.state == transfer.EventOffer:
		b.WriteString(MutedStyle.Render(" waiting for peer"))
	case r.errMsg != "":
		b.WriteString(ErrorStyle.Render(" " + utils.TruncateString(r.errMsg, 40)))
	case r.state == transfer.EventProgress && !r.started.IsZero():
		elapsed := now.Sub(r.started).Seconds()
		if elapsed > 0 {
			speed := float64(r.bytes) / elapsed
			b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(speed)))
			if remaining := r.size - r.bytes; remaining > 0 && speed > 0 {
				eta := time.Duration(float64(remaining) / speed * float64(time.Second))
				b.WriteString(MutedStyle.Render(" ETA: " + utils.FormatTimeDuration(eta)))
			}
		}
	}
	return b.String()
}
