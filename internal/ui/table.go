package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/sharemesh/sharemesh/internal/mesh"
	"github.com/sharemesh/sharemesh/internal/peer"
	"github.com/sharemesh/sharemesh/internal/utils"
)

// PeerTableView renders the room members as a table.
func PeerTableView(peers []mesh.PeerInfo) string {
	if len(peers) == 0 {
		return MutedStyle.Render("No peers yet")
	}

	rows := make([][]string, 0, len(peers))
	for i, p := range peers {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			utils.TruncateString(p.Name, 30),
			peerStateLabel(p.State),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Peer", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func peerStateLabel(s peer.State) string {
	switch s {
	case peer.Linked:
		return "connected"
	case peer.Negotiating:
		return "connecting"
	default:
		return s.String()
	}
}

// RoomInfoView renders the banner shown after creating a room.
func RoomInfoView(roomID, joinCmd string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:  %s\n%s Join:     %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID),
		IconCopy, MutedStyle.Render(joinCmd),
	)

	return boxStyle.Render(content)
}
