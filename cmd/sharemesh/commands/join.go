package commands

import (
	"context"
	"strings"

	"github.com/sharemesh/sharemesh/internal/mesh"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-id>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join a room by id and link with everyone already in it.

Examples:
  sharemesh join AEJ257
  sharemesh join --force-relay --turn turn.example.com AEJ257`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID := normalizeRoomID(args[0])
		return runRoom(cmd.Context(), false, func(ctx context.Context, n *mesh.Node) (string, error) {
			return roomID, n.JoinRoom(ctx, roomID)
		})
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

// normalizeRoomID accepts ids typed in lower case or with stray spaces.
func normalizeRoomID(id string) string {
	return strings.ToUpper(strings.Join(strings.Fields(id), ""))
}
