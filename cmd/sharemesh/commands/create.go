package commands

import (
	"context"

	"github.com/sharemesh/sharemesh/internal/mesh"
	"github.com/spf13/cobra"
)

// DefaultCapacity is the room size used when --capacity is not given.
const DefaultCapacity = 2

var flagCapacity int

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for peers",
	Long: `Create a new room on the relay and enter it. Share the printed room id
with the people you want to talk to.

Examples:
  sharemesh create
  sharemesh create --capacity 5
  sharemesh create --relay wss://relay.example.com/ws -o ~/Downloads`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoom(cmd.Context(), true, func(ctx context.Context, n *mesh.Node) (string, error) {
			return n.CreateRoom(ctx, flagCapacity)
		})
	},
}

func init() {
	createCmd.Flags().IntVarP(&flagCapacity, "capacity", "n", DefaultCapacity, "Maximum number of peers in the room")
	rootCmd.AddCommand(createCmd)
}
