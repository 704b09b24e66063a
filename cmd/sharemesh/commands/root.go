package commands

import (
	"context"
	"os"
	"os/signal"

	"github.com/sharemesh/sharemesh/internal/config"
	"github.com/sharemesh/sharemesh/internal/transfer"
	"github.com/sharemesh/sharemesh/internal/ui"
	"github.com/sharemesh/sharemesh/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagRelayURL   string
	flagSTUN       string
	flagTURN       string
	flagTURNUser   string
	flagTURNPass   string
	flagForceRelay bool
	flagOutputDir  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sharemesh",
	Short: "Peer-to-peer rooms for chat and file sharing over WebRTC",
	Long: `ShareMesh connects everyone in a room directly over WebRTC. Messages are
broadcast to every peer, and files are offered to one peer at a time and only
sent once they accept. A small relay introduces peers; file data never passes
through it.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagRelayURL, "relay", "", "Relay websocket URL (env SHAREMESH_RELAY)")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL (env STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host or URL (env TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	pf.BoolVar(&flagForceRelay, "force-relay", false, "Only use TURN relay candidates")
	pf.StringVarP(&flagOutputDir, "output", "o", "", "Directory for received files (env SHAREMESH_OUTPUT_DIR)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		RelayURL:   flagRelayURL,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagForceRelay,
		OutputDir:  flagOutputDir,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}
