package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/ntusb/internal/config"
	"github.com/1ureka/ntusb/internal/util"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
	debug      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "ntusb",
		Short: "Relay NetworkTables WebSocket traffic over a USB serial link",
		Long: `ntusb bridges a USB serial link and a NetworkTables WebSocket endpoint.

Run "ntusb master" on the machine that reaches the NetworkTables server and
"ntusb slave" on the device attached over USB. Both sides reconnect on their
own after an unplug, a refused handshake or a malformed frame.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "config file (default is ~/.ntusb/config.yaml)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file with NTUSB_ variables")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(g, config.RoleMaster),
		newRunCmd(g, config.RoleSlave),
		newPortsCmd(g),
		newEchoCmd(g),
		newVersionCmd(),
	)
	return root
}

// logger builds the process logger from the flags.
func (g *globalFlags) logger(debug bool) util.Logger {
	return util.NewLogger(nil, g.debug || debug)
}
