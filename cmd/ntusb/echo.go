package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/ntusb/internal/wslink"
)

func newEchoCmd(g *globalFlags) *cobra.Command {
	addr := wslink.DefaultEchoAddr

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a debug WebSocket server that logs handshakes and echoes messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := wslink.NewEchoServer(g.logger(false))
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", addr, "listen address")
	return cmd
}
