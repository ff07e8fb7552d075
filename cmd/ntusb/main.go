// Command ntusb is the CLI entry point.
//
// ntusb relays NetworkTables WebSocket traffic over a USB serial link. The
// master role runs next to the NetworkTables server and finds the USB device
// by enumeration; the slave role runs on the embedded device and uses the
// fixed USB gadget port.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}
