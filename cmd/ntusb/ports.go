package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/ntusb/internal/serial"
)

func newPortsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports seen by the operating system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.SystemLister{}.ListPorts()
			if err != nil {
				return fmt.Errorf("failed to list ports: %w", err)
			}
			if len(ports) == 0 {
				pterm.Warning.Println("no serial ports found")
				return nil
			}
			return pterm.DefaultTable.
				WithHasHeader().
				WithWriter(cmd.OutOrStdout()).
				WithData(portTable(ports)).
				Render()
		},
	}
}

// portTable renders ports as table rows; USB ports are the ones the master
// role can resolve.
func portTable(ports []serial.PortInfo) pterm.TableData {
	data := pterm.TableData{{"Name", "Kind", "VID:PID", "Serial", "Product"}}
	for _, p := range ports {
		ids := ""
		if p.VID != "" || p.PID != "" {
			ids = p.VID + ":" + p.PID
		}
		data = append(data, []string{p.Name, p.Kind.String(), ids, p.SerialNumber, p.Product})
	}
	return data
}
