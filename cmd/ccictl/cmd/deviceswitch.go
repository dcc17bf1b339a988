package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rocketbitz/cci-go/cci"
)

var deviceSwitchCmd = &cobra.Command{
	Use:   "device-switch",
	Short: "Enumerate devices and report which one a call would dispatch to",
	Long: `device-switch is the idiomatic-Go analogue of the teacher's
examples/provider_switch: it calls cci.Init, lists every device the
configured transports enumerate, and reports which device an
unqualified CreateEndpoint call would pick (the default device if one
is marked, else the highest-priority device) versus the device named by
--device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(); err != nil {
			return err
		}
		if err := cci.Init(cci.ABIVersion, 0); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		defer func() { _ = cci.Finalize() }()

		devices, err := cci.GetDevices()
		if err != nil {
			return fmt.Errorf("get_devices: %w", err)
		}
		if len(devices) == 0 {
			fmt.Println("no devices available")
			return nil
		}
		for _, d := range devices {
			status := "down"
			if d.Up {
				status = "up"
			}
			marker := ""
			if d.Default {
				marker = " default"
			}
			fmt.Printf("%-16s transport=%-8s priority=%-3d %s%s max_send_size=%d\n",
				d.Name, d.Transport, d.Priority, status, marker, d.MaxSendSize)
		}

		target := deviceName
		if target == "" {
			target = devices[0].Name
			for _, d := range devices {
				if d.Default {
					target = d.Name
					break
				}
			}
		}
		fmt.Printf("\nCreateEndpoint would dispatch to: %s\n", target)
		return nil
	},
}
