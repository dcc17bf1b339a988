// Command ccictl is a small operator-facing CLI over cci/ and client/,
// the idiomatic-Go analogue of the teacher's examples/ programs
// (client_basic, msg_basic, rma_basic, provider_switch) reworked as
// cobra subcommands instead of standalone mains.
package main

import (
	"os"

	"github.com/rocketbitz/cci-go/cmd/ccictl/cmd"

	// Registers the "udp" transport with cci's device registry via its
	// init() side effect. A real deployment would import every transport
	// it wants available; ccictl only ships the reference one.
	_ "github.com/rocketbitz/cci-go/transport/udp"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
