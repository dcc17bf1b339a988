package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rocketbitz/cci-go/cci"
	"github.com/rocketbitz/cci-go/client"
)

var (
	echoClientServer string
	echoClientCount  int
	echoClientAttr   string
	echoClientSize   int
)

var echoClientCmd = &cobra.Command{
	Use:   "echo-client",
	Short: "Connect to an echo-server and round-trip a run of messages",
	Long: `echo-client is the idiomatic-Go analogue of the client half of the
teacher's examples/msg_basic and mirrors spec.md §8 scenario 1: it sends
--count messages of --size bytes (payload i.to_be_bytes() ++ zeros) and
confirms every one echoes back byte-identical.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(); err != nil {
			return err
		}
		attr, err := parseAttribute(echoClientAttr)
		if err != nil {
			return err
		}

		c, err := client.Dial(client.Config{
			Device:           deviceName,
			ServerURI:        echoClientServer,
			Attribute:        attr,
			Timeout:          5 * time.Second,
			StructuredLogger: client.NewZapLogger(logger),
		})
		if err != nil {
			return fmt.Errorf("dial %s: %w", echoClientServer, err)
		}
		defer func() { _ = c.Close() }()

		ctx := context.Background()
		ok := 0
		for i := 0; i < echoClientCount; i++ {
			msg := make([]byte, echoClientSize)
			binary.BigEndian.PutUint32(msg, uint32(i))

			if err := c.Send(ctx, msg); err != nil {
				fmt.Printf("send %d: %v\n", i, err)
				continue
			}
			rc, err := c.Receive(ctx)
			if err != nil {
				fmt.Printf("recv %d: %v\n", i, err)
				continue
			}
			if rc.Err != nil {
				fmt.Printf("recv %d: %v\n", i, rc.Err)
				continue
			}
			if string(rc.Data) != string(msg) {
				fmt.Printf("recv %d: echo mismatch\n", i)
				continue
			}
			ok++
		}
		fmt.Printf("%d/%d messages echoed correctly\n", ok, echoClientCount)
		if ok != echoClientCount {
			return fmt.Errorf("%d messages failed to round-trip", echoClientCount-ok)
		}
		return nil
	},
}

func parseAttribute(s string) (cci.Attribute, error) {
	switch s {
	case "ro":
		return cci.AttrRO, nil
	case "ru":
		return cci.AttrRU, nil
	case "uu":
		return cci.AttrUU, nil
	default:
		return 0, fmt.Errorf("unknown attribute %q (want ro, ru, or uu)", s)
	}
}

func init() {
	echoClientCmd.Flags().StringVar(&echoClientServer, "server", "", "server URI, e.g. udp://127.0.0.1:9901")
	echoClientCmd.Flags().IntVar(&echoClientCount, "count", 1000, "number of messages to send")
	echoClientCmd.Flags().IntVar(&echoClientSize, "size", 128, "message size in bytes")
	echoClientCmd.Flags().StringVar(&echoClientAttr, "attr", "ru", "connection attribute: ro, ru, or uu")
	_ = echoClientCmd.MarkFlagRequired("server")
}
