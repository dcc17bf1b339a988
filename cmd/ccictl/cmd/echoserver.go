package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rocketbitz/cci-go/client"
)

var (
	echoServerPort string
)

var echoServerCmd = &cobra.Command{
	Use:   "echo-server",
	Short: "Accept connections and echo every RECV back as a SEND",
	Long: `echo-server is the idiomatic-Go analogue of the server half of the
teacher's examples/msg_basic: it opens an endpoint bound to --port,
accepts connections, and echoes each received message back to its
sender until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(); err != nil {
			return err
		}
		l, err := client.Listen(client.ListenerConfig{
			Device:           deviceName,
			Service:          echoServerPort,
			StructuredLogger: client.NewZapLogger(logger),
		})
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		defer func() { _ = l.Close() }()

		addr, err := l.Addr()
		if err != nil {
			return fmt.Errorf("addr: %w", err)
		}
		fmt.Printf("echo-server listening on %s\n", addr)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for {
			c, err := l.Accept(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Sugar().Warnw("accept failed", "error", err)
				continue
			}
			go echoLoop(ctx, c)
		}
	},
}

func echoLoop(ctx context.Context, c *client.Client) {
	defer func() { _ = c.Close() }()
	for {
		rc, err := c.Receive(ctx)
		if err != nil {
			return
		}
		if rc.Err != nil {
			continue
		}
		if err := c.Send(ctx, rc.Data); err != nil {
			logger.Sugar().Warnw("echo send failed", "error", err)
			return
		}
	}
}

func init() {
	echoServerCmd.Flags().StringVar(&echoServerPort, "port", "9901", "UDP port to bind")
}
