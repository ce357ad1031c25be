package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LLIEPJIOK/service-mesh/relay/pkg/ws"
)

func chatCmd() *cobra.Command {
	var (
		url      string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a relay as an interactive client",
		Long: `Join a relay as an interactive client.

Every line read from stdin is sent as a text message; every message
relayed by the server is printed to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}

			cfg := ws.DefaultClientConfig(url)
			cfg.Logger = logger

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runChat(ctx, ws.NewClient(cfg), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "ws://localhost"+ws.DefaultAddr+ws.SocketPath, "Relay WebSocket URL")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	return cmd
}

func runChat(ctx context.Context, client *ws.Client, in io.Reader, out io.Writer) error {
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	messages := client.Messages()
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-messages:
			if !ok {
				return ws.ErrConnectionClosed
			}

			switch frame.Opcode {
			case ws.OpText:
				fmt.Fprintln(out, string(frame.Payload))
			default:
				fmt.Fprintf(out, "<%s message, %d bytes>\n", frame.Opcode, len(frame.Payload))
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}

			if err := client.Send(line); err != nil {
				return err
			}
		}
	}
}
