// Command assistant-cli is an interactive terminal client for the assistant.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	var (
		addr      string
		sessionID string
		mode      string
	)

	cmd := &cobra.Command{
		Use:   "assistant-cli",
		Short: "Chat with the assistant from a terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				sessionID = "cli_" + uuid.New().String()[:8]
			}
			fmt.Printf("Connecting to %s as %s...\n", addr, sessionID)

			client, err := Dial(addr, sessionID, mode, os.Stdout)
			if err != nil {
				return err
			}
			defer client.Close()

			done := make(chan struct{})
			defer close(done)
			go client.keepalive(30*time.Second, done)

			readErr := make(chan error, 1)
			go func() { readErr <- client.ReadMessages() }()

			lines := make(chan string)
			go func() {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
				close(lines)
			}()

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)

			fmt.Println("Type a message and press Enter. /quit exits.")
			fmt.Print("> ")
			for {
				select {
				case <-interrupt:
					fmt.Println("\nInterrupted")
					return nil
				case err := <-readErr:
					return err
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					input := strings.TrimSpace(line)
					if input == "/quit" {
						fmt.Println("Bye!")
						return nil
					}
					if err := client.Submit(input); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "ws://localhost:8080", "assistant base address")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to join; a new one is generated when empty")
	cmd.Flags().StringVar(&mode, "mode", "tool", "agent mode for a new session: tool or plan")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
