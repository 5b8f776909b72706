// Package main is the operator command-line client for the inbox API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/whatsapp-inbox/internal/client"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inboxctl",
	Short: "Operate the WhatsApp inbox from the terminal",
	Long: `inboxctl talks to the inbox API as an operator.

Examples:
  # Mint a development token
  inboxctl token --tenant demo --operator carla

  # Work a conversation
  inboxctl list --unread
  inboxctl ai off <conversation-id>
  inboxctl send <conversation-id> "Oi, aqui é a Carla"
  inboxctl resolve <conversation-id>`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", envOr("INBOX_URL", "http://localhost:8080"), "Inbox API base URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("INBOX_TOKEN"), "Bearer token (or INBOX_TOKEN)")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(aiCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(inboundCmd)
	rootCmd.AddCommand(eventsCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func apiClient(cmd *cobra.Command) (*client.Client, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		return nil, fmt.Errorf("no token: pass --token or set INBOX_TOKEN")
	}
	return client.New(server, token), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
