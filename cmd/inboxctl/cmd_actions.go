package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/whatsapp-inbox/internal/middleware"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <conversation-id> <details>",
	Short: "Schedule a follow-up, reminder, task or message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		typ, _ := cmd.Flags().GetString("type")
		in, _ := cmd.Flags().GetDuration("in")
		at, _ := cmd.Flags().GetString("at")

		due := time.Now().Add(in)
		if at != "" {
			if due, err = time.Parse(time.RFC3339, at); err != nil {
				return fmt.Errorf("--at must be RFC 3339: %w", err)
			}
		}

		action, err := c.Schedule(cmd.Context(), args[0], model.ScheduleActionRequest{
			Type:    model.ActionType(typ),
			DueAt:   &due,
			Details: strings.Join(args[1:], " "),
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, action)
	},
}

var inboundCmd = &cobra.Command{
	Use:   "inbound <conversation-id> <text>",
	Short: "Inject a client message as the WhatsApp channel",
	Long:  "Inject a client message as the WhatsApp channel. The token needs the " + middleware.ScopeChannel + " scope.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("name")
		phone, _ := cmd.Flags().GetString("phone")

		result, err := c.Inbound(cmd.Context(), args[0], model.InboundMessageRequest{
			Content:     strings.Join(args[1:], " "),
			ContactName: name,
			PhoneNumber: phone,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <conversation-id>",
	Short: "Replay published conversation events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		after, _ := cmd.Flags().GetUint64("after")
		limit, _ := cmd.Flags().GetInt("limit")

		resp, err := c.Events(cmd.Context(), args[0], after, limit)
		if err != nil {
			return err
		}
		for _, ev := range resp.Events {
			fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s  %-16s %s %s\n",
				ev.Sequence, ev.CreatedAt.Local().Format(time.DateTime), ev.Type, ev.ActorID, ev.Reason)
		}
		if resp.HasMore {
			fmt.Fprintf(cmd.OutOrStdout(), "more: --after %d\n", resp.LastSequence)
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("type", string(model.ActionFollowup), "message, task, followup or reminder")
	scheduleCmd.Flags().Duration("in", 24*time.Hour, "Due after this delay")
	scheduleCmd.Flags().String("at", "", "Due at this RFC 3339 time (overrides --in)")

	inboundCmd.Flags().String("name", "", "Contact name")
	inboundCmd.Flags().String("phone", "", "Contact phone number")

	eventsCmd.Flags().Uint64("after", 0, "Only events after this stream sequence")
	eventsCmd.Flags().Int("limit", 50, "Maximum events")
}
