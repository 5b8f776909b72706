package main

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/whatsapp-inbox/internal/client"
	"github.com/capitalize-ai/whatsapp-inbox/internal/model"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		var opts client.ListOptions
		opts.Status, _ = cmd.Flags().GetString("status")
		opts.AssignedTo, _ = cmd.Flags().GetString("assigned-to")
		opts.Tags, _ = cmd.Flags().GetStringSlice("tag")
		opts.Unread, _ = cmd.Flags().GetBool("unread")
		opts.Favorite, _ = cmd.Flags().GetBool("favorite")
		opts.Page, _ = cmd.Flags().GetInt("page")
		opts.Limit, _ = cmd.Flags().GetInt("limit")

		page, err := c.ListConversations(cmd.Context(), opts)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCONTACT\tSTATUS\tAI\tUNREAD\tASSIGNED\tTAGS")
		for _, conv := range page.Items {
			ai := "off"
			if conv.AIEnabled {
				ai = "on"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				conv.ID, conv.Contact.Name, conv.Status, ai, conv.UnreadCount,
				conv.AssignedOperatorID, strings.Join(conv.Tags, ","))
		}
		fmt.Fprintf(w, "\npage %d/%d, %d total\n", page.Page, page.TotalPages, page.Total)
		return w.Flush()
	},
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Open a conversation and print its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		sel, err := c.Select(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		conv := sel.Conversation
		fmt.Fprintf(out, "%s (%s) status=%s ai=%v can_compose=%v\n\n",
			conv.Contact.Name, conv.Contact.PhoneNumber, conv.Status, conv.AIEnabled, sel.CanCompose)
		for _, m := range sel.Messages {
			content := m.Content
			if m.Deleted && m.DeleteScope == model.DeleteForEveryone {
				content = "(deleted)"
			}
			fmt.Fprintf(out, "[%s] %-8s %s\n", m.SentAt.Local().Format("02/01 15:04"), m.Sender, content)
		}
		if sel.Draft != "" {
			fmt.Fprintf(out, "\ndraft: %s\n", sel.Draft)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text>",
	Short: "Send a message as the operator",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		msg, err := c.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printJSON(cmd, msg)
	},
}

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		conv, err := c.MarkRead(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, conv)
	},
}

var aiCmd = &cobra.Command{
	Use:       "ai on|off|reply <conversation-id>",
	Short:     "Switch the AI or ask it to reply",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off", "reply"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}

		switch args[0] {
		case "on", "off":
			conv, err := c.SetAI(cmd.Context(), args[1], args[0] == "on")
			if err != nil {
				return err
			}
			return printJSON(cmd, conv)
		case "reply":
			msg, err := c.AIReply(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, msg)
		default:
			return fmt.Errorf("unknown ai action %q", args[0])
		}
	},
}

func lifecycleCmd(action model.LifecycleAction) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action) + " <conversation-id>",
		Short: "Request and confirm a " + string(action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			id := args[0]

			conf, err := c.RequestLifecycle(cmd.Context(), id, action)
			if err != nil {
				return err
			}

			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s conversation %s? [y/N] ", action, id)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
					if err := c.CancelLifecycle(cmd.Context(), id, conf.Token); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
					return nil
				}
			}

			conv, err := c.ConfirmLifecycle(cmd.Context(), id, conf.Token)
			if err != nil {
				return err
			}
			return printJSON(cmd, conv)
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Confirm without prompting")
	return cmd
}

var (
	resolveCmd = lifecycleCmd(model.LifecycleResolve)
	archiveCmd = lifecycleCmd(model.LifecycleArchive)
)

var assignCmd = &cobra.Command{
	Use:   "assign <conversation-id> <operator-id>",
	Short: "Assign a conversation to an operator",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		conv, err := c.Assign(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, conv)
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag <conversation-id> <tag>",
	Short: "Tag a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		conv, err := c.AddTag(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, conv)
	},
}

var noteCmd = &cobra.Command{
	Use:   "note <conversation-id> <text>",
	Short: "Add an internal note",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		note, err := c.AddNote(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printJSON(cmd, note)
	},
}

func init() {
	listCmd.Flags().String("status", "", "active, resolved or archived")
	listCmd.Flags().String("assigned-to", "", "Operator ID")
	listCmd.Flags().StringSlice("tag", nil, "Require tag (repeatable)")
	listCmd.Flags().Bool("unread", false, "Only conversations with unread messages")
	listCmd.Flags().Bool("favorite", false, "Only favorites")
	listCmd.Flags().Int("page", 1, "Page number")
	listCmd.Flags().Int("limit", 20, "Page size")
}
