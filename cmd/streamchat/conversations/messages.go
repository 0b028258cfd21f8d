package conversationscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llmcli/streamchat/pkg/cliui"
)

func newMessagesCmd(cmder *conversationsCommander) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "messages <id>",
		Short: "Show the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cmder.store()
			defer store.Close()

			msgs, err := store.Messages(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No messages."))
				return nil
			}

			width := cliui.Width(out) - 32
			fmt.Fprintln(out)
			for _, m := range msgs {
				content := m.Content
				if !full {
					content = cliui.TruncateLine(content, width)
				}
				fmt.Fprintf(out, "  %s %s %s\n",
					cliui.DimStyle.Render(formatTime(m.Timestamp)),
					cliui.KeyStyle.Render(fmt.Sprintf("%-9s", m.Role)),
					content,
				)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print whole messages instead of one line each")

	return cmd
}
