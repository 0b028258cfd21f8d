package conversationscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llmcli/streamchat/pkg/cliui"
)

func newListCmd(cmder *conversationsCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := cmder.store()
			defer store.Close()

			list, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No conversations yet."))
				return nil
			}

			fmt.Fprintln(out)
			for _, c := range list {
				fmt.Fprintf(out, "  %s  %s %s\n",
					cliui.HashStyle.Render(c.ID),
					cliui.NameStyle.Render(c.Title),
					cliui.DimStyle.Render(fmt.Sprintf("(%d messages, updated %s)", c.MessageCount, formatTime(c.UpdateTime))),
				)
				if c.Preview != "" {
					fmt.Fprintf(out, "      %s\n", cliui.DimStyle.Render(c.Preview))
				}
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
