package conversationscmder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/llmcli/streamchat/pkg/cliui"
	"github.com/llmcli/streamchat/pkg/conversation"
)

func newCreateCmd(cmder *conversationsCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "create [title]",
		Short: "Create an empty conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cmder.store()
			defer store.Close()

			title := ""
			if len(args) == 1 {
				title = strings.TrimSpace(args[0])
			}

			c, err := store.Create(cmd.Context(), title)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Created %s %s\n\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(c.Title),
				cliui.HashStyle.Render(c.ID),
			)
			return nil
		},
	}
}

func newRenameCmd(cmder *conversationsCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cmder.store()
			defer store.Close()

			title := strings.TrimSpace(args[1])
			if title == "" {
				return errors.New("title cannot be empty")
			}

			c, err := store.Update(cmd.Context(), args[0], conversation.Update{Title: &title})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Renamed %s to %s\n\n",
				cliui.SuccessMark,
				cliui.HashStyle.Render(c.ID),
				cliui.NameStyle.Render(c.Title),
			)
			return nil
		},
	}
}

func newDeleteCmd(cmder *conversationsCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cmder.store()
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Deleted %s\n\n",
				cliui.SuccessMark,
				cliui.HashStyle.Render(args[0]),
			)
			return nil
		},
	}
}
