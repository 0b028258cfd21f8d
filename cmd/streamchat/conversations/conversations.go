// Package conversationscmder provides the conversations command for
// managing the conversations saved on a chat backend.
package conversationscmder

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmcli/streamchat/pkg/config"
	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/conversation/httpstore"
)

type conversationsCommander struct {
	apiTarget string
	timeout   time.Duration
}

const conversationsLongDesc string = `Manage the conversations saved on a chat backend.

Conversations are created by "streamchat chat --record" or explicitly with
"streamchat conversations create".

Examples:
  streamchat conversations list
  streamchat conversations create "Trip planning"
  streamchat conversations rename conv_123 "Paris trip"
  streamchat conversations messages conv_123
  streamchat conversations delete conv_123`

const conversationsShortDesc string = "Manage saved conversations"

func NewConversationsCmd() *cobra.Command {
	cmder := &conversationsCommander{}

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   conversationsShortDesc,
		Long:    conversationsLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Registry, []string{config.FlagAPITarget, config.FlagTimeout})

			cfg := config.FromViper(v)
			cmder.apiTarget = cfg.Client.APITarget
			cmder.timeout, err = time.ParseDuration(cfg.Client.Timeout)
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			return nil
		},
	}

	var apiTarget, timeout string
	cmd.PersistentFlags().StringVarP(&apiTarget, "api-target", "a", config.NewDefaultConfig().Client.APITarget, config.Registry[config.FlagAPITarget].Description)
	cmd.PersistentFlags().StringVar(&timeout, "timeout", config.NewDefaultConfig().Client.Timeout, config.Registry[config.FlagTimeout].Description)

	cmd.AddCommand(newListCmd(cmder))
	cmd.AddCommand(newCreateCmd(cmder))
	cmd.AddCommand(newRenameCmd(cmder))
	cmd.AddCommand(newDeleteCmd(cmder))
	cmd.AddCommand(newMessagesCmd(cmder))

	return cmd
}

func (c *conversationsCommander) store() conversation.Store {
	return httpstore.New(c.apiTarget, httpstore.WithHTTPClient(&http.Client{Timeout: c.timeout}))
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).Local().Format(time.DateTime)
}
