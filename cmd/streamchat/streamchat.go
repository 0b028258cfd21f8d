// Package streamchatcmder
package streamchatcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/llmcli/streamchat/cmd/streamchat/chat"
	configcmder "github.com/llmcli/streamchat/cmd/streamchat/config"
	conversationscmder "github.com/llmcli/streamchat/cmd/streamchat/conversations"
	servecmder "github.com/llmcli/streamchat/cmd/streamchat/serve"
	versioncmder "github.com/llmcli/streamchat/cmd/version"
)

const streamchatLongDesc string = `streamchat is a terminal chat client for streaming chat backends.

Replies arrive as a stream of typed records (thinking, tool calls, content)
which are assembled into a live transcript.

Get started using:
  streamchat serve           Run the mock chat backend
  streamchat chat            Chat with a backend
  streamchat conversations   Manage saved conversations
  streamchat config          Manage persistent configuration`

const streamchatShortDesc string = "streamchat - streaming chat client"

func NewStreamchatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "streamchat",
		Short:        streamchatShortDesc,
		Long:         streamchatLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .streamchat/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(conversationscmder.NewConversationsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
