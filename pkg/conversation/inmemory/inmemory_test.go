package inmemory_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"

	"github.com/llmcli/streamchat/pkg/conversation"
	"github.com/llmcli/streamchat/pkg/conversation/inmemory"
	testutils "github.com/llmcli/streamchat/pkg/utils/test"
)

var _ = Describe("Driver", func() {
	testutils.ConversationStoreBehavior(func(now func() time.Time) conversation.Store {
		return inmemory.NewDriver(inmemory.WithClock(now))
	})
})
