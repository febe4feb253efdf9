package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/internal/relay"
	kit "relaybot/internal/transport"
	"relaybot/internal/transport/telegram/adapter"
	logx "relaybot/pkg/logx"
)

const testToken = "123:abc"

type botAPI struct {
	mu     sync.Mutex
	calls  []string
	params map[string]map[string]any
	fail   map[string]bool
}

// newBotAPI serves a Bot API that accepts every call and records its params.
func newBotAPI(t *testing.T) (*botAPI, *adapter.Adapter) {
	t.Helper()
	api := &botAPI{params: map[string]map[string]any{}, fail: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/bot"+testToken+"/")
		p := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&p)

		api.mu.Lock()
		api.calls = append(api.calls, method)
		api.params[method] = p
		fail := api.fail[method]
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case fail:
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: CHAT_WRITE_FORBIDDEN"}`))
		case method == "sendMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":501,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`))
		case method == "copyMessage":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":502}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(srv.Close)

	a, err := adapter.New(adapter.Config{
		Token:             testToken,
		APIURL:            srv.URL,
		RequestsPerSecond: -1,
		Offline:           true,
	}, logx.Nop())
	require.NoError(t, err)
	return api, a
}

func (b *botAPI) methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *botAPI) param(method, key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := b.params[method][key]
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.0f", f)
	}
	return fmt.Sprint(v)
}

func newCleaner(t *testing.T, find, replace string) (*botAPI, *LiveCleaner) {
	t.Helper()
	api, a := newBotAPI(t)
	c := NewLiveCleaner(a, relay.NewSettings(relay.TextRule{}), logx.Nop())
	c.settings.SetFindReplace(find, replace)
	c.SetEnabled(true)
	return api, c
}

var topic = kit.ChatTarget{ChatID: -100, ThreadID: 4}

func TestLiveCleanRepostsMediaWithCaption(t *testing.T) {
	api, c := newCleaner(t, "@promo", "-")

	err := c.Handle(context.Background(), kit.IncomingMessage{
		Chat: topic, ID: 7, Text: "pic by @Promo", HasMedia: true, Group: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"copyMessage", "deleteMessage"}, api.methods())
	assert.Equal(t, "-100", api.param("copyMessage", "chat_id"))
	assert.Equal(t, "-100", api.param("copyMessage", "from_chat_id"))
	assert.Equal(t, "4", api.param("copyMessage", "message_thread_id"))
	assert.Equal(t, "7", api.param("copyMessage", "message_id"))
	assert.Equal(t, "pic by ", api.param("copyMessage", "caption"))
	assert.Equal(t, "7", api.param("deleteMessage", "message_id"))
}

func TestLiveCleanResendsText(t *testing.T) {
	api, c := newCleaner(t, "@old", "@new")

	err := c.Handle(context.Background(), kit.IncomingMessage{
		Chat: topic, ID: 8, Text: "follow @old", Group: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"sendMessage", "deleteMessage"}, api.methods())
	assert.Equal(t, "follow @new", api.param("sendMessage", "text"))
	assert.Equal(t, "4", api.param("sendMessage", "message_thread_id"))
	assert.Equal(t, "8", api.param("deleteMessage", "message_id"))
}

func TestLiveCleanSkips(t *testing.T) {
	cases := []struct {
		name string
		msg  kit.IncomingMessage
		off  bool
	}{
		{name: "disabled", msg: kit.IncomingMessage{Chat: topic, ID: 1, Text: "@promo", Group: true}, off: true},
		{name: "private chat", msg: kit.IncomingMessage{Chat: kit.ChatTarget{ChatID: 42}, ID: 1, Text: "hi @promo"}},
		{name: "no match", msg: kit.IncomingMessage{Chat: topic, ID: 1, Text: "nothing", Group: true}},
		{name: "empty after cleaning", msg: kit.IncomingMessage{Chat: topic, ID: 1, Text: "@promo", Group: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api, c := newCleaner(t, "@promo", "-")
			c.SetEnabled(!tc.off)
			require.NoError(t, c.Handle(context.Background(), tc.msg))
			assert.Empty(t, api.methods())
		})
	}
}

func TestLiveCleanKeepsOriginalWhenRepostFails(t *testing.T) {
	api, c := newCleaner(t, "@promo", "-")
	api.mu.Lock()
	api.fail["copyMessage"] = true
	api.mu.Unlock()

	err := c.Handle(context.Background(), kit.IncomingMessage{
		Chat: topic, ID: 9, Text: "@promo pic", HasMedia: true, Group: true,
	})
	require.Error(t, err)
	assert.Equal(t, []string{"copyMessage"}, api.methods())
}

func TestHandlerRecoversPanics(t *testing.T) {
	h := Chain(func(context.Context, kit.IncomingMessage) error {
		panic("boom")
	}, MWPanicRecover(logx.Nop()))
	err := h(context.Background(), kit.IncomingMessage{ID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	var deadline bool
	h = Chain(func(ctx context.Context, _ kit.IncomingMessage) error {
		_, deadline = ctx.Deadline()
		return errors.New("done")
	}, MWTimeout(handleTimeout))
	require.Error(t, h(context.Background(), kit.IncomingMessage{}))
	assert.True(t, deadline)
}
