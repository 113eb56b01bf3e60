package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/safetransit/safetransit/internal/log"
	"github.com/safetransit/safetransit/internal/report"
	"github.com/safetransit/safetransit/internal/stops"
	"github.com/safetransit/safetransit/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sentMessage is one sendMessage call recorded by the fake API.
type sentMessage struct {
	ChatID      int64           `json:"chat_id"`
	Text        string          `json:"text"`
	ReplyMarkup json.RawMessage `json:"reply_markup"`
}

// fakeAPI is an in-process Bot API server. Queued updates are drained one
// batch per getUpdates call.
type fakeAPI struct {
	mu      sync.Mutex
	updates [][]Update
	sent    []sentMessage
	server  *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	writeResult := func(result any) {
		raw, _ := json.Marshal(result)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": json.RawMessage(raw)})
	}

	switch method {
	case "getMe":
		writeResult(User{ID: 42, Username: "safetransit_test_bot"})
	case "getUpdates":
		f.mu.Lock()
		var batch []Update
		if len(f.updates) > 0 {
			batch = f.updates[0]
			f.updates = f.updates[1:]
		}
		f.mu.Unlock()
		if batch == nil {
			batch = []Update{}
		}
		writeResult(batch)
	case "sendMessage":
		var msg sentMessage
		_ = json.NewDecoder(r.Body).Decode(&msg)
		f.mu.Lock()
		f.sent = append(f.sent, msg)
		f.mu.Unlock()
		writeResult(Message{MessageID: 1})
	default:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 404, "description": "method not found",
		})
	}
}

func (f *fakeAPI) queue(updates ...Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, updates)
}

func (f *fakeAPI) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeAPI) lastMessage(t *testing.T) sentMessage {
	t.Helper()
	msgs := f.sentMessages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func newTestBot(t *testing.T, api *fakeAPI, store *storage.Memory) *Bot {
	t.Helper()

	client, err := NewClient("test-token", WithAPIBase(api.server.URL))
	require.NoError(t, err)

	sessions, err := report.NewSessions(report.SessionsConfig{
		Registry: stops.Default(),
		Sink:     store,
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)

	bot, err := NewBot(BotConfig{
		Client:      client,
		Sessions:    sessions,
		Store:       store,
		Advisor:     stubAdvisor{},
		Logger:      log.NewNop(),
		PollTimeout: time.Millisecond,
	})
	require.NoError(t, err)
	return bot
}

type stubAdvisor struct {
	text string
	err  error
}

func (a stubAdvisor) EmergencyGuidance(context.Context) (string, error) {
	return a.text, a.err
}

func textUpdate(id, chatID int64, text string) Update {
	return Update{
		UpdateID: id,
		Message:  &Message{MessageID: id, Text: text, Chat: Chat{ID: chatID}},
	}
}

func TestClientGetMe(t *testing.T) {
	api := newFakeAPI(t)
	client, err := NewClient("test-token", WithAPIBase(api.server.URL))
	require.NoError(t, err)

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), me.ID)
	assert.Equal(t, "safetransit_test_bot", me.Username)
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 401, "description": "Unauthorized",
		})
	}))
	defer server.Close()

	client, err := NewClient("bad-token", WithAPIBase(server.URL))
	require.NoError(t, err)

	_, err = client.GetMe(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Code)
	assert.Equal(t, "Unauthorized", apiErr.Description)
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
}

// deadlineRecorder captures per-method request deadlines before delegating.
type deadlineRecorder struct {
	mu        sync.Mutex
	deadlines map[string]time.Duration
}

func (d *deadlineRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	method := req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:]
	if deadline, ok := req.Context().Deadline(); ok {
		d.mu.Lock()
		d.deadlines[method] = time.Until(deadline)
		d.mu.Unlock()
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestRequestDeadlinesCoverPollTimeout(t *testing.T) {
	api := newFakeAPI(t)
	rec := &deadlineRecorder{deadlines: make(map[string]time.Duration)}
	client, err := NewClient("test-token",
		WithAPIBase(api.server.URL),
		WithHTTPClient(&http.Client{Transport: rec}),
	)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.GetMe(ctx)
	require.NoError(t, err)

	// The longest poll duration the configuration accepts (300s) must fit
	// inside the getUpdates deadline, or every idle poll aborts client-side.
	const pollTimeout = 300 * time.Second
	_, err = client.GetUpdates(ctx, 0, pollTimeout)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	require.Contains(t, rec.deadlines, "getUpdates")
	assert.Greater(t, rec.deadlines["getUpdates"], pollTimeout,
		"getUpdates deadline must outlast the server-side hold")

	require.Contains(t, rec.deadlines, "getMe")
	assert.LessOrEqual(t, rec.deadlines["getMe"], callTimeout)
	assert.Positive(t, rec.deadlines["getMe"])
}

func TestHandleStart(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api, storage.NewMemory())

	bot.handleUpdate(context.Background(), textUpdate(1, 100, "/start"))

	msg := api.lastMessage(t)
	assert.Equal(t, int64(100), msg.ChatID)
	assert.Contains(t, msg.Text, "Welcome to SafeTransit Padova")
	assert.Contains(t, msg.Text, "/report")
}

func TestReportFlow(t *testing.T) {
	api := newFakeAPI(t)
	store := storage.NewMemory()
	bot := newTestBot(t, api, store)
	ctx := context.Background()

	bot.handleUpdate(ctx, textUpdate(1, 100, "/report"))
	msg := api.lastMessage(t)
	assert.Contains(t, msg.Text, "select your location")

	var markup ReplyKeyboardMarkup
	require.NoError(t, json.Unmarshal(msg.ReplyMarkup, &markup))
	assert.True(t, markup.OneTimeKeyboard)
	require.NotEmpty(t, markup.Keyboard)
	assert.Len(t, markup.Keyboard[0], 1, "options are laid out one per row")

	for i, input := range []string{"Stazione FS", "High", "Poor Lighting", "dark platform"} {
		bot.handleUpdate(ctx, textUpdate(int64(2+i), 100, input))
	}

	msg = api.lastMessage(t)
	assert.Contains(t, msg.Text, "✅ Report submitted successfully!")
	assert.Contains(t, msg.Text, "📍 Location: Stazione FS")
	assert.Contains(t, msg.Text, "⭐ Safety Score: 3.0/5.0")

	var remove ReplyKeyboardRemove
	require.NoError(t, json.Unmarshal(msg.ReplyMarkup, &remove))
	assert.True(t, remove.RemoveKeyboard)

	require.Equal(t, 1, store.Len())
}

func TestReportRejectionRepeatsPrompt(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api, storage.NewMemory())
	ctx := context.Background()

	bot.handleUpdate(ctx, textUpdate(1, 100, "/report"))
	bot.handleUpdate(ctx, textUpdate(2, 100, "Narnia"))

	msg := api.lastMessage(t)
	assert.Contains(t, msg.Text, "❌")

	var markup ReplyKeyboardMarkup
	require.NoError(t, json.Unmarshal(msg.ReplyMarkup, &markup))
	assert.NotEmpty(t, markup.Keyboard, "re-prompt keeps the keyboard")
}

func TestCancel(t *testing.T) {
	api := newFakeAPI(t)
	store := storage.NewMemory()
	bot := newTestBot(t, api, store)
	ctx := context.Background()

	bot.handleUpdate(ctx, textUpdate(1, 100, "/report"))
	bot.handleUpdate(ctx, textUpdate(2, 100, "Stazione FS"))
	bot.handleUpdate(ctx, textUpdate(3, 100, "/cancel"))

	assert.Contains(t, api.lastMessage(t).Text, "Report cancelled")
	assert.Zero(t, store.Len())

	bot.handleUpdate(ctx, textUpdate(4, 100, "/cancel"))
	assert.Contains(t, api.lastMessage(t).Text, "No report in progress")
}

func TestChatIsolation(t *testing.T) {
	api := newFakeAPI(t)
	store := storage.NewMemory()
	bot := newTestBot(t, api, store)
	ctx := context.Background()

	bot.handleUpdate(ctx, textUpdate(1, 100, "/report"))
	bot.handleUpdate(ctx, textUpdate(2, 200, "/report"))
	bot.handleUpdate(ctx, textUpdate(3, 100, "Stazione FS"))
	bot.handleUpdate(ctx, textUpdate(4, 200, "/cancel"))

	// Chat 100 continues unaffected by chat 200's cancel.
	for i, input := range []string{"Low", "None", "none"} {
		bot.handleUpdate(ctx, textUpdate(int64(5+i), 100, input))
	}

	assert.Contains(t, api.lastMessage(t).Text, "✅ Report submitted successfully!")
	assert.Equal(t, 1, store.Len())
}

func TestStatusCommand(t *testing.T) {
	api := newFakeAPI(t)
	store := storage.NewMemory()
	bot := newTestBot(t, api, store)
	ctx := context.Background()

	bot.handleUpdate(ctx, textUpdate(1, 100, "/status"))
	assert.Contains(t, api.lastMessage(t).Text, "No reports yet")

	for i, input := range []string{"/report", "Ospedale", "Medium", "None", "none"} {
		bot.handleUpdate(ctx, textUpdate(int64(2+i), 100, input))
	}

	bot.handleUpdate(ctx, textUpdate(10, 100, "/status"))
	msg := api.lastMessage(t)
	assert.Contains(t, msg.Text, "📍 Ospedale")
	assert.Contains(t, msg.Text, "⭐ Safety Score: 4.5/5.0")
}

func TestEmergencyCommand(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api, storage.NewMemory())

	bot.handleUpdate(context.Background(), textUpdate(1, 100, "/emergency"))
	assert.Contains(t, api.lastMessage(t).Text, "112")
}

func TestEmergencyUsesAdvisor(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api, storage.NewMemory())
	bot.advisor = stubAdvisor{text: "Alert the driver and stay calm."}

	bot.handleUpdate(context.Background(), textUpdate(1, 100, "/emergency"))
	assert.Equal(t, "Alert the driver and stay calm.", api.lastMessage(t).Text)
}

func TestCommandParsing(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "/start"},
		{"/REPORT", "/report"},
		{"/report@safetransit_bot", "/report"},
		{"/status now", "/status"},
		{"Stazione FS", ""},
		{"hello /report", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, command(tt.text), tt.text)
	}
}

func TestTextWithoutSessionStartsPromptless(t *testing.T) {
	api := newFakeAPI(t)
	bot := newTestBot(t, api, storage.NewMemory())

	// Free text without /report starts a session implicitly at the
	// location step; unknown text is rejected with the location prompt.
	bot.handleUpdate(context.Background(), textUpdate(1, 100, "hello there"))
	assert.Contains(t, api.lastMessage(t).Text, "❌")
}

func TestRunProcessesQueuedUpdates(t *testing.T) {
	api := newFakeAPI(t)
	store := storage.NewMemory()
	bot := newTestBot(t, api, store)

	api.queue(textUpdate(1, 100, "/report"))
	api.queue(
		textUpdate(2, 100, "Stazione FS"),
		textUpdate(3, 100, "Low"),
		textUpdate(4, 100, "None"),
		textUpdate(5, 100, "none"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.Len() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop after cancel")
	}

	assert.Equal(t, int64(6), bot.offset, "offset advances past the last update")
}

func TestRunFailsOnBadToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 401, "description": "Unauthorized",
		})
	}))
	defer server.Close()

	client, err := NewClient("bad-token", WithAPIBase(server.URL))
	require.NoError(t, err)

	store := storage.NewMemory()
	sessions, err := report.NewSessions(report.SessionsConfig{
		Registry: stops.Default(),
		Sink:     store,
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)

	bot, err := NewBot(BotConfig{
		Client:   client,
		Sessions: sessions,
		Store:    store,
		Advisor:  stubAdvisor{},
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)

	err = bot.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifying bot token")
}
