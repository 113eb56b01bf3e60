package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/safetransit/safetransit/internal/report"
	"github.com/safetransit/safetransit/internal/storage"
)

// DefaultPollTimeout is the long-poll duration for getUpdates.
const DefaultPollTimeout = 30 * time.Second

// actorPrefix namespaces bot chat IDs in the shared session manager.
const actorPrefix = "tg:"

// StatusStore is the read side the /status command consumes.
type StatusStore interface {
	StopStatus(ctx context.Context) ([]storage.StopStatus, error)
}

// Advisor supplies best-effort guidance for the /emergency command.
type Advisor interface {
	EmergencyGuidance(ctx context.Context) (string, error)
}

// BotConfig contains configuration for creating a Bot.
type BotConfig struct {
	Client      *Client          // Required
	Sessions    *report.Sessions // Required
	Store       StatusStore      // Required
	Advisor     Advisor          // Required: use analysis.Noop{} when AI is disabled
	Logger      *slog.Logger     // Optional: nil uses slog.Default()
	PollTimeout time.Duration    // Optional: 0 uses DefaultPollTimeout
}

// Bot runs the Telegram intake loop.
type Bot struct {
	client      *Client
	sessions    *report.Sessions
	store       StatusStore
	advisor     Advisor
	logger      *slog.Logger
	pollTimeout time.Duration
	offset      int64
}

// NewBot creates a bot.
func NewBot(cfg BotConfig) (*Bot, error) {
	if cfg.Client == nil {
		return nil, errors.New("telegram client is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("sessions manager is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("status store is required")
	}
	if cfg.Advisor == nil {
		return nil, errors.New("advisor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	return &Bot{
		client:      cfg.Client,
		sessions:    cfg.Sessions,
		store:       cfg.Store,
		advisor:     cfg.Advisor,
		logger:      logger,
		pollTimeout: pollTimeout,
	}, nil
}

// Run polls for updates until ctx is cancelled. It returns nil on clean
// shutdown and an error only when the token fails verification.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot token: %w", err)
	}
	b.logger.Info("telegram bot started", "username", me.Username, "id", me.ID)

	for {
		updates, err := b.client.GetUpdates(ctx, b.offset, b.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				b.logger.Info("telegram bot stopped")
				return nil
			}
			b.logger.Warn("getUpdates failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			b.handleUpdate(ctx, u)
		}
	}
}

// handleUpdate dispatches one update. Errors are logged, never fatal: a
// single bad message must not stop the poll loop.
func (b *Bot) handleUpdate(ctx context.Context, u Update) {
	if u.Message == nil || u.Message.Text == "" {
		return
	}

	chatID := u.Message.Chat.ID
	text := strings.TrimSpace(u.Message.Text)

	var err error
	switch command(text) {
	case "/start":
		err = b.handleStart(ctx, chatID)
	case "/help":
		err = b.handleHelp(ctx, chatID)
	case "/report":
		err = b.handleReport(ctx, chatID)
	case "/cancel":
		err = b.handleCancel(ctx, chatID)
	case "/status":
		err = b.handleStatus(ctx, chatID)
	case "/emergency":
		err = b.handleEmergency(ctx, chatID)
	default:
		err = b.handleInput(ctx, chatID, text)
	}

	if err != nil {
		b.logger.Error("failed to handle update",
			"chat_id", chatID,
			"update_id", u.UpdateID,
			"error", err,
		)
	}
}

// command extracts the leading bot command, stripping an @BotName suffix.
// Non-command text returns "".
func command(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd)
}

func actor(chatID int64) string {
	return fmt.Sprintf("%s%d", actorPrefix, chatID)
}

const welcomeText = `👋 Welcome to SafeTransit Padova!

I collect transit safety reports and share stop conditions.

/report - Submit a safety report
/status - Current stop conditions
/emergency - Emergency guidance
/cancel - Cancel an in-progress report
/help - Show this message`

func (b *Bot) handleStart(ctx context.Context, chatID int64) error {
	return b.client.SendMessage(ctx, chatID, welcomeText, nil)
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64) error {
	return b.client.SendMessage(ctx, chatID, welcomeText, nil)
}

func (b *Bot) handleReport(ctx context.Context, chatID int64) error {
	reply := b.sessions.Begin(actor(chatID))
	return b.sendReply(ctx, chatID, reply)
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) error {
	if b.sessions.Cancel(actor(chatID)) {
		return b.client.SendMessage(ctx, chatID, "Report cancelled. Nothing was submitted.", ReplyKeyboardRemove{RemoveKeyboard: true})
	}
	return b.client.SendMessage(ctx, chatID, "No report in progress.", nil)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) error {
	statuses, err := b.store.StopStatus(ctx)
	if err != nil {
		b.logger.Error("stop status query failed", "error", err)
		return b.client.SendMessage(ctx, chatID, "Stop status is unavailable right now, please try again later.", nil)
	}
	if len(statuses) == 0 {
		return b.client.SendMessage(ctx, chatID, "No reports yet. Be the first: /report", nil)
	}

	var sb strings.Builder
	sb.WriteString("📊 Current stop conditions:\n")
	for _, st := range statuses {
		fmt.Fprintf(&sb, "\n📍 %s\n👥 Crowd: %s\n⭐ Safety Score: %.1f/5.0\n",
			st.Location, st.CrowdLevel, st.SafetyScore)
	}
	return b.client.SendMessage(ctx, chatID, sb.String(), nil)
}

const emergencyFallback = `🚨 In an emergency call 112 immediately.

Move to a well-lit, populated area and alert transit staff if possible.`

func (b *Bot) handleEmergency(ctx context.Context, chatID int64) error {
	text, err := b.advisor.EmergencyGuidance(ctx)
	if err != nil {
		b.logger.Warn("emergency guidance unavailable", "error", err)
	}
	if text == "" {
		text = emergencyFallback
	}
	return b.client.SendMessage(ctx, chatID, text, nil)
}

// handleInput feeds non-command text into the chat's intake session.
func (b *Bot) handleInput(ctx context.Context, chatID int64, text string) error {
	reply, err := b.sessions.Input(ctx, actor(chatID), text)
	if err != nil {
		b.logger.Error("intake input failed", "chat_id", chatID, "error", err)
		return b.client.SendMessage(ctx, chatID,
			"Sorry, your report could not be stored. Please try again with /report.",
			ReplyKeyboardRemove{RemoveKeyboard: true})
	}
	return b.sendReply(ctx, chatID, reply)
}

// sendReply renders a session reply: options become a one-time reply
// keyboard, completion removes it.
func (b *Bot) sendReply(ctx context.Context, chatID int64, reply report.Reply) error {
	var markup any
	switch {
	case len(reply.Options) > 0:
		markup = optionsKeyboard(reply.Options)
	case reply.Done:
		markup = ReplyKeyboardRemove{RemoveKeyboard: true}
	}
	return b.client.SendMessage(ctx, chatID, reply.Text, markup)
}

// optionsKeyboard lays the accepted replies out one per row, matching how
// option lists read best on phones.
func optionsKeyboard(options []string) ReplyKeyboardMarkup {
	rows := make([][]KeyboardButton, 0, len(options))
	for _, opt := range options {
		rows = append(rows, []KeyboardButton{{Text: opt}})
	}
	return ReplyKeyboardMarkup{
		Keyboard:        rows,
		OneTimeKeyboard: true,
		ResizeKeyboard:  true,
	}
}
