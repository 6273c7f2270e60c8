// Package telegram bridges the agent loop onto the Telegram Bot API via
// long polling. Each chat maps to its own conversation, so history stays
// isolated per chat.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"seeker/pkg/agent"
)

// TelegramConfig encapsulates the credentials required to authenticate
// with the Telegram Bot API.
type TelegramConfig struct {
	Token string `json:"token"` // The secret BOT API string provided by @BotFather
}

// TelegramChannel runs the long-polling update loop and relays each text
// message through the agent controller. Search progress is surfaced as
// interim notices before the final answer.
type TelegramChannel struct {
	config     TelegramConfig
	bot        *tgbotapi.BotAPI
	controller *agent.Controller
	stopCtx    context.Context
	stopCancel context.CancelFunc
}

func NewTelegramChannel(cfg TelegramConfig, controller *agent.Controller) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	ctx, cancel := context.WithCancel(context.Background())
	return &TelegramChannel{
		config:     cfg,
		bot:        bot,
		controller: controller,
		stopCtx:    ctx,
		stopCancel: cancel,
	}, nil
}

func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start begins the long-polling loop in a background goroutine.
func (t *TelegramChannel) Start() error {
	go func() {
		offset := 0
		for {
			select {
			case <-t.stopCtx.Done():
				return
			default:
			}

			reqConfig := tgbotapi.NewUpdate(offset)
			reqConfig.Timeout = 60

			updates, err := t.bot.GetUpdates(reqConfig)
			if err != nil {
				select {
				case <-t.stopCtx.Done():
					return
				default:
					slog.Debug("Failed to get telegram updates", "error", err)
					time.Sleep(3 * time.Second)
					continue
				}
			}

			for _, update := range updates {
				if update.UpdateID >= offset {
					offset = update.UpdateID + 1
				}
				if update.Message == nil || update.Message.Text == "" {
					continue
				}
				go t.handleMessage(update.Message)
			}
		}
	}()
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel()
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	conversationID := "tg_" + strconv.FormatInt(msg.Chat.ID, 10)

	if msg.IsCommand() {
		t.handleCommand(msg, conversationID)
		return
	}

	typing := tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)
	t.bot.Send(typing)

	session := t.controller.Open(t.stopCtx, conversationID, msg.Text)
	var answer strings.Builder
	for ev := range session.Events() {
		switch ev.Type {
		case agent.EventSearch:
			t.reply(msg.Chat.ID, fmt.Sprintf("🔍 Searching: %s", ev.Query))
		case agent.EventContent:
			answer.WriteString(ev.Content)
		case agent.EventError:
			t.reply(msg.Chat.ID, "Something went wrong: "+ev.Message)
			return
		}
	}
	if answer.Len() > 0 {
		t.reply(msg.Chat.ID, answer.String())
	}
}

func (t *TelegramChannel) handleCommand(msg *tgbotapi.Message, conversationID string) {
	switch msg.Command() {
	case "start":
		t.reply(msg.Chat.ID, "Hi! Ask me anything. I can search the web when I need fresh information.")
	case "clear":
		if err := t.controller.Clear(conversationID); err != nil {
			t.reply(msg.Chat.ID, "Failed to clear history.")
			return
		}
		t.reply(msg.Chat.ID, "Conversation history cleared.")
	default:
		t.reply(msg.Chat.ID, "Unknown command.")
	}
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
	}
}
