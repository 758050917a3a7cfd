package notification

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TelegramSender implements ChatSender over the Telegram Bot API. Sends are
// throttled so a reminder batch cannot trip Telegram's flood limits and so a
// slow send never consumes more than the caller's context allows.
type TelegramSender struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewTelegramSender(api *tgbotapi.BotAPI, logger *zap.Logger) *TelegramSender {
	// Telegram allows ~30 messages/second overall; stay well under it.
	return &TelegramSender{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		logger:  logger,
	}
}

func (t *TelegramSender) SendText(ctx context.Context, chatID int64, text string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.logger.Warn("telegram send failed", zap.Int64("chatID", chatID), zap.Error(err))
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}

func (t *TelegramSender) SendButtons(ctx context.Context, chatID int64, text string, rows [][]Button) (int, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = buildMarkup(rows)
	sent, err := t.api.Send(msg)
	if err != nil {
		t.logger.Warn("telegram send failed", zap.Int64("chatID", chatID), zap.Error(err))
		return 0, fmt.Errorf("telegram send failed: %w", err)
	}
	return sent.MessageID, nil
}

func (t *TelegramSender) EditMessage(ctx context.Context, chatID int64, messageID int, text string, rows [][]Button) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if len(rows) > 0 {
		markup := buildMarkup(rows)
		edit.ReplyMarkup = &markup
	}
	if _, err := t.api.Send(edit); err != nil {
		t.logger.Warn("telegram edit failed", zap.Int64("chatID", chatID), zap.Error(err))
		return fmt.Errorf("telegram edit failed: %w", err)
	}
	return nil
}

func buildMarkup(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var btns []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token))
		}
		keyboard = append(keyboard, btns)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}
