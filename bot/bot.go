package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookline/bot/action"
	appointmentRepo "bookline/database/repository/appointment"
	"bookline/models"
	"bookline/services/booking"
	"bookline/services/flow"
	"bookline/services/notification"
	"bookline/services/payment"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxRosterBytes = 256 << 10

// Bot is the chat transport boundary. It decodes every callback token once
// into a typed action and routes it; validation and slot-race failures are
// absorbed into user-facing replies and never propagate past this layer.
type Bot struct {
	API          *tgbotapi.BotAPI
	Machine      *flow.Machine
	Coord        booking.Coordinator
	Appointments appointmentRepo.AppointmentRepository
	Gate         payment.Gate
	Sender       notification.ChatSender
	Logger       *zap.Logger
	IsOperator   func(chatID int64) bool
	Location     *time.Location
}

// Run polls for updates until the context is cancelled. Updates are handled
// concurrently; the flow machine serializes per chat.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.API.GetUpdatesChan(u)

	b.Logger.Info("bot polling started", zap.String("username", b.API.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			b.API.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.deliver(ctx, chatID, b.reply(b.Machine.Start(ctx, chatID)))
		case "bulk":
			b.startBulk(ctx, msg)
		case "discount":
			b.applyDiscount(ctx, msg)
		case "bookings":
			b.myBookings(ctx, chatID)
		case "cancel":
			b.deliver(ctx, chatID, b.reply(b.Machine.HandleAction(ctx, chatID, action.Action{Kind: action.KindCancel})))
		default:
			b.deliver(ctx, chatID, flow.Reply{Text: "Send /start to book an appointment, or /bookings to see yours."})
		}
		return
	}

	if msg.Document != nil {
		b.rosterUpload(ctx, msg)
		return
	}

	reply, err := b.Machine.HandleText(ctx, chatID, msg.Text)
	b.deliver(ctx, chatID, b.reply(reply, err))
}

// myBookings lists the caller's own appointments, newest first.
func (b *Bot) myBookings(ctx context.Context, chatID int64) {
	appts, err := b.Appointments.ListByClient(ctx, chatID)
	if err != nil {
		b.Logger.Error("booking list failed", zap.Int64("chatID", chatID), zap.Error(err))
		b.deliver(ctx, chatID, flow.Reply{Text: "Couldn't fetch your bookings right now. Try again in a minute."})
		return
	}
	if len(appts) == 0 {
		b.deliver(ctx, chatID, flow.Reply{Text: "You have no bookings yet. Send /start to make one."})
		return
	}

	var sb strings.Builder
	sb.WriteString("Your bookings:\n")
	for _, a := range appts {
		fmt.Fprintf(&sb, "%s: %s (%s)\n",
			a.Start.In(b.location()).Format("Mon 02 Jan 15:04"), a.ServiceName, a.Status)
	}
	b.deliver(ctx, chatID, flow.Reply{Text: strings.TrimRight(sb.String(), "\n")})
}

func (b *Bot) startBulk(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.IsOperator(chatID) {
		b.deliver(ctx, chatID, flow.Reply{Text: "Bulk booking is restricted to operators."})
		return
	}
	roster := msg.CommandArguments()
	if roster == "" {
		b.deliver(ctx, chatID, flow.Reply{Text: "Upload the roster file (one subject per line: first,last,dob) or paste it after /bulk."})
		return
	}
	b.deliver(ctx, chatID, b.reply(b.Machine.StartBulk(ctx, chatID, roster)))
}

// applyDiscount lets an operator revise a pending payment down. The payer
// keeps the same payment reference; only the expected amount changes.
func (b *Bot) applyDiscount(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.IsOperator(chatID) {
		return
	}
	var paymentID string
	var amount float64
	if _, err := fmt.Sscanf(msg.CommandArguments(), "%s %f", &paymentID, &amount); err != nil {
		b.deliver(ctx, chatID, flow.Reply{Text: "Usage: /discount <paymentID> <amount>"})
		return
	}

	p, err := b.Gate.ApplyCoupon(ctx, paymentID, amount)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrPaymentNotPending):
			b.deliver(ctx, chatID, flow.Reply{Text: "That payment is already settled or expired."})
		case errors.Is(err, payment.ErrInvalidDiscount):
			b.deliver(ctx, chatID, flow.Reply{Text: "The discounted amount must be positive and below the current price."})
		default:
			b.Logger.Error("discount failed", zap.String("paymentID", paymentID), zap.Error(err))
			b.deliver(ctx, chatID, flow.Reply{Text: "Couldn't apply the discount. Try again."})
		}
		return
	}

	b.deliver(ctx, chatID, flow.Reply{Text: fmt.Sprintf("Price revised to %.2f %s.", p.Amount, p.Currency)})
	b.deliver(ctx, p.PayerChatID, flow.Reply{Text: fmt.Sprintf(
		"Good news: your price was reduced to %.2f %s. The payment reference stays the same.", p.Amount, p.Currency)})
}

func (b *Bot) rosterUpload(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.IsOperator(chatID) {
		return
	}
	roster, err := b.fetchDocument(msg.Document.FileID)
	if err != nil {
		b.Logger.Warn("roster download failed", zap.Int64("chatID", chatID), zap.Error(err))
		b.deliver(ctx, chatID, flow.Reply{Text: "Couldn't read that file. Please upload it again."})
		return
	}
	b.deliver(ctx, chatID, b.reply(b.Machine.StartBulk(ctx, chatID, roster)))
}

func (b *Bot) fetchDocument(fileID string) (string, error) {
	url, err := b.API.GetFileDirectURL(fileID)
	if err != nil {
		return "", err
	}
	resp, err := http.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("file download returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRosterBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Telegram omits the message on callbacks for sufficiently old messages.
	if cq.Message == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	// Acknowledge immediately so the client stops its spinner.
	if _, err := b.API.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		b.Logger.Debug("callback ack failed", zap.Error(err))
	}

	act, err := action.Decode(cq.Data)
	if err != nil {
		b.Logger.Warn("undecodable callback", zap.String("data", cq.Data), zap.Error(err))
		return
	}

	switch act.Kind {
	case action.KindApprove, action.KindReject:
		b.operatorDecision(ctx, chatID, messageID, act)
	case action.KindAttendConfirm:
		b.attendConfirm(ctx, chatID, messageID, act)
	case action.KindAttendCancel:
		b.attendCancel(ctx, chatID, messageID, act)
	default:
		reply, err := b.Machine.HandleAction(ctx, chatID, act)
		b.deliver(ctx, chatID, b.reply(reply, err))
	}
}

// operatorDecision drives pending_approval → scheduled|rejected and tells the
// client the outcome. The review prompt is edited in place so its
// approve/reject buttons disappear once the decision lands.
func (b *Bot) operatorDecision(ctx context.Context, chatID int64, messageID int, act action.Action) {
	if !b.IsOperator(chatID) {
		b.Logger.Warn("approval attempt from non-operator", zap.Int64("chatID", chatID))
		return
	}

	event := models.EventApprove
	if act.Kind == action.KindReject {
		event = models.EventReject
	}

	appt, err := b.Coord.Apply(ctx, act.ID, event)
	if err != nil {
		if errors.Is(err, appointmentRepo.ErrStaleStatus) || errors.Is(err, models.ErrInvalidTransition) {
			b.edit(ctx, chatID, messageID, "That request was already handled.")
			return
		}
		b.Logger.Error("operator decision failed", zap.String("appointmentID", act.ID), zap.Error(err))
		b.deliver(ctx, chatID, flow.Reply{Text: "Couldn't apply that decision. Try again."})
		return
	}

	when := appt.Start.In(b.location()).Format("Monday 02 Jan at 15:04")
	if event == models.EventApprove {
		b.edit(ctx, chatID, messageID, fmt.Sprintf("Approved: %s for %s.", appt.ServiceName, appt.ClientName))
		b.deliver(ctx, appt.ClientChatID, flow.Reply{Text: fmt.Sprintf("Good news: your booking for %s was approved.", when)})
		return
	}
	b.edit(ctx, chatID, messageID, fmt.Sprintf("Rejected: %s for %s.", appt.ServiceName, appt.ClientName))
	b.deliver(ctx, appt.ClientChatID, flow.Reply{Text: "Unfortunately your booking request was declined. Send /start to pick something else."})
}

func (b *Bot) attendConfirm(ctx context.Context, chatID int64, messageID int, act action.Action) {
	err := b.Appointments.AcknowledgeConfirmation(ctx, act.ID, act.Value)
	if err != nil {
		if errors.Is(err, appointmentRepo.ErrNotFound) {
			b.edit(ctx, chatID, messageID, "This confirmation is no longer valid.")
			return
		}
		b.Logger.Error("confirmation failed", zap.String("appointmentID", act.ID), zap.Error(err))
		b.deliver(ctx, chatID, flow.Reply{Text: "Something went wrong. Try again."})
		return
	}
	b.edit(ctx, chatID, messageID, "Thanks, you're confirmed. See you soon!")
}

func (b *Bot) attendCancel(ctx context.Context, chatID int64, messageID int, act action.Action) {
	_, _, err := b.Coord.Cancel(ctx, act.ID, "client", "cancelled from reminder prompt")
	if err != nil {
		b.Logger.Error("cancel from reminder failed", zap.String("appointmentID", act.ID), zap.Error(err))
		b.deliver(ctx, chatID, flow.Reply{Text: "Something went wrong. Try again."})
		return
	}
	b.edit(ctx, chatID, messageID, "Your appointment is cancelled. Send /start whenever you want to rebook.")
}

// edit rewrites the message whose button was just pressed, dropping its
// keyboard so a stale prompt cannot be pressed twice.
func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string) {
	if err := b.Sender.EditMessage(ctx, chatID, messageID, text, nil); err != nil {
		b.Logger.Warn("message edit failed", zap.Int64("chatID", chatID), zap.Error(err))
		b.deliver(ctx, chatID, flow.Reply{Text: text})
	}
}

// reply folds a machine result into something deliverable, translating the
// errors a user can act on and hiding the rest behind a generic apology.
func (b *Bot) reply(r flow.Reply, err error) flow.Reply {
	if err == nil {
		return r
	}
	if errors.Is(err, flow.ErrSessionExpired) {
		return flow.Reply{Text: "Your session expired. Send /start to begin again."}
	}
	b.Logger.Error("flow error", zap.Error(err))
	return flow.Reply{Text: "Something went wrong on our side. Please try again."}
}

func (b *Bot) deliver(ctx context.Context, chatID int64, r flow.Reply) {
	if r.Empty() {
		return
	}
	var err error
	if len(r.Buttons) > 0 {
		_, err = b.Sender.SendButtons(ctx, chatID, r.Text, r.Buttons)
	} else {
		err = b.Sender.SendText(ctx, chatID, r.Text)
	}
	if err != nil {
		b.Logger.Warn("delivery failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (b *Bot) location() *time.Location {
	if b.Location != nil {
		return b.Location
	}
	return time.UTC
}
