package service

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"trekbook/internal/models"
)

// TelegramNotifier pushes operational alerts to the ops chat. All methods
// are fire-and-forget; delivery failures are only logged.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(token string, chatID int64, debug bool, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug

	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifier connected")
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

func (n *TelegramNotifier) send(text string) {
	if n == nil || n.bot == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("failed to send telegram notification")
	}
}

func rupees(paise int64) string {
	return fmt.Sprintf("₹%d.%02d", paise/100, paise%100)
}

func (n *TelegramNotifier) NotifyBookingConfirmed(booking *models.Booking) {
	n.send(fmt.Sprintf(
		"✅ Booking #%d confirmed\nTrek %d, batch %d\n%d participant(s), %s paid (%s mode)",
		booking.ID, booking.TrekID, booking.BatchID,
		booking.Participants, rupees(booking.Payment.InitialAmount), booking.PaymentMode,
	))
}

func (n *TelegramNotifier) NotifyBookingArchived(fb *models.FailedBooking) {
	n.send(fmt.Sprintf(
		"🗄 Booking #%d archived: %s\nContact: %s %s\n%d participant(s), total %s",
		fb.OriginalBookingID, fb.FailureReason,
		fb.ContactName, fb.ContactPhone,
		fb.Participants, rupees(fb.TotalPrice),
	))
}

func (n *TelegramNotifier) NotifyBookingCancelled(booking *models.Booking, refundAmount int64) {
	n.send(fmt.Sprintf(
		"❌ Booking #%d cancelled\nTrek %d, batch %d\n%d participant(s), refund %s",
		booking.ID, booking.TrekID, booking.BatchID,
		booking.Participants, rupees(refundAmount),
	))
}

func (n *TelegramNotifier) NotifyParticipantCancelled(booking *models.Booking, participantID, refundAmount int64) {
	n.send(fmt.Sprintf(
		"➖ Participant #%d cancelled on booking #%d\n%d active participant(s) remain, refund %s",
		participantID, booking.ID, booking.ActiveParticipants(), rupees(refundAmount),
	))
}

func (n *TelegramNotifier) NotifyRefundFailed(bookingID int64, amount int64, err error) {
	n.send(fmt.Sprintf(
		"⚠️ Refund of %s for booking #%d FAILED: %v\nManual retry required.",
		rupees(amount), bookingID, err,
	))
}
