/*
telegram.go - Telegram delivery and callback-data codec

PURPOSE:
  Renders reading cards with inline read/break buttons and turns
  button-press callback data back into engine submissions. The callback
  data format is the wire contract with our own cards:

    read|<month>|<day>
    break|<month>|<day>
    break            (floating break, no coordinate)
*/
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/warp/reading-engine/engine"
)

// Telegram delivers via the Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) SendDailyCard(_ context.Context, u engine.User, entry engine.PlanEntry, stats engine.Stats) error {
	msg := tgbotapi.NewMessage(u.PlatformID, renderCard(entry, stats))
	msg.ReplyMarkup = cardKeyboard(entry.Coord)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send daily card: %w", err)
	}
	return nil
}

func (t *Telegram) SendNudge(_ context.Context, u engine.User) error {
	msg := tgbotapi.NewMessage(u.PlatformID,
		"Still time to read today. Open your card and keep the streak going 📖")
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send nudge: %w", err)
	}
	return nil
}

func (t *Telegram) AnswerCallback(_ context.Context, callbackID, text string) error {
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}

// =============================================================================
// RENDERING
// =============================================================================

func renderCard(entry engine.PlanEntry, stats engine.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Day %s — today's readings:\n\n", entry.Coord)
	for _, ref := range entry.References() {
		fmt.Fprintf(&b, "• %s\n", ref)
	}
	fmt.Fprintf(&b, "\n🔥 Streak: %d   🛌 Breaks left: %d   ✅ %s%% done",
		stats.Streak, stats.BreaksLeft, stats.PercentComplete)
	return b.String()
}

func cardKeyboard(c engine.Coordinate) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Read", FormatCallbackData(engine.KindRead, &c)),
			tgbotapi.NewInlineKeyboardButtonData("🛌 Break", FormatCallbackData(engine.KindBreak, &c)),
		),
	)
}

// =============================================================================
// CALLBACK DATA CODEC
// =============================================================================

// FormatCallbackData encodes a button action.
func FormatCallbackData(kind engine.EventKind, coord *engine.Coordinate) string {
	if coord == nil {
		return string(kind)
	}
	return fmt.Sprintf("%s|%d|%d", kind, coord.Month, coord.Day)
}

// ParseCallbackData decodes button-press data into an event kind and
// optional coordinate.
func ParseCallbackData(data string) (engine.EventKind, *engine.Coordinate, error) {
	parts := strings.Split(data, "|")
	kind := engine.EventKind(parts[0])
	if kind != engine.KindRead && kind != engine.KindBreak {
		return "", nil, fmt.Errorf("%w: %q", engine.ErrInvalidEventKind, data)
	}

	switch len(parts) {
	case 1:
		if kind == engine.KindRead {
			return "", nil, engine.ErrCoordinateRequired
		}
		return kind, nil, nil
	case 3:
		month, err1 := strconv.Atoi(parts[1])
		day, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			return "", nil, fmt.Errorf("%w: %q", engine.ErrInvalidCoordinate, data)
		}
		coord := engine.NewCoordinate(month, day)
		if !coord.Valid() {
			return "", nil, fmt.Errorf("%w: %s", engine.ErrInvalidCoordinate, coord)
		}
		return kind, &coord, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", engine.ErrInvalidEventKind, data)
	}
}

// OutcomeText is the short acknowledgement shown after a button press.
func OutcomeText(o engine.Outcome) string {
	switch o {
	case engine.OutcomeAdvanced:
		return "Nice — marked as read! 🔥"
	case engine.OutcomeAlreadyCompleted:
		return "Already counted 👍"
	case engine.OutcomeOutOfSequence:
		return "Logged, but today's reading is still pending"
	case engine.OutcomeBreakGranted:
		return "Break taken — streak protected 🛌"
	case engine.OutcomeBreakDenied:
		return "No breaks left in the last 30 days"
	case engine.OutcomeDuplicateCallback:
		return "Got it already 👍"
	default:
		return "OK"
	}
}
