/*
webhook.go - Telegram webhook transport

PURPOSE:
  Converts Telegram updates into engine submissions. This is the
  at-least-once edge: Telegram retries deliveries freely, so the
  callback query id doubles as the idempotency key for the whole
  accept-and-apply step.

HANDLED UPDATES:
  - /start messages: create-or-fetch the user, send today's card
  - callback queries from card buttons: read|m|d, break|m|d, break

  Everything else is acknowledged and ignored; Telegram only needs a
  200 to stop retrying.
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/warp/reading-engine/engine"
	"github.com/warp/reading-engine/notify"
)

// TelegramWebhook receives bot updates.
// POST /telegram/webhook
func (h *Handler) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid update", err)
		return
	}

	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(w, r, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand() && update.Message.Command() == "start":
		h.handleStart(w, r, update.Message)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request, cq *tgbotapi.CallbackQuery) {
	ctx := r.Context()

	kind, coord, err := notify.ParseCallbackData(cq.Data)
	if err != nil {
		// Stale or foreign button data; acknowledge so Telegram stops
		// retrying, but apply nothing.
		log.Printf("[Webhook] ignoring callback %q: %v", cq.Data, err)
		w.WriteHeader(http.StatusOK)
		return
	}

	u, err := h.Engine.RegisterUser(ctx, cq.From.ID, cq.From.UserName, cq.From.FirstName, cq.From.LastName)
	if err != nil {
		writeEngineError(w, "Failed to resolve user", err)
		return
	}

	outcome, err := h.Engine.Submit(ctx, engine.Submission{
		UserID:     u.ID,
		CallbackID: cq.ID,
		Kind:       kind,
		Coord:      coord,
	})
	if err != nil {
		if engine.IsRetryable(err) {
			// Let Telegram redeliver; the guard makes the retry safe.
			writeError(w, http.StatusServiceUnavailable, "Please retry", err)
			return
		}
		writeEngineError(w, "Failed to apply event", err)
		return
	}

	if err := h.Notifier.AnswerCallback(ctx, cq.ID, notify.OutcomeText(outcome)); err != nil {
		log.Printf("[Webhook] answer callback: %v", err)
	}
	writeJSON(w, http.StatusOK, SubmitEventResponse{Outcome: string(outcome)})
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request, msg *tgbotapi.Message) {
	ctx := r.Context()

	from := msg.From
	if from == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	u, err := h.Engine.RegisterUser(ctx, from.ID, from.UserName, from.FirstName, from.LastName)
	if err != nil {
		writeEngineError(w, "Failed to register user", err)
		return
	}

	entry, ok, err := h.Engine.NextReading(ctx, u.ID)
	if err != nil || !ok {
		writeJSON(w, http.StatusOK, toUserDTO(u))
		return
	}
	stats, err := h.Engine.Stats(ctx, u.ID, h.Engine.Clock())
	if err == nil {
		if err := h.Notifier.SendDailyCard(ctx, u, entry, stats); err != nil {
			log.Printf("[Webhook] welcome card for %s: %v", u.ID, err)
		}
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}
