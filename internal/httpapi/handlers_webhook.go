package httpapi

import (
	"net/http"

	"gallerybot/internal/auth"
	"gallerybot/internal/telegram"
)

const webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

func (a *api) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if !auth.SecretEqual(a.webhookSecret, r.Header.Get(webhookSecretHeader)) {
		WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}

	var u telegram.Update
	if err := decodeJSON(w, r, &u); err != nil {
		a.logger.Warn("webhook: bad update", "err", err)
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid update")
		return
	}
	a.updates(r.Context(), u)
	w.WriteHeader(http.StatusOK)
}
