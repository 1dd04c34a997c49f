package httpapi

import (
	"net/http"

	"gallerybot/internal/domain"
)

type banResponse struct {
	ID     string `json:"id"`
	Banned bool   `json:"banned"`
}

type logsResponse struct {
	Entries []domain.ErrorEntry `json:"entries"`
}

func (a *api) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.adminSvc.Stats(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, st)
}

func (a *api) handleAdminUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.PathValue("id"), "id")
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	rep, err := a.adminSvc.LookupUser(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rep)
}

func (a *api) handleAdminToggleBan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.PathValue("id"), "id")
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	banned, err := a.adminSvc.ToggleBan(r.Context(), id)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	a.logger.Info("admin api: ban toggled", "target_id", id, "banned", banned)
	WriteJSON(w, http.StatusOK, banResponse{ID: id, Banned: banned})
}

func (a *api) handleAdminBans(w http.ResponseWriter, r *http.Request) {
	ids, err := a.adminSvc.Banned(r.Context())
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string][]string{"banned": ids})
}

func (a *api) handleAdminLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	entries, err := a.adminSvc.Logs(r.Context(), limit)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ErrorEntry{}
	}
	WriteJSON(w, http.StatusOK, logsResponse{Entries: entries})
}

func (a *api) handleAdminClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := a.adminSvc.ClearLogs(r.Context()); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleAdminGallery(w http.ResponseWriter, r *http.Request) {
	first, err := pathID(r.PathValue("a"), "a")
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	second, err := pathID(r.PathValue("b"), "b")
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	g, err := a.adminSvc.PairGallery(r.Context(), first, second)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, g)
}
