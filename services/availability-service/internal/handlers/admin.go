package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/configcache"
)

// AdminHandler exposes the config-cache invalidation hook. Owner tooling
// calls it after editing capacity bands or the booking policy; until then the
// engine keeps serving the cached snapshot.
type AdminHandler struct {
	cache  *configcache.Cache
	logger *slog.Logger
}

func NewAdminHandler(cache *configcache.Cache, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{cache: cache, logger: logger}
}

type invalidateRequest struct {
	ShopID string `json:"shop_id"`
}

func (h *AdminHandler) InvalidateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ShopID = strings.TrimSpace(req.ShopID)
	if req.ShopID == "" {
		http.Error(w, "shop_id required", http.StatusBadRequest)
		return
	}

	h.cache.Invalidate(req.ShopID)
	h.logger.Info("shop config cache invalidated", "shop_id", req.ShopID)
	w.WriteHeader(http.StatusNoContent)
}
