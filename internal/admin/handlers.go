package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"signalrelay/internal/models"
)

const defaultSignalLimit = 50

// handleHealth implements GET /health (§6). The database check is the only
// dependency this relay can fail open or closed on without a live upstream
// connection; connector/broadcaster health is process-level, not per-request.
func (s *Server) handleHealth(c echo.Context) error {
	status := "ok"
	dbCheck := "ok"
	if err := s.cfg.DB.Ping(c.Request().Context()); err != nil {
		status = "degraded"
		dbCheck = "error"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":    status,
		"service":   s.cfg.ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbCheck,
		},
	})
}

// handleValidate implements GET /api/auth/validate (§4.7, §6). Unlike every
// other route, it resolves its own principal rather than running behind
// authMiddleware, so a missing or invalid key is reported as
// {"valid": false, ...} instead of the blanket 401 authMiddleware would
// otherwise return.
func (s *Server) handleValidate(c echo.Context) error {
	p, ok := resolvePrincipal(c.Request().Context(), s.cfg.MasterKey, s.cfg.Clients, c.Request())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]any{"valid": false, "error": "missing or invalid credentials"})
	}
	resp := map[string]any{"valid": true, "role": p.Role}
	if p.Role == RoleClient {
		resp["clientId"] = p.ClientID
	}
	return c.JSON(http.StatusOK, resp)
}

// handleStats implements GET /api/stats and GET /admin/stats (§4.7): either
// principal may call /api/stats; /admin/stats accepts only the master key.
func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.cfg.Messages.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("failed to compute stats"))
	}
	return c.JSON(http.StatusOK, stats)
}

// handleSignals implements GET /api/signals and GET /admin/signals (§6):
// the most recent messages, projected into their wire form with channel
// names resolved.
func (s *Server) handleSignals(c echo.Context) error {
	limit := parseLimit(c.QueryParam("limit"), defaultSignalLimit)

	messages, err := s.cfg.Messages.GetRecent(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("failed to fetch signals"))
	}

	channels, err := s.cfg.Channels.ListAll(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("failed to resolve channel names"))
	}
	names := make(map[string]string, len(channels))
	for _, ch := range channels {
		names[ch.SourceID] = ch.Name
	}

	out := make([]models.ProcessedMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToProcessedMessage(names[m.SourceID], unmarshalSignal(m.ParsedSignal)))
	}
	return c.JSON(http.StatusOK, out)
}

func unmarshalSignal(raw json.RawMessage) *models.TradingSignal {
	if len(raw) == 0 {
		return nil
	}
	var sig models.TradingSignal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil
	}
	return &sig
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// --- Client management (admin-only) ---

// handleCreateClient implements POST /admin/clients.
func (s *Server) handleCreateClient(c echo.Context) error {
	client, err := s.cfg.Clients.Create(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("failed to create client"))
	}
	return c.JSON(http.StatusOK, client)
}

// handleListClients implements GET /admin/clients.
func (s *Server) handleListClients(c echo.Context) error {
	clients, err := s.cfg.Clients.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("failed to list clients"))
	}
	return c.JSON(http.StatusOK, clients)
}

// handleDeleteClient implements DELETE /admin/clients/:id.
func (s *Server) handleDeleteClient(c echo.Context) error {
	if err := s.cfg.Clients.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if asNotFound(err) {
			return c.JSON(http.StatusNotFound, errorBody("client not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("failed to delete client"))
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Channel whitelist management (admin-only) ---

type upsertChannelRequest struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// handleUpsertChannel implements POST /admin/channels.
func (s *Server) handleUpsertChannel(c echo.Context) error {
	var req upsertChannelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}
	if req.SourceID == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, errorBody("source_id and name are required"))
	}

	ch, err := s.cfg.Channels.Upsert(c.Request().Context(), models.ChannelInput{
		SourceID: req.SourceID,
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid source_id"))
	}
	return c.JSON(http.StatusOK, ch)
}

// handleListChannels implements GET /admin/channels[?all=true]: active only
// unless all=true is present.
func (s *Server) handleListChannels(c echo.Context) error {
	var (
		channels []models.Channel
		err      error
	)
	if c.QueryParam("all") == "true" {
		channels, err = s.cfg.Channels.ListAll(c.Request().Context())
	} else {
		channels, err = s.cfg.Channels.ListActive(c.Request().Context())
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("failed to list channels"))
	}
	return c.JSON(http.StatusOK, channels)
}

// handleGetChannel implements GET /admin/channels/:sourceId, added for
// symmetry with the client CRUD surface.
func (s *Server) handleGetChannel(c echo.Context) error {
	ch, err := s.cfg.Channels.Get(c.Request().Context(), c.Param("sourceId"))
	if err != nil {
		if asNotFound(err) {
			return c.JSON(http.StatusNotFound, errorBody("channel not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("failed to get channel"))
	}
	return c.JSON(http.StatusOK, ch)
}

// handleDeleteChannel implements DELETE /admin/channels/:sourceId. Messages
// referencing the channel cascade via the foreign key (§6).
func (s *Server) handleDeleteChannel(c echo.Context) error {
	if err := s.cfg.Channels.Delete(c.Request().Context(), c.Param("sourceId")); err != nil {
		if asNotFound(err) {
			return c.JSON(http.StatusNotFound, errorBody("channel not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("failed to delete channel"))
	}
	return c.NoContent(http.StatusNoContent)
}

type toggleChannelRequest struct {
	IsActive bool `json:"is_active"`
}

// handleToggleChannel implements PATCH /admin/channels/:sourceId/toggle.
func (s *Server) handleToggleChannel(c echo.Context) error {
	var req toggleChannelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}
	if err := s.cfg.Channels.SetActive(c.Request().Context(), c.Param("sourceId"), req.IsActive); err != nil {
		if asNotFound(err) {
			return c.JSON(http.StatusNotFound, errorBody("channel not found"))
		}
		return c.JSON(http.StatusInternalServerError, errorBody("failed to toggle channel"))
	}
	return c.NoContent(http.StatusNoContent)
}

// --- History management (admin-only) ---

type loadHistoryRequest struct {
	ChatID int64 `json:"chat_id"`
	Limit  int   `json:"limit"`
}

// handleLoadHistory implements POST /admin/history/load.
func (s *Server) handleLoadHistory(c echo.Context) error {
	var req loadHistoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}
	if req.ChatID == 0 {
		return c.JSON(http.StatusBadRequest, errorBody("chat_id is required"))
	}

	result, err := s.cfg.History.Load(c.Request().Context(), req.ChatID, req.Limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody("backfill failed"))
	}
	return c.JSON(http.StatusOK, result)
}

// handleDeleteHistory implements DELETE /admin/history/:sourceId: removes
// the loaded message rows for a source without touching its whitelist
// entry, the counterpart to POST /admin/history/load.
func (s *Server) handleDeleteHistory(c echo.Context) error {
	deleted, err := s.cfg.Messages.DeleteBySource(c.Request().Context(), c.Param("sourceId"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid source id"))
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": deleted})
}
