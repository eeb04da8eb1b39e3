package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// ProspectDetail is the result of GET /prospects/{id}.
type ProspectDetail struct {
	Prospect models.Prospect              `json:"prospect"`
	Meetings []models.Meeting             `json:"meetings"`
	History  []models.ConversationMessage `json:"history"`
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}))
}

// statsHandler returns lead statistics (GET /stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsHandler: invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.st.Stats(ctx, StartOfDay(s.now(), s.loc))
	if err != nil {
		slog.Error("Server.statsHandler: failed to compute stats", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// prospectHandler returns a prospect with its meetings and recent conversation (GET /prospects/{id}).
func (s *Server) prospectHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := s.st.GetProspect(ctx, id)
	if err != nil {
		slog.Error("Server.prospectHandler: failed to load prospect", "error", err, "prospectID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load prospect"))
		return
	}
	if p == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Prospect not found"))
		return
	}

	meetings, err := s.st.ListMeetings(ctx, id)
	if err != nil {
		slog.Error("Server.prospectHandler: failed to list meetings", "error", err, "prospectID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load meetings"))
		return
	}
	history, err := s.st.GetConversationHistory(ctx, id, DefaultHistoryLimit)
	if err != nil {
		slog.Error("Server.prospectHandler: failed to load history", "error", err, "prospectID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return
	}
	if meetings == nil {
		meetings = []models.Meeting{}
	}
	if history == nil {
		history = []models.ConversationMessage{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ProspectDetail{Prospect: *p, Meetings: meetings, History: history}))
}

// StartOfDay returns midnight of the day containing t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
