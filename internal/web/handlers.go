package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/safetransit/safetransit/internal/report"
	"github.com/safetransit/safetransit/internal/stops"
)

// maxBodyBytes caps request bodies; intake payloads are tiny.
const maxBodyBytes = 16 << 10

// webActorPrefix namespaces web intake actors away from bot chat IDs.
const webActorPrefix = "web:"

type handlers struct {
	logger     *slog.Logger
	sessions   *report.Sessions
	store      ReportStore
	registry   *stops.Registry
	advisor    Advisor
	trustProxy bool
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listStops returns the known stops with coordinates, for the map layer.
func (h *handlers) listStops(w http.ResponseWriter, _ *http.Request) {
	type stopResp struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
	}

	all := h.registry.All()
	resp := make([]stopResp, 0, len(all))
	for _, s := range all {
		resp = append(resp, stopResp{Name: s.Name, Lat: s.Location.Lat, Lon: s.Location.Lon})
	}
	writeJSON(w, http.StatusOK, map[string]any{"stops": resp})
}

// stopStatus returns the latest report per stop, the map feed. Stops with no
// reports yet are included with zero values so the map can render them grey.
func (h *handlers) stopStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.store.StopStatus(r.Context())
	if err != nil {
		h.logger.Error("stop status query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to load stop status")
		return
	}

	type statusResp struct {
		Location    string  `json:"location"`
		Lat         float64 `json:"lat"`
		Lon         float64 `json:"lon"`
		CrowdLevel  string  `json:"crowd_level,omitempty"`
		SafetyScore float64 `json:"safety_score,omitempty"`
		LastReport  string  `json:"last_report,omitempty"`
		ReportCount int     `json:"report_count"`
	}

	byLocation := make(map[string]statusResp, h.registry.Len())
	for _, s := range h.registry.All() {
		byLocation[s.Name] = statusResp{Location: s.Name, Lat: s.Location.Lat, Lon: s.Location.Lon}
	}
	for _, st := range statuses {
		entry, ok := byLocation[st.Location]
		if !ok {
			// Report against a stop no longer in the registry; still shown.
			entry = statusResp{Location: st.Location}
		}
		entry.CrowdLevel = string(st.CrowdLevel)
		entry.SafetyScore = st.SafetyScore
		entry.LastReport = st.LastReport.Format(time.RFC3339)
		entry.ReportCount = st.ReportCount
		byLocation[st.Location] = entry
	}

	resp := make([]statusResp, 0, len(byLocation))
	for _, s := range h.registry.All() {
		resp = append(resp, byLocation[s.Name])
		delete(byLocation, s.Name)
	}
	for _, entry := range byLocation {
		resp = append(resp, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{"statuses": resp})
}

// listReports returns the most recent reports, newest first.
// ?limit= caps the page size; the store clamps out-of-range values.
func (h *handlers) listReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	reports, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent reports query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to load reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// submitReport handles the single-shot dashboard form.
func (h *handlers) submitReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Location       string `json:"location"`
		CrowdLevel     string `json:"crowd_level"`
		SafetyConcern  string `json:"safety_concern"`
		AdditionalInfo string `json:"additional_info"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	reply, err := h.sessions.Submit(r.Context(), webActorPrefix+clientIP(r, h.trustProxy), report.Submission{
		Location:       req.Location,
		CrowdLevel:     req.CrowdLevel,
		Concern:        req.SafetyConcern,
		AdditionalInfo: req.AdditionalInfo,
	})
	if err != nil {
		switch {
		case errors.Is(err, report.ErrUnknownLocation),
			errors.Is(err, report.ErrUnknownCrowdLevel),
			errors.Is(err, report.ErrUnknownConcern):
			writeError(w, http.StatusUnprocessableEntity, "invalid_report", err.Error())
		default:
			h.logger.Error("report submission failed", "error", err)
			writeError(w, http.StatusInternalServerError, "storage_error", "failed to store report")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"report":       reply.Report,
		"analysis":     reply.Analysis,
		"confirmation": reply.Text,
	})
}

// intakeRequest identifies an actor for the stepwise intake endpoints.
type intakeRequest struct {
	Actor string `json:"actor"`
	Input string `json:"input"`
}

// intakeReply mirrors report.Reply for JSON transport.
type intakeReply struct {
	Text     string         `json:"text"`
	Options  []string       `json:"options,omitempty"`
	Rejected bool           `json:"rejected,omitempty"`
	Done     bool           `json:"done,omitempty"`
	Report   *report.Report `json:"report,omitempty"`
	Analysis string         `json:"analysis,omitempty"`
}

func toIntakeReply(r report.Reply) intakeReply {
	return intakeReply{
		Text:     r.Text,
		Options:  r.Options,
		Rejected: r.Rejected,
		Done:     r.Done,
		Report:   r.Report,
		Analysis: r.Analysis,
	}
}

// intakeBegin starts (or restarts) a stepwise intake for the actor.
func (h *handlers) intakeBegin(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actor, ok := intakeActor(w, req.Actor)
	if !ok {
		return
	}

	reply := h.sessions.Begin(actor)
	writeJSON(w, http.StatusOK, toIntakeReply(reply))
}

// intakeInput feeds one input to the actor's intake session.
func (h *handlers) intakeInput(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actor, ok := intakeActor(w, req.Actor)
	if !ok {
		return
	}

	reply, err := h.sessions.Input(r.Context(), actor, req.Input)
	if err != nil {
		h.logger.Error("intake input failed", "actor", actor, "error", err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to store report")
		return
	}

	writeJSON(w, http.StatusOK, toIntakeReply(reply))
}

// intakeCancel discards the actor's in-progress intake.
func (h *handlers) intakeCancel(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	actor, ok := intakeActor(w, req.Actor)
	if !ok {
		return
	}

	existed := h.sessions.Cancel(actor)
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": existed})
}

// insights returns best-effort safety advice for a stop.
func (h *handlers) insights(w http.ResponseWriter, r *http.Request) {
	stop := r.URL.Query().Get("stop")
	if stop == "" {
		writeError(w, http.StatusBadRequest, "missing_stop", "stop query parameter is required")
		return
	}
	if !h.registry.Contains(stop) {
		writeError(w, http.StatusNotFound, "unknown_stop", "unknown stop: "+stop)
		return
	}

	timeOfDay := r.URL.Query().Get("time")
	if timeOfDay == "" {
		timeOfDay = "now"
	}

	text, err := h.advisor.SafetyRecommendation(r.Context(), stop, timeOfDay)
	if err != nil {
		h.logger.Warn("safety recommendation unavailable", "stop", stop, "error", err)
	}
	writeJSON(w, http.StatusOK, adviceResponse(text))
}

// route returns a best-effort route suggestion between two stops.
func (h *handlers) route(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "missing_stops", "from and to are required")
		return
	}

	text, err := h.advisor.RouteSuggestion(r.Context(), req.From, req.To)
	if err != nil {
		h.logger.Warn("route suggestion unavailable", "from", req.From, "to", req.To, "error", err)
	}
	writeJSON(w, http.StatusOK, adviceResponse(text))
}

// emergency returns best-effort emergency guidance.
func (h *handlers) emergency(w http.ResponseWriter, r *http.Request) {
	text, err := h.advisor.EmergencyGuidance(r.Context())
	if err != nil {
		h.logger.Warn("emergency guidance unavailable", "error", err)
	}
	writeJSON(w, http.StatusOK, adviceResponse(text))
}

// adviceResponse wraps advisor output; empty text means the advisor was
// unavailable and the client should fall back to static guidance.
func adviceResponse(text string) map[string]any {
	return map[string]any{
		"advice":    text,
		"available": text != "",
	}
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return false
	}
	return true
}

// intakeActor validates and namespaces the caller-supplied actor ID.
func intakeActor(w http.ResponseWriter, raw string) (string, bool) {
	actor := strings.TrimSpace(raw)
	if actor == "" {
		writeError(w, http.StatusBadRequest, "missing_actor", "actor is required")
		return "", false
	}
	return webActorPrefix + actor, true
}
