package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skolbridge/skolbridge/internal/coordinator"
	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/internal/service"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown endpoint")
		return
	}

	info := map[string]interface{}{
		"name":    "SkolBridge API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":      "/health",
			"children":    "/api/v1/children",
			"marks":       "/api/v1/marks",
			"messages":    "/api/v1/messages",
			"noticeboard": "/api/v1/noticeboard",
			"timetable":   "/api/v1/timetable",
		},
	}
	writeJSON(w, http.StatusOK, info)
}

// handleHealth reports process health plus per-coordinator snapshot age.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "healthy",
		"uptime": s.Uptime().String(),
	}

	snapshots := map[string]interface{}{}
	if s.deps.Marks != nil {
		snapshots["marks"] = snapshotInfo(s.deps.Marks.Data() != nil, func() interface{} {
			return s.deps.Marks.Data().FetchedAt
		})
	}
	if s.deps.Messages != nil {
		snapshots["messages"] = snapshotInfo(s.deps.Messages.Data() != nil, func() interface{} {
			return s.deps.Messages.Data().FetchedAt
		})
	}
	if s.deps.Noticeboard != nil {
		snapshots["noticeboard"] = snapshotInfo(s.deps.Noticeboard.Data() != nil, func() interface{} {
			return s.deps.Noticeboard.Data().FetchedAt
		})
	}
	if s.deps.Timetable != nil {
		snapshots["timetable"] = snapshotInfo(s.deps.Timetable.Data() != nil, func() interface{} {
			return s.deps.Timetable.Data().FetchedAt
		})
	}
	status["snapshots"] = snapshots

	writeJSON(w, http.StatusOK, status)
}

// handleLive is the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func snapshotInfo(present bool, fetchedAt func() interface{}) map[string]interface{} {
	if !present {
		return map[string]interface{}{"present": false}
	}
	return map[string]interface{}{
		"present":    true,
		"fetched_at": fetchedAt(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListChildren handles GET /api/v1/children
func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	type childInfo struct {
		Key         string `json:"key"`
		DisplayName string `json:"display_name"`
		School      string `json:"school"`
		Server      string `json:"server"`
	}

	out := []childInfo{}
	if s.deps.Marks != nil {
		if snap := s.deps.Marks.Data(); snap != nil {
			for key, cm := range snap.Children {
				out = append(out, childInfo{
					Key:         key.String(),
					DisplayName: cm.Child.DisplayName,
					School:      cm.Child.School,
					Server:      cm.Child.Server,
				})
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetMarks handles GET /api/v1/marks?child_key=...&limit=...
func (s *Server) handleGetMarks(w http.ResponseWriter, r *http.Request) {
	key, ok := childKeyParam(w, r)
	if !ok {
		return
	}
	limit := getQueryParamInt(r, "limit", 0)

	result, err := s.deps.Marks.Select(key, limit)
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetSubjects handles GET /api/v1/marks/subjects?child_key=...
func (s *Server) handleGetSubjects(w http.ResponseWriter, r *http.Request) {
	key, ok := childKeyParam(w, r)
	if !ok {
		return
	}

	result, err := s.deps.Marks.Subjects(key)
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetMessages handles GET /api/v1/messages?child_key=...&limit=...
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	key, ok := childKeyParam(w, r)
	if !ok {
		return
	}
	limit := getQueryParamInt(r, "limit", 0)

	result, err := s.deps.Messages.Select(key, limit)
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetNoticeboard handles GET /api/v1/noticeboard?child_key=...&limit=...
func (s *Server) handleGetNoticeboard(w http.ResponseWriter, r *http.Request) {
	key, ok := childKeyParam(w, r)
	if !ok {
		return
	}
	limit := getQueryParamInt(r, "limit", 0)

	result, err := s.deps.Noticeboard.Select(key, limit)
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetTimetable handles GET /api/v1/timetable?child_key=...&week=current
func (s *Server) handleGetTimetable(w http.ResponseWriter, r *http.Request) {
	key, ok := childKeyParam(w, r)
	if !ok {
		return
	}

	var which coordinator.TimetableSlice
	switch week := getQueryParam(r, "week", "current"); week {
	case "current":
		which = coordinator.TimetableCurrent
	case "next":
		which = coordinator.TimetableNext
	case "previous":
		which = coordinator.TimetablePrevious
	case "permanent":
		which = coordinator.TimetablePermanent
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "week must be one of current, next, previous, permanent")
		return
	}

	result, err := s.deps.Timetable.Week(key, which)
	if err != nil {
		writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleMarkSeen handles POST /api/v1/actions/mark-seen
func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Coordinator string `json:"coordinator"`
		ChildKey    string `json:"child_key"`
		RecordID    string `json:"record_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	cmd := service.MarkSeenCommand{
		Coordinator: service.CoordinatorName(body.Coordinator),
		ChildKey:    children.Key(body.ChildKey),
		RecordID:    body.RecordID,
	}
	if err := s.deps.Actions.MarkSeen(r.Context(), cmd); err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// handleAcknowledgeSubject handles POST /api/v1/actions/acknowledge-subject
func (s *Server) handleAcknowledgeSubject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChildKey   string `json:"child_key"`
		SubjectKey string `json:"subject_key"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	cmd := service.AcknowledgeSubjectCommand{
		ChildKey:   children.Key(body.ChildKey),
		SubjectKey: body.SubjectKey,
	}
	count, err := s.deps.Actions.AcknowledgeSubject(r.Context(), cmd)
	if err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "acknowledged",
		"marks_signed": count,
	})
}

// handleForceRefresh handles POST /api/v1/actions/refresh
func (s *Server) handleForceRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Coordinator string `json:"coordinator"`
	}
	// An empty body means "refresh everything".
	if r.ContentLength > 0 && !decodeBody(w, r, &body) {
		return
	}

	cmd := service.ForceRefreshCommand{
		Coordinator: service.CoordinatorName(body.Coordinator),
	}
	if err := s.deps.Actions.ForceRefresh(r.Context(), cmd); err != nil {
		s.writeActionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HANDLER HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// childKeyParam extracts and validates the child_key query parameter.
func childKeyParam(w http.ResponseWriter, r *http.Request) (children.Key, bool) {
	key := children.Key(getQueryParam(r, "child_key", ""))
	if !key.IsValid() {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "child_key is required in the form server|user_id")
		return "", false
	}
	return key, true
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return false
	}
	return true
}

// writeSnapshotError maps snapshot lookup failures to HTTP statuses.
func writeSnapshotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNoSnapshot):
		writeJSONError(w, http.StatusServiceUnavailable, "no_snapshot", "No data fetched yet, try again after the first poll cycle")
	case errors.Is(err, shared.ErrUnknownChildKey):
		writeJSONError(w, http.StatusNotFound, "unknown_child", "No child with that key")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// writeActionError maps action failures to HTTP statuses.
func (s *Server) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNoSnapshot), errors.Is(err, shared.ErrUnknownChildKey):
		writeSnapshotError(w, err)
	case isValidationError(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("action failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", getRequestID(r.Context()),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Action failed")
	}
}

// isValidationError recognizes command validation failures by their
// prefixed messages.
func isValidationError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"mark_seen:", "acknowledge_subject:", "force_refresh:"} {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
