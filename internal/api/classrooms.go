package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/schoolhub-core/internal/audit"
	"github.com/nerrad567/schoolhub-core/internal/classroom"
)

type createClassroomRequest struct {
	Name string `json:"name"`
}

// handleListClassrooms lists classrooms by id, ascending unless
// order_by=desc.
func (s *Server) handleListClassrooms(w http.ResponseWriter, r *http.Request) {
	order := classroom.OrderAsc
	switch strings.ToLower(r.URL.Query().Get("order_by")) {
	case "", "asc":
	case "desc":
		order = classroom.OrderDesc
	default:
		writeValidationError(w, "order_by must be asc or desc")
		return
	}

	rooms, err := s.classrooms.List(r.Context(), order)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"classrooms": rooms,
		"count":      len(rooms),
	})
}

func (s *Server) handleCreateClassroom(w http.ResponseWriter, r *http.Request) {
	admin, _ := userFromContext(r.Context())

	var req createClassroomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	room, err := s.classrooms.Create(r.Context(), req.Name)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionCreate, audit.EntityClassroom, strconv.FormatInt(room.ID, 10), admin.UUID, map[string]any{
		"name": room.Name,
	})
	writeJSON(w, http.StatusCreated, room)
}

// handleDeleteClassroom removes a classroom. Students in it are left
// without one.
func (s *Server) handleDeleteClassroom(w http.ResponseWriter, r *http.Request) {
	admin, _ := userFromContext(r.Context())

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeValidationError(w, "classroom id must be a positive integer")
		return
	}

	students, err := s.classrooms.CountStudents(r.Context(), id)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if err := s.classrooms.Delete(r.Context(), id); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionDelete, audit.EntityClassroom, strconv.FormatInt(id, 10), admin.UUID, map[string]any{
		"students_unassigned": students,
	})
	w.WriteHeader(http.StatusNoContent)
}
