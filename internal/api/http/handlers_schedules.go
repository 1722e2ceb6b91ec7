package apihttp

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"radiostream/internal/domain"
	"radiostream/internal/scheduler"
)

type scheduleRequest struct {
	Name      string `json:"name"`
	CronExpr  string `json:"cronExpr"`
	Volume    int    `json:"volume"`
	SongCount int    `json:"songCount"`
	Active    bool   `json:"active"`
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSchedules(w, r)
	case http.MethodPost:
		s.createSchedule(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleScheduleByID(w http.ResponseWriter, r *http.Request) {
	id := domain.ScheduleID(strings.Trim(pathSuffix(r.URL.Path, "/schedules/"), "/"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "schedule id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		schedule, err := s.schedules.Get(r.Context(), id)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, schedule)
	case http.MethodPut, http.MethodPatch:
		s.updateSchedule(w, r, id)
	case http.MethodDelete:
		s.deleteSchedule(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.schedules.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules})
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	schedule := domain.Schedule{
		ID:        domain.ScheduleID(uuid.NewString()),
		Name:      req.Name,
		CronExpr:  req.CronExpr,
		Volume:    req.Volume,
		SongCount: req.SongCount,
		Active:    req.Active,
	}
	if err := schedule.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := scheduler.ValidateExpr(schedule.CronExpr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid cron expression: "+err.Error())
		return
	}

	if err := s.schedules.Create(r.Context(), schedule); err != nil {
		writeRepoError(w, err)
		return
	}
	if schedule.Active && s.scheduler != nil {
		if err := s.scheduler.AddJob(schedule); err != nil {
			s.logger.Error("schedule job registration failed",
				slog.String("scheduleId", string(schedule.ID)),
				slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusCreated, schedule)
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request, id domain.ScheduleID) {
	existing, err := s.schedules.Get(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	req := scheduleRequest{
		Name:      existing.Name,
		CronExpr:  existing.CronExpr,
		Volume:    existing.Volume,
		SongCount: existing.SongCount,
		Active:    existing.Active,
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	updated := existing
	updated.Name = req.Name
	updated.CronExpr = req.CronExpr
	updated.Volume = req.Volume
	updated.SongCount = req.SongCount
	updated.Active = req.Active

	if err := updated.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := scheduler.ValidateExpr(updated.CronExpr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid cron expression: "+err.Error())
		return
	}

	if err := s.schedules.Update(r.Context(), updated); err != nil {
		writeRepoError(w, err)
		return
	}
	if s.scheduler != nil {
		if err := s.scheduler.Reload(updated); err != nil {
			s.logger.Error("schedule job reload failed",
				slog.String("scheduleId", string(id)),
				slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request, id domain.ScheduleID) {
	if err := s.schedules.Delete(r.Context(), id); err != nil {
		writeRepoError(w, err)
		return
	}
	if s.scheduler != nil {
		s.scheduler.RemoveJob(id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
