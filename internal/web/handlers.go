package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/rootcause/internal/db"
	"github.com/lucasnoah/rootcause/internal/pipeline"
)

const defaultRunLimit = 50

// RunDetail is a run with its attempts, audit trail and, when saved, the
// final state.
type RunDetail struct {
	Run      db.Run            `json:"run"`
	Attempts []db.StageAttempt `json:"attempts"`
	Messages []string          `json:"messages"`
	State    *pipeline.State   `json:"state,omitempty"`
}

type dashboardData struct {
	Repo  string
	Runs  []db.Run
	Stats *db.Stats
}

func relTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func (s *Server) execTemplate(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.logger.Error("render template", zap.Error(err))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func runLimit(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n >= 0 {
		return n
	}
	return defaultRunLimit
}

// runDetail loads everything known about one run, or nil if it does not
// exist.
func (s *Server) runDetail(id string) (*RunDetail, error) {
	run, err := s.db.GetRun(id)
	if err != nil || run == nil {
		return nil, err
	}
	attempts, err := s.db.GetStageAttempts(id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.db.GetMessages(id)
	if err != nil {
		return nil, err
	}
	d := &RunDetail{Run: *run, Attempts: attempts, Messages: msgs}
	if s.store != nil {
		if st, err := s.store.Get(id); err == nil {
			d.State = st
		}
	}
	return d, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	runs, err := s.db.ListRuns(repo, runLimit(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stats, err := s.db.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.execTemplate(w, s.dashboardTmpl, dashboardData{Repo: repo, Runs: runs, Stats: stats})
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.runDetail(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if d == nil {
		http.NotFound(w, r)
		return
	}
	s.execTemplate(w, s.runTmpl, d)
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(r.URL.Query().Get("repo"), runLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := s.runDetail(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if d == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("run %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.db.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}
