package web

import (
	"bytes"
	"context"
	"net/http"

	"github.com/bassamadnan/replybot/review"
)

type page struct {
	Info           Info
	State          review.State
	Notices        []review.Notice
	RefreshSeconds int
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := page{Info: s.info}
	if loop, ok := s.existing(r); ok {
		data.State = loop.Snapshot()
		data.Notices = loop.TakeNotices()
	}
	if data.State.Monitoring {
		data.RefreshSeconds = refreshSeconds
	}

	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "dashboard.html", data); err != nil {
		s.log.Error().Err(err).Msg("rendering dashboard")
		http.Error(w, "could not render dashboard", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.session(w, r).StartMonitoring() && s.poller != nil {
		s.poller.Trigger()
	}
	back(w, r)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).StopMonitoring()
	back(w, r)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).Refresh(r.Context())
	back(w, r)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).Generate(r.Context(), r.PathValue("id"))
	back(w, r)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).Regenerate(r.Context())
	back(w, r)
}

// handleSend finishes the send even if the browser disconnects.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).Send(context.WithoutCancel(r.Context()))
	back(w, r)
}

func back(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
