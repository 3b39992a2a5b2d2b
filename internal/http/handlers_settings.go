package http

import "net/http"

// The settings modal is per-session presentation state: a boolean in
// the session store with open, close and toggle transitions. Every
// mutation re-renders the modal fragment so the page always reflects
// the stored state.

type settingsModalView struct {
	Open     bool
	Username string
}

func (s *Server) renderSettingsModal(w http.ResponseWriter, r *http.Request, open bool) {
	s.render(w, r, "settings_modal.html", settingsModalView{
		Open:     open,
		Username: s.uiUser.Username,
	})
}

func (s *Server) handleSettingsModal(w http.ResponseWriter, r *http.Request) {
	session, err := s.uiSession(w, r)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	s.renderSettingsModal(w, r, s.sessions.SettingsOpen(session))
}

func (s *Server) handleSettingsOpen(w http.ResponseWriter, r *http.Request) {
	session, err := s.uiSession(w, r)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	s.sessions.OpenSettings(session)
	s.renderSettingsModal(w, r, true)
}

func (s *Server) handleSettingsClose(w http.ResponseWriter, r *http.Request) {
	session, err := s.uiSession(w, r)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	s.sessions.CloseSettings(session)
	s.renderSettingsModal(w, r, false)
}

func (s *Server) handleSettingsToggle(w http.ResponseWriter, r *http.Request) {
	session, err := s.uiSession(w, r)
	if err != nil {
		s.uiError(w, r, err)
		return
	}
	s.renderSettingsModal(w, r, s.sessions.ToggleSettings(session))
}
