package model

import (
	"sort"
	"time"
)

// SessionView is a session joined with its containment context for
// display. The joins are indexed map lookups over the flat snapshot,
// not tree walks.
type SessionView struct {
	Session    *Session
	Stage      *Stage
	Case       *Case
	Client     *Client
	CaseTitle  string
	ClientName string
}

// AllSessions returns every session with its stage, case, and client
// resolved, sorted by date then id for deterministic output. Sessions
// whose stage chain is broken (dangling parent id) are still included
// with nil context so a half-synced snapshot never hides data.
func (s *Snapshot) AllSessions() []SessionView {
	views := make([]SessionView, 0, len(s.Sessions))
	for _, sess := range s.Sessions {
		v := SessionView{Session: sess}
		if st, ok := s.Stages[sess.StageID]; ok {
			v.Stage = st
			if c, ok := s.Cases[st.CaseID]; ok {
				v.Case = c
				v.CaseTitle = c.Title
				if cl, ok := s.Clients[c.ClientID]; ok {
					v.Client = cl
					v.ClientName = cl.Name
				}
			}
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].Session.Date.Equal(views[j].Session.Date) {
			return views[i].Session.Date.Before(views[j].Session.Date)
		}
		return views[i].Session.ID < views[j].Session.ID
	})
	return views
}

// UnpostponedSessions returns sessions that demand attention: not
// postponed, dated before today, and belonging to a stage with no
// decision yet. A session whose stage is missing is excluded (no way
// to tell whether the stage is decided).
func (s *Snapshot) UnpostponedSessions(today time.Time) []SessionView {
	dayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	var views []SessionView
	for _, v := range s.AllSessions() {
		if v.Session.Postponed {
			continue
		}
		if !v.Session.Date.Before(dayStart) {
			continue
		}
		if v.Stage == nil || v.Stage.DecisionDate != nil {
			continue
		}
		views = append(views, v)
	}
	return views
}
