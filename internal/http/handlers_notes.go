package http

import (
	"context"
	"net/http"

	"lifelog/internal/autosave"
	"lifelog/internal/core"
	"lifelog/internal/log"
)

type noteRequest struct {
	Content string `json:"content"`
}

type noteResponse struct {
	Topic   core.NoteTopic `json:"topic"`
	Content string         `json:"content"`
	Dirty   bool           `json:"dirty"`
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	topic, ok := s.topic(w, r)
	if !ok {
		return
	}
	NewResponse().JSON(s.noteBody(topic)).Send(w)
}

// handleTypeNote records an edit; the save runs once edits pause for the
// autosave delay.
func (s *Server) handleTypeNote(w http.ResponseWriter, r *http.Request) {
	topic, ok := s.topic(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := DecodeJSON(r, &req); err != nil {
		s.fail(w, r, errBadBody)
		return
	}
	s.editor(topic).Type(req.Content)
	NewResponse().Status(http.StatusAccepted).JSON(s.noteBody(topic)).Send(w)
}

// handleSaveNote saves the current content right away, cancelling the
// scheduled save.
func (s *Server) handleSaveNote(w http.ResponseWriter, r *http.Request) {
	topic, ok := s.topic(w, r)
	if !ok {
		return
	}
	err := s.editor(topic).SaveNow(r.Context())
	if err != nil && !isUnconfirmed(err) {
		s.fail(w, r, err)
		return
	}
	NewResponse().Status(writeStatus(err, http.StatusOK)).JSON(s.noteBody(topic)).Send(w)
}

func (s *Server) topic(w http.ResponseWriter, r *http.Request) (core.NoteTopic, bool) {
	topic := core.NoteTopic(r.PathValue("topic"))
	if !topic.Valid() {
		s.fail(w, r, core.ErrInvalidTopic)
		return "", false
	}
	return topic, true
}

// noteBody shows unsaved edits when there are any, otherwise the mirrored
// note.
func (s *Server) noteBody(topic core.NoteTopic) noteResponse {
	body := noteResponse{Topic: topic, Content: s.deps.Notes.Note(topic)}
	s.mu.Lock()
	e, ok := s.editors[topic]
	s.mu.Unlock()
	if !ok {
		return body
	}
	st := e.Status()
	if st.Dirty || st.Saving {
		body.Content = e.Content()
	}
	body.Dirty = st.Dirty
	body.Status = st.Describe(s.now())
	if st.Err != nil {
		body.Error = "last save failed"
	}
	return body
}

// editor returns the autosave editor of topic, creating it from the
// mirrored note on first use.
func (s *Server) editor(topic core.NoteTopic) *autosave.Editor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.editors[topic]; ok {
		return e
	}
	e := autosave.New(func(ctx context.Context, content string) error {
		return s.deps.Notes.Save(ctx, topic, content)
	},
		autosave.WithDelay(s.deps.NoteAutosaveDelay),
		autosave.WithClock(s.now),
		autosave.WithLogger(s.logger.With(log.FieldTopic, string(topic))),
	)
	e.Load(s.deps.Notes.Note(topic))
	s.editors[topic] = e
	return e
}
