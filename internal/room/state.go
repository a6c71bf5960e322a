package room

import (
	"github.com/ale/quickscore/internal/rest"
	"github.com/ale/quickscore/internal/stream"
)

// Status is the room lifecycle. It only moves forward:
// lobby -> active -> ended.
type Status string

const (
	StatusLobby  Status = "lobby"
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// statusFromWire maps the server's status strings onto the lifecycle.
// The server has used both "finished" and "ended" for terminal rooms.
func statusFromWire(s string) Status {
	switch s {
	case "active":
		return StatusActive
	case "finished", "ended":
		return StatusEnded
	default:
		return StatusLobby
	}
}

// EndReason distinguishes how a session reached StatusEnded locally.
type EndReason string

const (
	EndReasonNone   EndReason = ""
	EndReasonClosed EndReason = "session_ended"
	// EndReasonKicked means the local user was removed by the host; the
	// room keeps running for everyone else.
	EndReasonKicked EndReason = "kicked"
)

// Participant is a row of the durable roster.
type Participant struct {
	UserID int
	Name   string
	Score  int
}

// Question is the room's active question. At most one exists at a time.
type Question struct {
	ID     int
	RoomID int
	Text   string
	Points int
	Status string
}

// State is the authoritative client-side view of one room. It is owned and
// mutated exclusively by the Session loop; everyone else sees copies.
type State struct {
	Code   string
	HostID int
	Status Status

	// Participants is the durable roster; Online is who currently has a
	// live stream connection. Presence does not require roster membership,
	// a connect event may precede the roster refresh that lists the user.
	Participants map[int]Participant
	Online       map[int]stream.OnlineUser

	ActiveQuestion *Question
	Ranking        []rest.RankingEntry

	Phase stream.Phase

	// Err is the transient, user-visible error of the last failed action.
	// Cleared on the next successful action.
	Err        string
	LastAnswer *rest.AnswerResult
	EndReason  EndReason
}

func newState() State {
	return State{
		Participants: make(map[int]Participant),
		Online:       make(map[int]stream.OnlineUser),
	}
}

// applyRoom merges a REST room snapshot. Status transitions coming from a
// snapshot are as authoritative as stream events; roster is a full replace.
func (s *State) applyRoom(r *rest.Room) {
	s.Code = r.Code
	s.HostID = r.HostID
	s.Status = statusFromWire(r.Status)
	if s.Status == StatusEnded {
		s.ActiveQuestion = nil
	}
	s.Participants = make(map[int]Participant, len(r.Participants))
	for _, p := range r.Participants {
		s.Participants[p.UserID] = Participant{
			UserID: p.UserID,
			Name:   p.DisplayName(),
			Score:  p.Points,
		}
	}
}

// applySessionStarted and applySessionEnded are idempotent: both sources
// (REST result and stream event) agree on intent, so the transition is
// applied unconditionally and a duplicate is a no-op.
func (s *State) applySessionStarted() {
	s.Status = StatusActive
	if s.EndReason == EndReasonClosed {
		s.EndReason = EndReasonNone
	}
}

func (s *State) applySessionEnded() {
	s.Status = StatusEnded
	s.ActiveQuestion = nil
	if s.EndReason == EndReasonNone {
		s.EndReason = EndReasonClosed
	}
}

// applyOnlineList replaces the presence set wholesale. This is what makes
// missed connect/disconnect deltas across a reconnect harmless.
func (s *State) applyOnlineList(users []stream.OnlineUser) {
	s.Online = make(map[int]stream.OnlineUser, len(users))
	for _, u := range users {
		s.Online[u.UserID] = u
	}
}

func (s *State) applyParticipantConnected(u stream.OnlineUser) {
	s.Online[u.UserID] = u
}

func (s *State) applyParticipantDisconnected(userID int) {
	delete(s.Online, userID)
}

// applyNewQuestion unconditionally replaces the active question: a later
// question always supersedes an earlier one, the server's delivery order is
// the ordering truth for this field. A question implies a running session.
func (s *State) applyNewQuestion(q *stream.QuestionPush) {
	s.ActiveQuestion = &Question{
		ID:     q.ID,
		RoomID: q.RoomID,
		Text:   q.Text,
		Points: q.Points,
		Status: "open",
	}
	s.Status = StatusActive
	s.LastAnswer = nil
}

// applyQuestionClosed clears the active question, unless the close names a
// different question id: a stale close racing a just-delivered new question
// must not clear the newer one. A close without an id clears whatever is held.
func (s *State) applyQuestionClosed(questionID int) {
	if s.ActiveQuestion == nil {
		return
	}
	if questionID != 0 && questionID != s.ActiveQuestion.ID {
		return
	}
	s.ActiveQuestion = nil
}

// applyKicked handles participant_kicked. A kick of the local user ends the
// session locally right away, without waiting for session_ended or REST
// confirmation; anyone else is just dropped from presence.
func (s *State) applyKicked(userID, selfID int) {
	if userID == selfID {
		s.Status = StatusEnded
		s.ActiveQuestion = nil
		s.EndReason = EndReasonKicked
		return
	}
	delete(s.Online, userID)
}

// snapshot returns a copy safe to hand outside the session loop.
func (s *State) snapshot() State {
	out := *s
	out.Participants = make(map[int]Participant, len(s.Participants))
	for id, p := range s.Participants {
		out.Participants[id] = p
	}
	out.Online = make(map[int]stream.OnlineUser, len(s.Online))
	for id, u := range s.Online {
		out.Online[id] = u
	}
	if s.ActiveQuestion != nil {
		q := *s.ActiveQuestion
		out.ActiveQuestion = &q
	}
	if s.LastAnswer != nil {
		a := *s.LastAnswer
		out.LastAnswer = &a
	}
	out.Ranking = append([]rest.RankingEntry(nil), s.Ranking...)
	return out
}
