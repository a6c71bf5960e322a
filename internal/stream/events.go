package stream

import (
	"encoding/json"
	"fmt"
)

// Frame is the wire envelope for every inbound websocket message.
type Frame struct {
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Kind identifies a room event type pushed by the server.
type Kind string

const (
	KindScoreUpdate             Kind = "score_update"
	KindSessionStarted          Kind = "session_started"
	KindSessionEnded            Kind = "session_ended"
	KindParticipantConnected    Kind = "participant_connected"
	KindParticipantDisconnected Kind = "participant_disconnected"
	KindOnlineList              Kind = "online_list"
	KindParticipantKicked       Kind = "participant_kicked"
	KindNewQuestion             Kind = "new_question"
	KindQuestionClosed          Kind = "question_closed"
	KindAnswerCorrect           Kind = "answer_correct"
)

// knownKinds is the set of kinds this client understands. Frames with any
// other kind are ignored so newer servers can add events without breaking us.
var knownKinds = map[Kind]bool{
	KindScoreUpdate:             true,
	KindSessionStarted:          true,
	KindSessionEnded:            true,
	KindParticipantConnected:    true,
	KindParticipantDisconnected: true,
	KindOnlineList:              true,
	KindParticipantKicked:       true,
	KindNewQuestion:             true,
	KindQuestionClosed:          true,
	KindAnswerCorrect:           true,
}

// OnlineUser is the presence payload carried by participant_connected,
// participant_disconnected and online_list events.
type OnlineUser struct {
	UserID int    `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// QuestionPush is the payload of a new_question event.
type QuestionPush struct {
	ID     int    `json:"id"`
	RoomID int    `json:"room_id"`
	Text   string `json:"text"`
	Points int    `json:"points"`
}

// Event is a decoded inbound frame. Kind tells which payload field is set;
// signal-only kinds (score_update, session_started, session_ended,
// answer_correct) carry none.
type Event struct {
	Kind Kind
	Room string

	// participant_connected / participant_disconnected
	User *OnlineUser
	// online_list (full presence snapshot)
	Users []OnlineUser
	// participant_kicked
	KickedUserID int
	// new_question
	Question *QuestionPush
	// question_closed; zero when the server omits the id
	ClosedQuestionID int
}

// DecodeEvent parses a frame's payload into a typed Event. It returns an
// error for payloads that do not match the kind's expected shape; callers
// drop and log those frames rather than surfacing them.
func DecodeEvent(f Frame) (Event, error) {
	ev := Event{Kind: Kind(f.Event), Room: f.Room}

	switch ev.Kind {
	case KindParticipantConnected, KindParticipantDisconnected:
		var u OnlineUser
		if err := json.Unmarshal(f.Payload, &u); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", f.Event, err)
		}
		ev.User = &u

	case KindOnlineList:
		var users []OnlineUser
		if err := json.Unmarshal(f.Payload, &users); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", f.Event, err)
		}
		ev.Users = users

	case KindParticipantKicked:
		var p struct {
			UserID int `json:"user_id"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", f.Event, err)
		}
		ev.KickedUserID = p.UserID

	case KindNewQuestion:
		var q QuestionPush
		if err := json.Unmarshal(f.Payload, &q); err != nil {
			return Event{}, fmt.Errorf("decode %s payload: %w", f.Event, err)
		}
		ev.Question = &q

	case KindQuestionClosed:
		// Older servers send no payload here; when present it carries the
		// id of the question being closed.
		if len(f.Payload) > 0 {
			var p struct {
				ID int `json:"id"`
			}
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return Event{}, fmt.Errorf("decode %s payload: %w", f.Event, err)
			}
			ev.ClosedQuestionID = p.ID
		}

	case KindScoreUpdate, KindSessionStarted, KindSessionEnded, KindAnswerCorrect:
		// Signal only.

	default:
		return Event{}, fmt.Errorf("unknown event kind %q", f.Event)
	}

	return ev, nil
}
