package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ale/quickscore/internal/rest"
	"github.com/ale/quickscore/internal/stream"
)

func TestState_StatusTransitionsIdempotent(t *testing.T) {
	s := newState()

	// Whatever order and repetition count the events arrive in, status is
	// the target of the last one applied.
	s.applySessionStarted()
	s.applySessionStarted()
	assert.Equal(t, StatusActive, s.Status)

	s.applySessionEnded()
	s.applySessionEnded()
	assert.Equal(t, StatusEnded, s.Status)

	s.applySessionStarted()
	assert.Equal(t, StatusActive, s.Status)
}

func TestState_SessionEndedClearsQuestion(t *testing.T) {
	s := newState()
	s.applyNewQuestion(&stream.QuestionPush{ID: 4, Text: "q", Points: 10})
	require.NotNil(t, s.ActiveQuestion)

	s.applySessionEnded()
	assert.Nil(t, s.ActiveQuestion)
	assert.Equal(t, StatusEnded, s.Status)
}

func TestState_NewQuestionAlwaysReplaces(t *testing.T) {
	s := newState()
	s.applyNewQuestion(&stream.QuestionPush{ID: 1, Text: "first", Points: 10})
	s.applyNewQuestion(&stream.QuestionPush{ID: 2, Text: "second", Points: 20})

	require.NotNil(t, s.ActiveQuestion)
	assert.Equal(t, 2, s.ActiveQuestion.ID)
	// A question in flight implies a running session.
	assert.Equal(t, StatusActive, s.Status)
}

func TestState_QuestionClosedGuardsOnID(t *testing.T) {
	s := newState()
	s.applyNewQuestion(&stream.QuestionPush{ID: 7, Text: "q", Points: 10})

	// A stale close for an older question must not clear the newer one.
	s.applyQuestionClosed(5)
	require.NotNil(t, s.ActiveQuestion)
	assert.Equal(t, 7, s.ActiveQuestion.ID)

	s.applyQuestionClosed(7)
	assert.Nil(t, s.ActiveQuestion)

	// A close without an id clears whatever is held.
	s.applyNewQuestion(&stream.QuestionPush{ID: 8})
	s.applyQuestionClosed(0)
	assert.Nil(t, s.ActiveQuestion)
}

func TestState_PresenceSnapshotAndPatches(t *testing.T) {
	s := newState()

	s.applyOnlineList([]stream.OnlineUser{{UserID: 1, Name: "a"}})
	s.applyParticipantConnected(stream.OnlineUser{UserID: 2, Name: "b"})
	assert.Len(t, s.Online, 2)
	assert.Contains(t, s.Online, 1)
	assert.Contains(t, s.Online, 2)

	// A fresh snapshot is a full replace: the incremental join of 2 is
	// forgotten because the server's list is authoritative.
	s.applyOnlineList([]stream.OnlineUser{{UserID: 1, Name: "a"}})
	assert.Len(t, s.Online, 1)
	assert.Contains(t, s.Online, 1)

	s.applyParticipantDisconnected(1)
	assert.Empty(t, s.Online)
}

func TestState_PresenceDoesNotRequireRoster(t *testing.T) {
	s := newState()
	// A connect for a user the roster has not caught up with yet is still
	// recorded.
	s.applyParticipantConnected(stream.OnlineUser{UserID: 99, Name: "new"})
	assert.Contains(t, s.Online, 99)
	assert.NotContains(t, s.Participants, 99)
}

func TestState_SelfKickEndsLocally(t *testing.T) {
	s := newState()
	s.applySessionStarted()
	s.applyNewQuestion(&stream.QuestionPush{ID: 1})

	s.applyKicked(42, 42)
	assert.Equal(t, StatusEnded, s.Status)
	assert.Equal(t, EndReasonKicked, s.EndReason)
	assert.Nil(t, s.ActiveQuestion)
}

func TestState_OtherKickOnlyDropsPresence(t *testing.T) {
	s := newState()
	s.applySessionStarted()
	s.applyParticipantConnected(stream.OnlineUser{UserID: 7, Name: "bye"})

	s.applyKicked(7, 42)
	assert.Equal(t, StatusActive, s.Status)
	assert.NotContains(t, s.Online, 7)
}

func TestState_ApplyRoomSnapshot(t *testing.T) {
	s := newState()
	s.applyRoom(&rest.Room{
		Code:   "ABC123",
		HostID: 1,
		Status: "active",
		Participants: []rest.Participant{
			{UserID: 1, UserName: "host", Points: 0},
			{UserID: 2, Name: "legacy-name-field", Points: 30},
		},
	})

	assert.Equal(t, "ABC123", s.Code)
	assert.Equal(t, StatusActive, s.Status)
	require.Len(t, s.Participants, 2)
	assert.Equal(t, "legacy-name-field", s.Participants[2].Name)
	assert.Equal(t, 30, s.Participants[2].Score)

	// "finished" and "ended" both map to the terminal status.
	s.applyNewQuestion(&stream.QuestionPush{ID: 1})
	s.applyRoom(&rest.Room{Code: "ABC123", Status: "finished"})
	assert.Equal(t, StatusEnded, s.Status)
	assert.Nil(t, s.ActiveQuestion)
}

func TestState_SnapshotIsIsolated(t *testing.T) {
	s := newState()
	s.applyOnlineList([]stream.OnlineUser{{UserID: 1}})
	s.applyNewQuestion(&stream.QuestionPush{ID: 3})

	snap := s.snapshot()
	s.applyParticipantConnected(stream.OnlineUser{UserID: 2})
	s.ActiveQuestion.ID = 99

	assert.Len(t, snap.Online, 1)
	assert.Equal(t, 3, snap.ActiveQuestion.ID)
}
