package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(event, payload string) Frame {
	f := Frame{Event: event, Room: "ABC123"}
	if payload != "" {
		f.Payload = json.RawMessage(payload)
	}
	return f
}

func TestDecodeEvent_ParticipantConnected(t *testing.T) {
	ev, err := DecodeEvent(frame("participant_connected", `{"user_id":7,"name":"ana","role":"participant"}`))
	require.NoError(t, err)

	assert.Equal(t, KindParticipantConnected, ev.Kind)
	assert.Equal(t, "ABC123", ev.Room)
	require.NotNil(t, ev.User)
	assert.Equal(t, 7, ev.User.UserID)
	assert.Equal(t, "ana", ev.User.Name)
}

func TestDecodeEvent_OnlineList(t *testing.T) {
	ev, err := DecodeEvent(frame("online_list", `[{"user_id":1,"name":"a","role":"host"},{"user_id":2,"name":"b","role":"participant"}]`))
	require.NoError(t, err)

	require.Len(t, ev.Users, 2)
	assert.Equal(t, 1, ev.Users[0].UserID)
	assert.Equal(t, "host", ev.Users[0].Role)
}

func TestDecodeEvent_NewQuestion(t *testing.T) {
	ev, err := DecodeEvent(frame("new_question", `{"id":12,"room_id":3,"text":"2+2?","points":50}`))
	require.NoError(t, err)

	require.NotNil(t, ev.Question)
	assert.Equal(t, 12, ev.Question.ID)
	assert.Equal(t, "2+2?", ev.Question.Text)
	assert.Equal(t, 50, ev.Question.Points)
}

func TestDecodeEvent_QuestionClosedWithAndWithoutID(t *testing.T) {
	ev, err := DecodeEvent(frame("question_closed", `{"id":12}`))
	require.NoError(t, err)
	assert.Equal(t, 12, ev.ClosedQuestionID)

	ev, err = DecodeEvent(frame("question_closed", ""))
	require.NoError(t, err)
	assert.Equal(t, 0, ev.ClosedQuestionID)
}

func TestDecodeEvent_Kicked(t *testing.T) {
	ev, err := DecodeEvent(frame("participant_kicked", `{"user_id":9}`))
	require.NoError(t, err)
	assert.Equal(t, 9, ev.KickedUserID)
}

func TestDecodeEvent_SignalKindsCarryNoPayload(t *testing.T) {
	for _, kind := range []string{"score_update", "session_started", "session_ended", "answer_correct"} {
		ev, err := DecodeEvent(frame(kind, ""))
		require.NoError(t, err, kind)
		assert.Equal(t, Kind(kind), ev.Kind)
	}
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	_, err := DecodeEvent(frame("server_maintenance", `{}`))
	assert.Error(t, err)
}

func TestDecodeEvent_MalformedPayload(t *testing.T) {
	_, err := DecodeEvent(frame("online_list", `{"not":"an array"}`))
	assert.Error(t, err)

	_, err = DecodeEvent(frame("new_question", `[1,2,3]`))
	assert.Error(t, err)
}
