package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event %q", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouter_FanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan Frame, 8)
	r := NewRouter()
	go r.Run(ctx, frames)

	a := r.Subscribe(KindSessionStarted)
	b := r.Subscribe(KindSessionStarted)
	defer a.Cancel()
	defer b.Cancel()

	frames <- Frame{Event: "session_started", Room: "R1"}

	// No queue semantics: both subscribers get their own copy.
	assert.Equal(t, KindSessionStarted, recvEvent(t, a).Kind)
	assert.Equal(t, KindSessionStarted, recvEvent(t, b).Kind)
}

func TestRouter_KindFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan Frame, 8)
	r := NewRouter()
	go r.Run(ctx, frames)

	questions := r.Subscribe(KindNewQuestion, KindQuestionClosed)
	defer questions.Cancel()

	frames <- Frame{Event: "session_started", Room: "R1"}
	frames <- Frame{Event: "new_question", Room: "R1", Payload: json.RawMessage(`{"id":1,"room_id":1,"text":"q","points":10}`)}

	ev := recvEvent(t, questions)
	assert.Equal(t, KindNewQuestion, ev.Kind)
	require.NotNil(t, ev.Question)
	assertNoEvent(t, questions)
}

func TestRouter_UnknownAndMalformedFramesIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan Frame, 8)
	r := NewRouter()
	go r.Run(ctx, frames)

	all := r.Subscribe()
	defer all.Cancel()

	frames <- Frame{Event: "totally_new_server_event", Room: "R1"}
	frames <- Frame{Event: "online_list", Room: "R1", Payload: json.RawMessage(`"garbage"`)}
	frames <- Frame{Event: "session_ended", Room: "R1"}

	// Only the well-formed known frame comes through; the rest are dropped
	// without killing the router.
	assert.Equal(t, KindSessionEnded, recvEvent(t, all).Kind)
}

func TestRouter_CancelStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan Frame, 8)
	r := NewRouter()
	go r.Run(ctx, frames)

	sub := r.Subscribe(KindScoreUpdate)
	frames <- Frame{Event: "score_update", Room: "R1"}
	recvEvent(t, sub)

	sub.Cancel()
	frames <- Frame{Event: "score_update", Room: "R1"}
	assertNoEvent(t, sub)
}
