package room

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ale/quickscore/internal/rest"
	"github.com/ale/quickscore/internal/stream"
)

// Identity is the local user, as issued at login.
type Identity struct {
	UserID int
	Name   string
	Role   string // "host" | "participant"
	Token  string
}

func (i Identity) IsHost() bool { return i.Role == "host" }

// Session owns the client-side view of one room. All mutations of the room
// state happen on its single loop goroutine: REST call results and stream
// events are both funneled there, so there are no concurrent writers and no
// locks around State. The UI reads snapshots from Snapshots.
//
// A Session is explicitly constructed and scoped to one room screen; it is
// discarded with Leave when the user exits the room.
type Session struct {
	gw      *rest.Client
	channel *stream.Channel
	router  *stream.Router
	sub     *stream.Subscription
	self    Identity

	ctx    context.Context
	cancel context.CancelFunc

	cmds      chan func()
	snapshots chan State

	// owned by the loop goroutine
	state State
	code  string
}

// NewSession wires a session over a REST gateway and an event channel and
// starts its loop. The channel stays closed until the session enters a room.
func NewSession(gw *rest.Client, ch *stream.Channel, self Identity) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		gw:        gw,
		channel:   ch,
		router:    stream.NewRouter(),
		self:      self,
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan func(), 32),
		snapshots: make(chan State, 1),
		state:     newState(),
	}
	s.sub = s.router.Subscribe()
	go s.router.Run(ctx, ch.Frames())
	go s.loop()
	return s
}

// Snapshots returns the state stream. It is conflated: a slow reader only
// ever sees the latest state, intermediate snapshots are dropped.
func (s *Session) Snapshots() <-chan State { return s.snapshots }

// Leave tears the session down: the stream closes for good and any REST
// result still in flight is discarded instead of touching dead state.
func (s *Session) Leave() {
	s.cancel()
	s.channel.Close()
}

// Create creates a new room and enters it. Host only.
func (s *Session) Create() {
	s.post(func() {
		if !s.self.IsHost() {
			s.failMsg("only the host can create a room")
			return
		}
		go func() {
			code, err := s.gw.CreateRoom(s.ctx)
			s.post(func() {
				if err != nil {
					s.fail(err)
					return
				}
				s.enterRoom(code)
			})
		}()
	})
}

// Join joins an existing room by code and enters it.
func (s *Session) Join(code string) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		s.post(func() { s.failMsg("enter a valid room code") })
		return
	}
	go func() {
		err := s.gw.JoinRoom(s.ctx, code)
		s.post(func() {
			if err != nil {
				s.fail(err)
				return
			}
			s.enterRoom(code)
		})
	}()
}

// Resume re-enters the room the server says the user is currently in,
// after an app restart or a room screen being reopened.
func (s *Session) Resume() {
	go func() {
		room, err := s.gw.GetCurrentRoom(s.ctx)
		s.post(func() {
			if err != nil {
				s.fail(err)
				return
			}
			s.enterRoom(room.Code)
		})
	}()
}

// StartRoom starts the live session. Host only.
func (s *Session) StartRoom() {
	s.post(func() {
		if !s.self.IsHost() {
			s.failMsg("only the host can start the session")
			return
		}
		code := s.code
		go func() {
			err := s.gw.StartRoom(s.ctx, code)
			s.post(func() {
				if err != nil {
					s.fail(err)
					return
				}
				s.clearErr()
				// The session_started event may have won the race already;
				// applying the transition twice is a no-op.
				s.state.applySessionStarted()
			})
		}()
	})
}

// EndRoom ends the live session. Host only.
func (s *Session) EndRoom() {
	s.post(func() {
		if !s.self.IsHost() {
			s.failMsg("only the host can end the session")
			return
		}
		code := s.code
		go func() {
			err := s.gw.EndRoom(s.ctx, code)
			s.post(func() {
				if err != nil {
					s.fail(err)
					return
				}
				s.clearErr()
				s.state.applySessionEnded()
			})
		}()
	})
}

// LaunchQuestion opens a new question. Host only, and the session must be
// running; both are checked locally before any network call.
func (s *Session) LaunchQuestion(text, correctAnswer string, points int) {
	s.post(func() {
		if !s.self.IsHost() {
			s.failMsg("only the host can launch questions")
			return
		}
		if s.state.Status != StatusActive {
			s.failMsg("start the session before launching a question")
			return
		}
		code := s.code
		go func() {
			q, err := s.gw.LaunchQuestion(s.ctx, code, text, correctAnswer, points)
			s.post(func() {
				if s.code != code || s.state.Status == StatusEnded {
					return
				}
				if err != nil {
					s.fail(err)
					return
				}
				s.clearErr()
				s.state.LastAnswer = nil
				s.state.ActiveQuestion = &Question{
					ID:     q.ID,
					RoomID: q.RoomID,
					Text:   q.Text,
					Points: q.Points,
					Status: q.Status,
				}
			})
		}()
	})
}

// CloseQuestion closes the currently active question. Host only.
func (s *Session) CloseQuestion() {
	s.post(func() {
		if !s.self.IsHost() {
			s.failMsg("only the host can close questions")
			return
		}
		q := s.state.ActiveQuestion
		if q == nil {
			return
		}
		code, questionID := s.code, q.ID
		go func() {
			err := s.gw.CloseQuestion(s.ctx, code, questionID)
			s.post(func() {
				if err != nil {
					s.fail(err)
					return
				}
				s.clearErr()
				s.state.applyQuestionClosed(questionID)
			})
		}()
	})
}

// SubmitAnswer submits the user's answer for the active question. With no
// active question or a blank answer nothing is sent. The result only
// records the outcome; the score itself arrives through the score_update
// refetch, there is no optimistic local score mutation to roll back.
func (s *Session) SubmitAnswer(answer string) {
	s.post(func() {
		q := s.state.ActiveQuestion
		if q == nil || strings.TrimSpace(answer) == "" {
			return
		}
		code, questionID := s.code, q.ID
		go func() {
			res, err := s.gw.SubmitAnswer(s.ctx, code, questionID, answer)
			s.post(func() {
				if err != nil {
					s.fail(err)
					return
				}
				s.clearErr()
				s.state.LastAnswer = res
			})
		}()
	})
}

// AddScore adjusts a participant's score manually. Host only. The new
// ranking arrives via the score_update signal, nothing is changed locally.
func (s *Session) AddScore(targetUserID, delta int) {
	s.post(func() {
		if !s.self.IsHost() {
			s.failMsg("only the host can adjust scores")
			return
		}
		code := s.code
		go func() {
			err := s.gw.AddScore(s.ctx, code, targetUserID, delta)
			s.post(func() {
				if err != nil {
					s.fail(err)
					return
				}
				s.clearErr()
			})
		}()
	})
}

// ClearError drops the transient error from the state.
func (s *Session) ClearError() {
	s.post(func() { s.state.Err = "" })
}

// post funnels fn onto the loop goroutine. After Leave, results are
// discarded rather than applied to torn-down state.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.ctx.Done():
	}
}

// emit publishes a snapshot, replacing any unread previous one.
func (s *Session) emit() {
	snap := s.state.snapshot()
	select {
	case s.snapshots <- snap:
	default:
		select {
		case <-s.snapshots:
		default:
		}
		select {
		case s.snapshots <- snap:
		default:
		}
	}
}

func (s *Session) loop() {
	s.emit()
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.cmds:
			fn()
			s.emit()
		case ph := <-s.channel.Phases():
			s.state.Phase = ph
			s.emit()
		case ev := <-s.sub.C():
			s.handleEvent(ev)
			s.emit()
		}
	}
}

// enterRoom runs on the loop goroutine. It mirrors the original room entry
// sequence: fetch the room, open the stream, then pull the in-flight
// question and the ranking so a late joiner starts consistent.
func (s *Session) enterRoom(code string) {
	if s.code == code && s.state.Phase == stream.PhaseConnected {
		return
	}
	s.code = code
	s.state = newState()
	s.state.Code = code
	s.clearErr()

	if err := s.channel.Open(code, s.self.Token, s.self.Name); err != nil {
		s.fail(err)
		return
	}
	s.refreshRoom()
	s.refreshQuestion()
	s.refreshRanking()
}

func (s *Session) handleEvent(ev stream.Event) {
	switch ev.Kind {
	case stream.KindScoreUpdate:
		// The event is a dirty flag, it never carries the score; re-read
		// ranking and room instead of trusting stream ordering.
		s.refreshRanking()
		s.refreshRoom()

	case stream.KindAnswerCorrect:
		s.refreshRanking()

	case stream.KindSessionStarted:
		s.state.applySessionStarted()

	case stream.KindSessionEnded:
		s.state.applySessionEnded()

	case stream.KindParticipantConnected:
		s.state.applyParticipantConnected(*ev.User)

	case stream.KindParticipantDisconnected:
		s.state.applyParticipantDisconnected(ev.User.UserID)

	case stream.KindOnlineList:
		s.state.applyOnlineList(ev.Users)

	case stream.KindParticipantKicked:
		s.state.applyKicked(ev.KickedUserID, s.self.UserID)
		if ev.KickedUserID == s.self.UserID {
			// The room goes on for the others; only this client's stream ends.
			s.channel.Close()
		}

	case stream.KindNewQuestion:
		s.state.applyNewQuestion(ev.Question)

	case stream.KindQuestionClosed:
		s.state.applyQuestionClosed(ev.ClosedQuestionID)
	}
}

func (s *Session) refreshRoom() {
	code := s.code
	go func() {
		room, err := s.gw.GetRoom(s.ctx, code)
		s.post(func() {
			if s.code != code {
				return
			}
			if err != nil {
				s.fail(err)
				return
			}
			s.state.applyRoom(room)
		})
	}()
}

func (s *Session) refreshRanking() {
	code := s.code
	go func() {
		ranking, err := s.gw.GetRanking(s.ctx, code)
		s.post(func() {
			if s.code != code {
				return
			}
			if err != nil {
				// Ranking is derived state; keep the stale copy.
				log.Warn().Err(err).Str("room", code).Msg("ranking refresh failed")
				return
			}
			s.state.Ranking = ranking
		})
	}()
}

func (s *Session) refreshQuestion() {
	code := s.code
	go func() {
		q, err := s.gw.GetCurrentQuestion(s.ctx, code)
		s.post(func() {
			// A fetch started before the room ended, or before the user
			// moved rooms, must not resurrect a question on dead state.
			if s.code != code || s.state.Status == StatusEnded {
				return
			}
			if err != nil {
				log.Warn().Err(err).Str("room", code).Msg("current question fetch failed")
				return
			}
			if q == nil {
				return
			}
			s.state.ActiveQuestion = &Question{
				ID:     q.ID,
				RoomID: q.RoomID,
				Text:   q.Text,
				Points: q.Points,
				Status: q.Status,
			}
		})
	}()
}

func (s *Session) fail(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	switch {
	case errors.Is(err, rest.ErrSessionInvalid):
		s.state.Err = "session invalid, please sign in again"
	case errors.Is(err, rest.ErrNotHost):
		s.state.Err = "only the host can do that"
	case errors.Is(err, rest.ErrAlreadyAnswered):
		s.state.Err = "you already answered this question, or it is closed"
	case errors.Is(err, rest.ErrBadState):
		s.state.Err = "the room is not in a valid state for that"
	default:
		s.state.Err = err.Error()
	}
	log.Warn().Err(err).Str("room", s.code).Msg("room action failed")
}

func (s *Session) failMsg(msg string) {
	s.state.Err = msg
}

func (s *Session) clearErr() {
	s.state.Err = ""
}
