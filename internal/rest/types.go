package rest

// Room is the server's snapshot of a room.
type Room struct {
	Code         string        `json:"code"`
	HostID       int           `json:"host_id"`
	Status       string        `json:"status"`
	Participants []Participant `json:"participants"`
}

// Participant is an entry in the room's durable roster. The server has sent
// the display name under both user_name and name historically, so both are
// kept and DisplayName picks whichever is set.
type Participant struct {
	UserID   int    `json:"user_id"`
	UserName string `json:"user_name"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
}

func (p Participant) DisplayName() string {
	if p.UserName != "" {
		return p.UserName
	}
	return p.Name
}

// RankingEntry is one row of the room leaderboard, ordered by the server.
type RankingEntry struct {
	UserID   int    `json:"user_id"`
	UserName string `json:"user_name"`
	Points   int    `json:"points"`
	Position int    `json:"position"`
}

// Question is a launched quiz question as returned by the server.
type Question struct {
	ID     int    `json:"id"`
	RoomID int    `json:"room_id"`
	Text   string `json:"text"`
	Points int    `json:"points"`
	Status string `json:"status"` // "open" | "closed"
}

// AnswerResult is the outcome of submitting an answer.
type AnswerResult struct {
	IsCorrect    bool   `json:"is_correct"`
	PointsEarned int    `json:"points_earned"`
	Message      string `json:"message"`
}

type createRoomResponse struct {
	Code string `json:"code"`
}

type launchQuestionRequest struct {
	Text          string `json:"text"`
	CorrectAnswer string `json:"correct_answer"`
	Points        int    `json:"points"`
}

type submitAnswerRequest struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

type addPointsRequest struct {
	Delta        int    `json:"delta"`
	RoomCode     string `json:"room_code"`
	TargetUserID int    `json:"target_user_id"`
}
