package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Typed failures the session layer distinguishes. Everything else surfaces
// as a generic *APIError.
var (
	// ErrSessionInvalid means the auth token was rejected (401); callers
	// should force re-authentication.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrNotHost means the action requires the host role (403).
	ErrNotHost = errors.New("not the room host")
	// ErrBadState means the server rejected the action in the room's
	// current state (400).
	ErrBadState = errors.New("invalid room state")
	// ErrAlreadyAnswered means a second answer was submitted for the same
	// question, or the question is closed.
	ErrAlreadyAnswered = errors.New("question already answered or closed")
)

// APIError carries the status code and body of a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// Client is the quiz server's REST gateway. All calls are one-shot and
// safe to retry by the caller, except SubmitAnswer, where the server
// rejects duplicates.
type Client struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewClient creates a REST client for the given base URL and auth token.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		token:   authToken,
	}
}

// CreateRoom creates a new room and returns its code. Host only.
func (c *Client) CreateRoom(ctx context.Context) (string, error) {
	body, err := c.request(ctx, http.MethodPost, "/rooms", nil)
	if err != nil {
		return "", err
	}
	var res createRoomResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("decode create room response: %w", err)
	}
	if res.Code == "" {
		return "", errors.New("server returned no room code")
	}
	return res.Code, nil
}

// GetRoom fetches a room snapshot by code.
func (c *Client) GetRoom(ctx context.Context, code string) (*Room, error) {
	body, err := c.request(ctx, http.MethodGet, "/rooms/"+code, nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("server returned an empty room for %s", code)
	}
	var room Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

// GetCurrentRoom fetches the room the authenticated user is currently in,
// used to resume a session after an app restart.
func (c *Client) GetCurrentRoom(ctx context.Context) (*Room, error) {
	body, err := c.request(ctx, http.MethodGet, "/rooms/current", nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("no current room")
	}
	var room Room
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

// JoinRoom adds the authenticated user to a room's roster.
func (c *Client) JoinRoom(ctx context.Context, code string) error {
	_, err := c.request(ctx, http.MethodPost, "/rooms/"+code+"/join", nil)
	return err
}

// StartRoom transitions the room to its active session. Host only.
func (c *Client) StartRoom(ctx context.Context, code string) error {
	_, err := c.request(ctx, http.MethodPost, "/rooms/"+code+"/start", nil)
	return err
}

// EndRoom ends the room's session. Host only.
func (c *Client) EndRoom(ctx context.Context, code string) error {
	_, err := c.request(ctx, http.MethodPost, "/rooms/"+code+"/end", nil)
	return err
}

// GetRanking fetches the room leaderboard, ordered by the server.
func (c *Client) GetRanking(ctx context.Context, code string) ([]RankingEntry, error) {
	body, err := c.request(ctx, http.MethodGet, "/rooms/"+code+"/ranking", nil)
	if err != nil {
		return nil, err
	}
	// A 204 here just means nobody has scored yet.
	if len(body) == 0 {
		return nil, nil
	}
	var ranking []RankingEntry
	if err := json.Unmarshal(body, &ranking); err != nil {
		return nil, fmt.Errorf("decode ranking: %w", err)
	}
	return ranking, nil
}

// LaunchQuestion opens a new question in the room. Host only.
func (c *Client) LaunchQuestion(ctx context.Context, code, text, correctAnswer string, points int) (*Question, error) {
	body, err := c.request(ctx, http.MethodPost, "/rooms/"+code+"/questions", launchQuestionRequest{
		Text:          text,
		CorrectAnswer: correctAnswer,
		Points:        points,
	})
	if err != nil {
		return nil, err
	}
	var q Question
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	return &q, nil
}

// GetCurrentQuestion fetches the question currently open in the room.
// Returns (nil, nil) when there is none; the server signals that with 204.
func (c *Client) GetCurrentQuestion(ctx context.Context, code string) (*Question, error) {
	body, err := c.request(ctx, http.MethodGet, "/rooms/"+code+"/questions/current", nil)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	var q Question
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("decode question: %w", err)
	}
	return &q, nil
}

// CloseQuestion closes an open question. Host only.
func (c *Client) CloseQuestion(ctx context.Context, code string, questionID int) error {
	_, err := c.request(ctx, http.MethodPatch, fmt.Sprintf("/rooms/%s/questions/%d/close", code, questionID), nil)
	return err
}

// SubmitAnswer submits the user's answer for a question. Not retryable:
// the server rejects a second answer for the same question with 400,
// surfaced here as ErrAlreadyAnswered.
func (c *Client) SubmitAnswer(ctx context.Context, code string, questionID int, answer string) (*AnswerResult, error) {
	body, err := c.request(ctx, http.MethodPost, "/rooms/"+code+"/answer", submitAnswerRequest{
		QuestionID: questionID,
		Answer:     answer,
	})
	if err != nil {
		if errors.Is(err, ErrBadState) {
			return nil, ErrAlreadyAnswered
		}
		return nil, err
	}
	var res AnswerResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode answer result: %w", err)
	}
	return &res, nil
}

// AddScore adjusts a participant's score by delta. Host only.
func (c *Client) AddScore(ctx context.Context, code string, targetUserID, delta int) error {
	_, err := c.request(ctx, http.MethodPost, "/rooms/"+code+"/score", addPointsRequest{
		Delta:        delta,
		RoomCode:     code,
		TargetUserID: targetUserID,
	})
	return err
}

func (c *Client) request(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	}

	log.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Msg("request failed")

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, ErrSessionInvalid
	case http.StatusForbidden:
		return nil, ErrNotHost
	case http.StatusBadRequest:
		return nil, ErrBadState
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}
