package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType discriminates the wire protocol's message variants.
type MessageType string

const (
	// engine -> host
	MessageRoomCreated MessageType = "room_created"
	MessageResults     MessageType = "results"
	MessagePlayerCount MessageType = "player_count"
	MessageAnswerCount MessageType = "answer_count"

	// host -> engine
	MessageNewQuestion MessageType = "new_question"
	MessageCloseRoom   MessageType = "close_room"

	// player -> engine
	MessageAnswer MessageType = "answer"

	// engine -> players
	MessageQuestion      MessageType = "question"
	MessageQuestionEnded MessageType = "question_ended"
	MessagePlayerJoined  MessageType = "player_joined"
	MessageRoomClosed    MessageType = "room_closed"

	// engine -> either
	MessageError     MessageType = "error"
	MessageHeartbeat MessageType = "heartbeat"
)

// Envelope carries the fields common to every wire message.
type Envelope struct {
	Type      MessageType `json:"type"`
	Timestamp float64     `json:"timestamp"`
}

// Epoch converts a time to the protocol's float epoch-seconds representation.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func stamp(t MessageType) Envelope {
	return Envelope{Type: t, Timestamp: Epoch(time.Now())}
}

// RoomCreated acknowledges room creation to the host.
type RoomCreated struct {
	Envelope
	RoomCode string `json:"room_code"`
}

func NewRoomCreated(code string) RoomCreated {
	return RoomCreated{Envelope: stamp(MessageRoomCreated), RoomCode: code}
}

// QuestionBroadcast is the player-facing view of a question; the correct
// index is deliberately absent.
type QuestionBroadcast struct {
	Envelope
	Question          string   `json:"question"`
	Options           []string `json:"options"`
	TimeLimit         int      `json:"time_limit"`
	QuestionStartTime float64  `json:"question_start_time"`
}

func NewQuestionBroadcast(q *Question) QuestionBroadcast {
	return QuestionBroadcast{
		Envelope:          stamp(MessageQuestion),
		Question:          q.Text,
		Options:           q.Options,
		TimeLimit:         q.TimeLimit,
		QuestionStartTime: q.StartedAt,
	}
}

// QuestionEnded reveals the correct option to players.
type QuestionEnded struct {
	Envelope
	CorrectAnswer int `json:"correct_answer"`
}

func NewQuestionEnded(correct int) QuestionEnded {
	return QuestionEnded{Envelope: stamp(MessageQuestionEnded), CorrectAnswer: correct}
}

// Results summarizes an ended question for the host. The top_5 field name is
// historical; it carries the configured top-N entries.
type Results struct {
	Envelope
	Top            []QuestionResult `json:"top_5"`
	TotalAnswers   int              `json:"total_answers"`
	CorrectAnswers int              `json:"correct_answers"`
}

func NewResults(top []QuestionResult, total, correct int) Results {
	return Results{Envelope: stamp(MessageResults), Top: top, TotalAnswers: total, CorrectAnswers: correct}
}

// PlayerJoined notifies existing players of a new joiner.
type PlayerJoined struct {
	Envelope
	Username    string `json:"username"`
	PlayerCount int    `json:"player_count"`
}

func NewPlayerJoined(username string, count int) PlayerJoined {
	return PlayerJoined{Envelope: stamp(MessagePlayerJoined), Username: username, PlayerCount: count}
}

// PlayerCount updates the host with the connected-player count.
type PlayerCount struct {
	Envelope
	Count int `json:"count"`
}

func NewPlayerCount(count int) PlayerCount {
	return PlayerCount{Envelope: stamp(MessagePlayerCount), Count: count}
}

// AnswerCount is the throttled answer-progress update for the host.
type AnswerCount struct {
	Envelope
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

func NewAnswerCount(answered, total int) AnswerCount {
	return AnswerCount{Envelope: stamp(MessageAnswerCount), Answered: answered, Total: total}
}

// RoomClosed tells players the room is gone and why.
type RoomClosed struct {
	Envelope
	Reason string `json:"reason"`
}

func NewRoomClosed(reason string) RoomClosed {
	return RoomClosed{Envelope: stamp(MessageRoomClosed), Reason: reason}
}

// ErrorMessage reports a per-message failure on the originating channel.
type ErrorMessage struct {
	Envelope
	Message string `json:"message"`
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Envelope: stamp(MessageError), Message: message}
}

// Heartbeat is the periodic liveness probe.
type Heartbeat struct {
	Envelope
}

func NewHeartbeat() Heartbeat {
	return Heartbeat{Envelope: stamp(MessageHeartbeat)}
}

// NewQuestion is the host's request to start a question. A zero TimeLimit
// means the room default applies.
type NewQuestion struct {
	Envelope
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	TimeLimit     int      `json:"time_limit"`
}

// AnswerSubmission is a player's selected option. The client timestamp is
// ignored; the engine records its own receive time.
type AnswerSubmission struct {
	Envelope
	Option int `json:"option"`
}

// Encode marshals an outbound message to its wire form.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeType peeks at the discriminator of an inbound message.
func DecodeType(data []byte) (MessageType, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env.Type, nil
}

// DecodeNewQuestion parses and validates a new_question payload.
func DecodeNewQuestion(data []byte) (NewQuestion, error) {
	var msg NewQuestion
	if err := json.Unmarshal(data, &msg); err != nil {
		return NewQuestion{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Question == "" {
		return NewQuestion{}, fmt.Errorf("%w: empty question", ErrMalformedMessage)
	}
	if len(msg.Options) < 2 {
		return NewQuestion{}, fmt.Errorf("%w: need at least two options", ErrMalformedMessage)
	}
	if msg.CorrectAnswer < 0 || msg.CorrectAnswer >= len(msg.Options) {
		return NewQuestion{}, fmt.Errorf("%w: correct_answer out of range", ErrMalformedMessage)
	}
	return msg, nil
}

// DecodeAnswer parses and validates an answer payload.
func DecodeAnswer(data []byte) (AnswerSubmission, error) {
	var msg AnswerSubmission
	if err := json.Unmarshal(data, &msg); err != nil {
		return AnswerSubmission{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Option < 0 {
		return AnswerSubmission{}, fmt.Errorf("%w: negative option index", ErrMalformedMessage)
	}
	return msg, nil
}
