// Package chat implements the interactive terminal chat with the tutor.
package chat

import "tutor-dispatch/internal/usecase"

// AnswerMsg carries the result of one ask. Gen identifies the request so a
// reply to a cancelled question is dropped.
type AnswerMsg struct {
	Answer usecase.Answer
	Err    error
	Gen    uint64
}

// StreamTickMsg advances progressive rendering of the latest answer.
type StreamTickMsg struct{}
