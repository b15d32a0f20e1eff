package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/usecase"
)

// Asker is the part of the coordinator the chat needs.
type Asker interface {
	Answer(ctx context.Context, req domain.TaskRequest) (usecase.Answer, error)
	AnswerDirect(ctx context.Context, key string, req domain.TaskRequest) (usecase.Answer, error)
}

// askCmd runs one question in the background. An empty agent lets the
// coordinator route.
func askCmd(ctx context.Context, tutor Asker, agent string, req domain.TaskRequest, gen uint64) tea.Cmd {
	return func() tea.Msg {
		var (
			a   usecase.Answer
			err error
		)
		if agent == "" {
			a, err = tutor.Answer(ctx, req)
		} else {
			a, err = tutor.AnswerDirect(ctx, agent, req)
		}
		return AnswerMsg{Answer: a, Err: err, Gen: gen}
	}
}

func streamTickCmd(rate time.Duration) tea.Cmd {
	if rate <= 0 {
		rate = 16 * time.Millisecond
	}
	return tea.Tick(rate, func(time.Time) tea.Msg { return StreamTickMsg{} })
}
