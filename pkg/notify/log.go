package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogSender writes messages to a zerolog logger instead of delivering them.
// Used in development and when no mail provider is configured.
type LogSender struct {
	logger zerolog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notify").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg Message) Result {
	id := uuid.NewString()
	s.logger.Info().
		Str("message_id", id).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email not delivered, log sender in use")
	return Sent(id)
}

// Recorder is an in-memory Sender that keeps every message it is given.
// The status it returns can be scripted per call.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	results  []Result
}

// NewRecorder returns a Recorder that answers with results in order, then StatusSent.
func NewRecorder(results ...Result) *Recorder {
	return &Recorder{results: results}
}

func (r *Recorder) Send(_ context.Context, msg Message) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	if len(r.results) > 0 {
		res := r.results[0]
		r.results = r.results[1:]
		return res
	}
	return Sent(uuid.NewString())
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
