package capture

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrNoSpeech is reported by a Recognizer when the provider detected
// no speech during a pass. The transcriber restarts on it instead of
// terminating: silence during a long lecture must not abort capture.
var ErrNoSpeech = errors.New("no speech detected")

// Recognizer runs one speech-recognition pass, delivering incremental
// transcript strings to the callback until the pass ends. It returns
// ErrNoSpeech when the provider gave up on silence, nil when the pass
// completed, or the context error when cancelled.
type Recognizer interface {
	Listen(ctx context.Context, onTranscript func(string)) error
}

// TranscriberState of the live speech-to-text companion
type TranscriberState string

const (
	TranscriberIdle      TranscriberState = "idle"
	TranscriberListening TranscriberState = "listening"
)

// Transcriber drives live speech-to-text alongside (and independent
// of) the recording session; the two can run concurrently against the
// same microphone. Its auto-restart on no-speech is an explicit state
// transition, not an error-handler side effect.
type Transcriber struct {
	rec          Recognizer
	onTranscript func(string)

	mutex  sync.Mutex
	state  TranscriberState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTranscriber creates an idle transcriber delivering incremental
// transcript updates to the callback
func NewTranscriber(rec Recognizer, onTranscript func(string)) *Transcriber {
	return &Transcriber{
		rec:          rec,
		onTranscript: onTranscript,
		state:        TranscriberIdle,
	}
}

// State returns the current transcriber state
func (t *Transcriber) State() TranscriberState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Start moves idle -> listening and keeps recognition passes running
// until Stop. A no-speech result restarts the pass; any other
// recognizer failure ends listening.
func (t *Transcriber) Start(ctx context.Context) error {
	t.mutex.Lock()
	if t.state == TranscriberListening {
		t.mutex.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.state = TranscriberListening
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mutex.Unlock()

	go func() {
		defer close(done)
		for {
			err := t.rec.Listen(runCtx, t.onTranscript)
			switch {
			case runCtx.Err() != nil:
				t.setIdle()
				return
			case err == nil || errors.Is(err, ErrNoSpeech):
				// listening -> listening: restart the pass
				if errors.Is(err, ErrNoSpeech) {
					log.Printf("Recognizer reported no speech, restarting")
				}
			default:
				log.Printf("Recognizer failed, stopping transcription: %v", err)
				t.setIdle()
				return
			}
		}
	}()

	return nil
}

// Stop cancels the running pass and waits for the loop to settle in
// the idle state. Stopping an idle transcriber is a no-op.
func (t *Transcriber) Stop() {
	t.mutex.Lock()
	if t.state != TranscriberListening {
		t.mutex.Unlock()
		return
	}
	cancel := t.cancel
	done := t.done
	t.mutex.Unlock()

	cancel()
	<-done
}

func (t *Transcriber) setIdle() {
	t.mutex.Lock()
	t.state = TranscriberIdle
	t.mutex.Unlock()
}
