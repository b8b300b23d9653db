// Package capture wraps microphone access and speech recognition
// behind small state machines. The actual audio and recognition
// providers are external collaborators injected as interfaces.
package capture

import (
	"bytes"
	"context"
	"log"
	"sync"

	"aula/pkg/errors"
)

// State of the recording session
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// AudioStream delivers raw audio chunks from an open microphone.
// Closing the stream ends the chunk channel.
type AudioStream interface {
	Chunks() <-chan []byte
	MimeType() string
	Close() error
}

// Microphone grants access to the audio input device. Implementations
// cache the permission grant, so repeated Open calls do not re-prompt;
// a declined grant returns the permission-denied error every time.
type Microphone interface {
	Open(ctx context.Context) (AudioStream, error)
}

// Session records microphone audio into a single blob. It moves
// idle -> recording on Start and back to idle on Stop. The microphone
// is a singleton device; a second concurrent Start on one session is
// rejected, but nothing guards two sessions sharing a device.
type Session struct {
	mic Microphone

	mutex  sync.Mutex
	state  State
	stream AudioStream
	buf    bytes.Buffer
	mime   string
	done   chan struct{}
}

// NewSession creates an idle capture session over a microphone
func NewSession(mic Microphone) *Session {
	return &Session{mic: mic, state: StateIdle}
}

// State returns the current session state
func (s *Session) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Start opens the microphone and begins collecting audio. A denied
// permission is surfaced to the caller for UI messaging and is not
// retried here.
func (s *Session) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.state == StateRecording {
		s.mutex.Unlock()
		return errors.New(errors.ErrTypeCapture, "ALREADY_RECORDING", "a recording is already in progress")
	}
	// Claim the session before opening the device so an overlapping
	// Start cannot also pass the idle check and replace the stream.
	s.state = StateRecording
	s.mutex.Unlock()

	stream, err := s.mic.Open(ctx)
	if err != nil {
		s.mutex.Lock()
		s.state = StateIdle
		s.mutex.Unlock()
		return err
	}

	s.mutex.Lock()
	s.stream = stream
	s.mime = stream.MimeType()
	s.buf.Reset()
	s.done = make(chan struct{})
	done := s.done
	s.mutex.Unlock()

	go func() {
		defer close(done)
		for chunk := range stream.Chunks() {
			s.mutex.Lock()
			s.buf.Write(chunk)
			s.mutex.Unlock()
		}
	}()

	log.Printf("Recording started")
	return nil
}

// Stop finalizes the in-progress recording into a single blob. Calling
// Stop while idle is a contract violation and fails accordingly.
func (s *Session) Stop() ([]byte, string, error) {
	s.mutex.Lock()
	if s.state != StateRecording || s.stream == nil {
		s.mutex.Unlock()
		return nil, "", errors.ErrNoActiveRecording
	}
	stream := s.stream
	done := s.done
	s.mutex.Unlock()

	// Closing the stream ends the chunk channel; wait for the drain
	// goroutine to flush the tail chunks before snapshotting.
	if err := stream.Close(); err != nil {
		log.Printf("Closing audio stream failed: %v", err)
	}
	<-done

	s.mutex.Lock()
	blob := make([]byte, s.buf.Len())
	copy(blob, s.buf.Bytes())
	mime := s.mime
	s.state = StateIdle
	s.stream = nil
	s.mutex.Unlock()

	log.Printf("Recording stopped, %d bytes captured", len(blob))
	return blob, mime, nil
}
