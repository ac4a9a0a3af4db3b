package speech_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/vocabloop/internal/speech"
	"github.com/MrWong99/vocabloop/pkg/audio"
	audiomock "github.com/MrWong99/vocabloop/pkg/audio/mock"
	ttsmock "github.com/MrWong99/vocabloop/pkg/provider/tts/mock"
)

func TestSpeak_PlaysAndDrains(t *testing.T) {
	t.Parallel()

	pcm := bytes.Repeat([]byte{1, 0}, 480)
	p := &ttsmock.Provider{Audio: pcm}
	sink := &audiomock.PlaybackSink{}
	s := speech.New(p, sink, speech.DefaultPersona())

	if err := s.Speak(context.Background(), "Explain the meaning of paradox"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if !bytes.Equal(sink.Played(), pcm) {
		t.Errorf("played %d bytes, want %d", len(sink.Played()), len(pcm))
	}
	if sink.CallCountDrain != 1 || sink.CallCountClear != 0 {
		t.Errorf("drain %d, clear %d", sink.CallCountDrain, sink.CallCountClear)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Synthesize calls = %d", len(calls))
	}
	if calls[0].Voice.ID != "coral" || calls[0].Voice.Instructions != speech.DefaultInstructions {
		t.Errorf("voice = %+v", calls[0].Voice)
	}
	if calls[0].Text != "Explain the meaning of paradox" {
		t.Errorf("text = %q", calls[0].Text)
	}
}

func TestSpeak_ConvertsToSinkFormat(t *testing.T) {
	t.Parallel()

	// 24 kHz mono in, 48 kHz stereo out: four times the bytes.
	p := &ttsmock.Provider{Audio: make([]byte, 480), Format: audio.Format{SampleRate: 24000, Channels: 1}}
	sink := &audiomock.PlaybackSink{FormatResult: audio.Format{SampleRate: 48000, Channels: 2}}
	s := speech.New(p, sink, speech.DefaultPersona())

	if err := s.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := len(sink.Played()); got != 4*480 {
		t.Errorf("played %d bytes, want %d", got, 4*480)
	}
}

func TestSpeak_Failures(t *testing.T) {
	t.Parallel()

	errTTS := errors.New("tts down")
	errDrain := errors.New("device lost")
	tests := []struct {
		name      string
		provider  *ttsmock.Provider
		sink      *audiomock.PlaybackSink
		text      string
		wantCause error
		wantClear int
	}{
		{
			name:      "synthesis fails after partial audio",
			provider:  &ttsmock.Provider{Audio: make([]byte, 100), SynthesizeErr: errTTS, AudioBeforeErr: 40},
			sink:      &audiomock.PlaybackSink{},
			text:      "hi",
			wantCause: errTTS,
			wantClear: 1,
		},
		{
			name:      "playback fails",
			provider:  &ttsmock.Provider{Audio: make([]byte, 100)},
			sink:      &audiomock.PlaybackSink{DrainErr: errDrain},
			text:      "hi",
			wantCause: errDrain,
			wantClear: 1,
		},
		{
			name:     "empty text",
			provider: &ttsmock.Provider{},
			sink:     &audiomock.PlaybackSink{},
			text:     "   ",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := speech.New(tc.provider, tc.sink, speech.DefaultPersona())
			err := s.Speak(context.Background(), tc.text)
			if !errors.Is(err, speech.ErrService) {
				t.Fatalf("err = %v, want ErrService", err)
			}
			if tc.wantCause != nil && !errors.Is(err, tc.wantCause) {
				t.Errorf("err = %v, want cause %v", err, tc.wantCause)
			}
			if tc.sink.CallCountClear != tc.wantClear {
				t.Errorf("Clear called %d times, want %d", tc.sink.CallCountClear, tc.wantClear)
			}
			if len(tc.sink.Pending()) != 0 || len(tc.sink.Played()) != 0 {
				t.Error("audio left in the sink after a failure")
			}
		})
	}
}
