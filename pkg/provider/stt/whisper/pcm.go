package whisper

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

// pcmBuffer wraps 16-bit little-endian PCM in a go-audio buffer, downmixing to
// mono when channels > 1. whisper.cpp only accepts mono input.
func pcmBuffer(pcm []byte, sampleRate, channels int) *goaudio.IntBuffer {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	data := make([]int, frames)
	for i := range frames {
		sum := 0
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[idx:])))
		}
		data[i] = sum / channels
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// encodeWAV writes buf as a 16-bit PCM WAV file. The encoder needs a seekable
// writer to patch the RIFF header, so the file is built in an in-memory
// filesystem and read back.
func encodeWAV(buf *goaudio.IntBuffer) ([]byte, error) {
	fs := afero.NewMemMapFs()
	f, err := fs.Create("utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("whisper: create wav buffer: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, buf.Format.SampleRate, 16, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("whisper: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("whisper: finish wav: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("whisper: rewind wav buffer: %w", err)
	}
	return io.ReadAll(f)
}

// keywordPrompt turns recognition hints into an initial prompt. whisper has no
// boosting API, but words that appear in the prompt are favoured.
func keywordPrompt(keywords []stt.KeywordBoost) string {
	if len(keywords) == 0 {
		return ""
	}
	words := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	if len(words) == 0 {
		return ""
	}
	return "Vocabulary: " + strings.Join(words, ", ") + "."
}

// isNonSpeech reports whether a whisper segment is an annotation such as
// "[BLANK_AUDIO]" or "(wind blowing)" rather than speech.
func isNonSpeech(text string) bool {
	if text == "" {
		return true
	}
	first, last := text[0], text[len(text)-1]
	return first == '[' || first == '(' || last == ']' || last == ')'
}
