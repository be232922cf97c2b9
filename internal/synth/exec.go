package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// execSynth shells out to a synthesis worker (typically a Python process
// owning the voice-cloning model). One JSON request goes to stdin, one JSON
// response line comes back on stdout. The Gate guarantees a single worker
// invocation at a time.
type execSynth struct {
	cmd []string
}

type execRequest struct {
	Text     string `json:"text"`
	VoiceRef string `json:"voice_ref"`
	Language string `json:"language"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error,omitempty"`
}

// NewExecSynth parses command into an argv and returns a subprocess-backed
// Synthesizer.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

// ClearCache asks the worker to reset its device state. The worker treats a
// request with clear_cache set as a maintenance call and emits an empty
// response.
func (e *execSynth) ClearCache(ctx context.Context) error {
	payload := []byte(`{"clear_cache":true}`)
	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tts worker cache clear: %w", err)
	}
	return nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	payload, err := json.Marshal(execRequest{
		Text:     req.Text,
		VoiceRef: req.VoiceRef,
		Language: req.Language,
	})
	if err != nil {
		return Audio{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Audio{}, err
	}
	if err := cmd.Start(); err != nil {
		return Audio{}, err
	}

	var resp execResponse
	var decodeErr error
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		decodeErr = json.Unmarshal(line, &resp)
		break
	}
	if err := cmd.Wait(); err != nil {
		return Audio{}, fmt.Errorf("tts worker: %w", err)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return Audio{}, scanErr
	}
	if decodeErr != nil {
		return Audio{}, fmt.Errorf("decode tts worker response: %w", decodeErr)
	}
	if resp.Error != "" {
		return Audio{}, fmt.Errorf("tts worker: %s", resp.Error)
	}
	if resp.AudioBase64 == "" {
		return Audio{}, fmt.Errorf("tts worker returned no audio")
	}
	data, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return Audio{}, fmt.Errorf("decode tts worker audio: %w", err)
	}
	return Audio{Data: data}, nil
}
