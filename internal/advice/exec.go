package advice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

type execGenerator struct {
	cmd []string
}

type execOutput struct {
	Content string `json:"content"`
}

// NewExecGenerator shells out to a local command, writing the prompt to
// stdin and reading a JSON result from stdout.
func NewExecGenerator(command string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse advice command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("advice command is empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Generate(ctx context.Context, req Request) (Result, error) {
	command := exec.CommandContext(ctx, g.cmd[0], g.cmd[1:]...)
	command.Stdin = strings.NewReader(req.System + "\n\n" + req.Prompt)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	start := time.Now()
	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("advice command failed: %w: %s", err, stderr.String())
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Result{}, fmt.Errorf("decode advice output: %w", err)
	}
	return Result{Content: out.Content, Latency: time.Since(start)}, nil
}
