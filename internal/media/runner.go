package media

import (
	"context"
	"fmt"

	execute "github.com/alexellis/go-execute/v2"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandLog, error)
}

// execRunner executes commands via go-execute.
type execRunner struct{}

// NewRunner constructs the production subprocess runner.
func NewRunner() Runner {
	return execRunner{}
}

// Run executes one command and captures stdout/stderr and exit code.
// A non-zero exit is reported as an error alongside the captured log.
func (execRunner) Run(ctx context.Context, name string, args ...string) (CommandLog, error) {
	task := execute.ExecTask{
		Command:     name,
		Args:        args,
		StreamStdio: false,
	}

	res, err := task.Execute(ctx)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	if err != nil {
		return log, err
	}
	if res.ExitCode != 0 {
		return log, fmt.Errorf("%s exited with status %d", name, res.ExitCode)
	}
	return log, nil
}
