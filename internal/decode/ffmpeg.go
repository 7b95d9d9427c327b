package decode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

const (
	SampleRate = 48000
	Channels   = 2
)

type Options struct {
	NoStdin   bool // pass -nostdin so ffmpeg never waits on a terminal
	AudioOnly bool // pass -vn
}

// Runner launches ffmpeg processes that decode a media input to raw s16le
// stereo 48k PCM on stdout, with diagnostics on stderr.
type Runner struct {
	opts Options
}

func NewRunner(opts Options) *Runner {
	return &Runner{opts: opts}
}

func ffmpegArgs(input string, o Options) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	if o.NoStdin {
		args = append(args, "-nostdin")
	}
	args = append(args, "-i", input)
	if o.AudioOnly {
		args = append(args, "-vn")
	}
	args = append(args,
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	return args
}

func (r *Runner) Start(ctx context.Context, input string) (*Process, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(input, r.opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Process is one running decode process. Done is closed when the process
// exits, normally or not.
type Process struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
}

func (p *Process) Audio() io.Reader       { return p.stdout }
func (p *Process) Diagnostics() io.Reader { return p.stderr }
func (p *Process) Done() <-chan struct{}  { return p.done }

// Err reports the process exit error. Only meaningful after Done is closed.
func (p *Process) Err() error { return p.waitErr }

func (p *Process) Pause() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return p.cmd.Process.Signal(syscall.SIGSTOP)
}

func (p *Process) Resume() error {
	if p.cmd.Process == nil {
		return fmt.Errorf("process not started")
	}
	return p.cmd.Process.Signal(syscall.SIGCONT)
}

// Stop kills the process. The exit is still delivered through Done.
func (p *Process) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if p.cmd.Process != nil {
			// A paused process won't die from SIGKILL alone until resumed.
			_ = p.cmd.Process.Signal(syscall.SIGCONT)
			err = p.cmd.Process.Kill()
		}
	})
	return err
}
