package classifier

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/feature"
)

const (
	// maxReplySize bounds a single reply from the worker process.
	maxReplySize = 1 << 20

	defaultTimeout      = 10 * time.Second
	defaultStartTimeout = 2 * time.Minute
)

// ProcessConfig configures a ProcessClassifier.
type ProcessConfig struct {
	Python  string        // Interpreter, defaults to python3
	Script  string        // Worker script path
	Model   string        // Model file handed to the script
	Timeout time.Duration // Per-inference timeout, defaults to 10s
	Idle    time.Duration // Idle time before the process is stopped, 0 keeps it running

	// StartTimeout bounds the wait for the worker's ready frame, which it
	// sends once the model is loaded. Defaults to 2m.
	StartTimeout time.Duration
}

// ProcessClassifier runs inference in a persistent Python worker process.
//
// Requests and replies are msgpack documents framed by a 4-byte big-endian
// length. The worker is started on first use, announces itself with a
// {"ready": true} frame once its model is loaded and then serves one
// inference at a time.
type ProcessClassifier struct {
	config  ProcessConfig
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
	timer   *time.Timer
}

type processRequest struct {
	Tensor []feature.Vector `msgpack:"tensor"`
}

type processReply struct {
	Ready         bool      `msgpack:"ready"`
	Probabilities []float64 `msgpack:"probabilities"`
	Error         string    `msgpack:"error"`
}

// NewProcessClassifier validates the configuration and returns a classifier.
// The worker process is not started until the first Predict call.
func NewProcessClassifier(config ProcessConfig) (*ProcessClassifier, error) {
	if config.Script == "" {
		return nil, fmt.Errorf("worker script is required")
	}
	if _, err := os.Stat(config.Script); err != nil {
		return nil, fmt.Errorf("stat worker script: %w", err)
	}
	if config.Python == "" {
		config.Python = detector.FindVenvPython()
	}
	if config.Python == "" {
		config.Python = "python3"
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = defaultStartTimeout
	}
	return &ProcessClassifier{config: config}, nil
}

// Predict sends tensor to the worker and waits for its distribution.
func (c *ProcessClassifier) Predict(ctx context.Context, tensor []feature.Vector) ([]float64, error) {
	payload, err := msgpack.Marshal(processRequest{Tensor: tensor})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureStarted(ctx); err != nil {
		return nil, err
	}

	// The inference deadline starts only once the model is loaded.
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	type result struct {
		reply processReply
		err   error
	}
	done := make(chan result, 1)
	stdin, stdout := c.stdin, c.stdout
	go func() {
		reply, err := roundTrip(stdin, stdout, payload)
		done <- result{reply: reply, err: err}
	}()

	select {
	case <-ctx.Done():
		// The worker is in an unknown state; restart it on next use.
		c.cmd.Process.Kill()
		<-done
		c.shutdown(true)
		return nil, fmt.Errorf("inference: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			c.shutdown(true)
			return nil, res.err
		}
		if res.reply.Error != "" {
			return nil, fmt.Errorf("worker: %s", res.reply.Error)
		}
		c.resetIdleTimer()
		return res.reply.Probabilities, nil
	}
}

// roundTrip writes one framed request and reads one framed reply.
func roundTrip(w io.Writer, r io.Reader, payload []byte) (processReply, error) {
	var reply processReply

	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return reply, fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return reply, fmt.Errorf("write request: %w", err)
	}
	return readReply(r)
}

// readReply reads one framed reply.
func readReply(r io.Reader) (processReply, error) {
	var reply processReply

	prefix := make([]byte, 4)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return reply, fmt.Errorf("read length prefix: %w", err)
	}
	size := binary.BigEndian.Uint32(prefix)
	if size > maxReplySize {
		return reply, fmt.Errorf("reply of %d bytes exceeds limit", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return reply, fmt.Errorf("read reply: %w", err)
	}
	if err := msgpack.Unmarshal(data, &reply); err != nil {
		return reply, fmt.Errorf("unmarshal reply: %w", err)
	}
	return reply, nil
}

// Close stops the worker process.
func (c *ProcessClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown(false)
}

func (c *ProcessClassifier) ensureStarted(ctx context.Context) error {
	if c.started {
		return nil
	}

	args := []string{c.config.Script}
	if c.config.Model != "" {
		args = append(args, "--model", c.config.Model)
	}
	c.cmd = exec.Command(c.config.Python, args...)

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	c.cmd.Stderr = os.Stderr

	if err := c.cmd.Start(); err != nil {
		return errors.Join(ErrUnavailable, fmt.Errorf("start worker: %w", err))
	}

	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)
	c.started = true

	if err := c.awaitReady(ctx); err != nil {
		c.shutdown(true)
		return errors.Join(ErrUnavailable, err)
	}

	slog.Info("classifier worker started", "script", c.config.Script, "model", c.config.Model)
	return nil
}

// awaitReady waits for the ready frame under the startup deadline.
func (c *ProcessClassifier) awaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.StartTimeout)
	defer cancel()

	type result struct {
		reply processReply
		err   error
	}
	done := make(chan result, 1)
	stdout := c.stdout
	go func() {
		reply, err := readReply(stdout)
		done <- result{reply: reply, err: err}
	}()

	select {
	case <-ctx.Done():
		c.cmd.Process.Kill()
		<-done
		return fmt.Errorf("load model: %w", ctx.Err())
	case res := <-done:
		switch {
		case res.err != nil:
			return fmt.Errorf("load model: %w", res.err)
		case res.reply.Error != "":
			return fmt.Errorf("load model: %s", res.reply.Error)
		case !res.reply.Ready:
			return fmt.Errorf("load model: worker did not announce readiness")
		}
		return nil
	}
}

// shutdown closes the worker's stdin and waits for it to exit.
// With kill set the process is killed instead of being allowed to drain.
func (c *ProcessClassifier) shutdown(kill bool) error {
	if !c.started {
		return nil
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.stdin.Close()
	if kill && c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	err := c.cmd.Wait()

	c.started = false
	c.cmd = nil
	c.stdin = nil
	c.stdout = nil

	return err
}

func (c *ProcessClassifier) resetIdleTimer() {
	if c.config.Idle <= 0 {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.config.Idle, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if err := c.shutdown(false); err != nil {
			slog.Debug("classifier worker idle shutdown", "error", err)
		}
	})
}
