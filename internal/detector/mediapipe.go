package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Request opcodes understood by pose_service.py.
const (
	opDetect = 'D'
	opMode   = 'M'
)

// idleTimeout is how long the Python process may sit unused before it is stopped.
const idleTimeout = 30 * time.Second

var (
	// ErrServiceNotFound is returned when pose_service.py cannot be located.
	ErrServiceNotFound = errors.New("pose_service.py not found")
	// ErrModelLoad is returned when the pose service exits or reports an
	// error before its landmarker is built.
	ErrModelLoad = errors.New("pose model failed to load")

	// errReply marks an error the service answered with. The pipe is still
	// in sync afterwards, so the process is kept.
	errReply = errors.New("pose service")
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
// The service prints one ready line once its model is built; every request
// after that gets exactly one JSON line back.
type MediaPipeDetector struct {
	config  Config
	command []string
	idle    time.Duration

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	ready     bool
	starts    int
	mode      RunningMode
	idleTimer *time.Timer
	idleGen   int
}

// NewMediaPipeDetector creates a new MediaPipe pose detector. The service is
// not started; call Start to load the model, or let the first request do it.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	script := findPoseScript()
	if script == "" {
		return nil, ErrServiceNotFound
	}

	python := findVenvPython()
	if python == "" {
		python = "python3"
	}

	return newMediaPipeDetector(config, python, script), nil
}

// newMediaPipeDetector builds a detector that runs command followed by the
// service flags.
func newMediaPipeDetector(config Config, command ...string) *MediaPipeDetector {
	if config.MaxPoses <= 0 {
		config.MaxPoses = 1
	}
	if config.Delegate == "" {
		config.Delegate = DelegateGPU
	}

	return &MediaPipeDetector{
		config:  config,
		command: command,
		idle:    idleTimeout,
		mode:    config.RunningMode,
	}
}

// Start launches the pose service and blocks until it reports that the model
// has loaded. It returns an error wrapping ErrModelLoad if loading fails.
func (d *MediaPipeDetector) Start(ctx context.Context) error {
	return d.roundTrip(ctx, func() error { return nil })
}

// SetRunningMode switches the service between IMAGE and VIDEO processing
// and waits for it to acknowledge.
func (d *MediaPipeDetector) SetRunningMode(ctx context.Context, mode RunningMode) error {
	return d.roundTrip(ctx, func() error {
		if _, err := d.stdin.Write([]byte{opMode, byte(mode)}); err != nil {
			return fmt.Errorf("write mode: %w", err)
		}

		var ack struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		if err := d.readReply(&ack); err != nil {
			return err
		}
		if !ack.OK {
			return fmt.Errorf("%w: set running mode %s: %s", errReply, mode, ack.Error)
		}

		d.mode = mode
		return nil
	})
}

// Detect encodes the frame as JPEG, sends it to the service and returns the
// detected poses.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame *gocv.Mat, timestampMs int64) (Result, error) {
	if frame == nil || frame.Empty() {
		return Result{}, errors.New("empty frame")
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return Result{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	var result Result
	err = d.roundTrip(ctx, func() error {
		// opcode + 8-byte timestamp + 4-byte length, all big-endian
		header := make([]byte, 13)
		header[0] = opDetect
		binary.BigEndian.PutUint64(header[1:9], uint64(timestampMs))
		binary.BigEndian.PutUint32(header[9:13], uint32(len(data)))

		if _, err := d.stdin.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if _, err := d.stdin.Write(data); err != nil {
			return fmt.Errorf("write data: %w", err)
		}

		var response struct {
			Poses []jsonPose `json:"poses"`
			Error string     `json:"error"`
		}
		if err := d.readReply(&response); err != nil {
			return err
		}
		if response.Error != "" {
			return fmt.Errorf("%w: %s", errReply, response.Error)
		}

		result = Result{
			Poses:       make([]Pose, 0, len(response.Poses)),
			TimestampMs: timestampMs,
		}
		for _, p := range response.Poses {
			result.Poses = append(result.Poses, p.toPose())
		}
		return nil
	})

	return result, err
}

// roundTrip runs fn against the service with the lock held, starting the
// process and waiting for its ready line first if needed. Any failure other
// than an error reply, and any cancellation, kills the process: a half-read
// response would leave the pipe out of sync. The next call starts a new one.
func (d *MediaPipeDetector) roundTrip(ctx context.Context, fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.spawn(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		if !d.ready {
			if err := d.awaitReady(); err != nil {
				done <- err
				return
			}
			d.ready = true
		}
		done <- fn()
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, errReply) {
			d.kill()
			return err
		}
		d.resetIdleTimer()
		return err
	case <-ctx.Done():
		d.cmd.Process.Kill()
		<-done
		d.shutdown()
		return ctx.Err()
	}
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// spawn starts the service process if it is not running.
func (d *MediaPipeDetector) spawn() error {
	if d.started {
		return nil
	}
	if len(d.command) == 0 {
		return ErrServiceNotFound
	}

	args := append([]string{}, d.command[1:]...)
	args = append(args,
		"--model", d.config.ModelPath,
		"--delegate", string(d.config.Delegate),
		"--mode", d.mode.String(),
		"--num-poses", fmt.Sprint(d.config.MaxPoses),
		"--min-confidence", fmt.Sprint(d.config.MinConfidence),
	)
	cmd := exec.Command(d.command[0], args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("pose service stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pose service stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.ready = false
	d.starts++

	return nil
}

func (d *MediaPipeDetector) awaitReady() error {
	var status struct {
		Ready bool   `json:"ready"`
		Error string `json:"error"`
	}
	if err := d.readReply(&status); err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if !status.Ready {
		return fmt.Errorf("%w: %s", ErrModelLoad, status.Error)
	}
	return nil
}

// readReply decodes one JSON line from the service into v.
func (d *MediaPipeDetector) readReply(v any) error {
	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("parse reply: %w", err)
	}
	return nil
}

// kill stops a service that can no longer be trusted and reaps it.
func (d *MediaPipeDetector) kill() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	d.shutdown()
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.ready = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

// resetIdleTimer restarts the idle shutdown countdown. A restarted process
// comes back in the last acknowledged running mode.
func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleGen++
	gen := d.idleGen
	d.idleTimer = time.AfterFunc(d.idle, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		// A request that ran while this timer fired has rearmed it.
		if d.idleGen == gen {
			d.shutdown()
		}
	})
}

// searchPaths lists where a bundled file may live: relative to the working
// directory during development, next to the binary, then under ~/.poseball.
func searchPaths(rel string) []string {
	paths := []string{rel, filepath.Join("..", rel), filepath.Join("..", "..", rel)}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), rel))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".poseball", rel))
	}
	return paths
}

func findPoseScript() string {
	return firstExisting(searchPaths(filepath.Join("scripts", "pose_service.py")))
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	return firstExisting(searchPaths(filepath.Join("venv", "bin", "python")))
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

// jsonPose represents the JSON structure from the Python service.
type jsonPose struct {
	Landmarks []Landmark `json:"landmarks"`
}

func (p jsonPose) toPose() Pose {
	n := len(p.Landmarks)
	if n > NumLandmarks {
		n = NumLandmarks
	}
	lm := make([]Landmark, n)
	copy(lm, p.Landmarks[:n])
	return Pose{Landmarks: lm}
}
