package gnss

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"
)

// LaunchFunc starts the positioning stream and returns its line source.
// Closing the returned ReadCloser must also terminate whatever produces
// the lines. The default launches `gpspipe -w`; tests substitute scripted
// streams.
type LaunchFunc func() (io.ReadCloser, error)

// Reader owns the gpspipe subprocess and is the sole writer of the cache.
// It runs on one goroutine for the life of the process and restarts the
// stream whenever it drops. A missing gpspipe binary is the one fatal,
// non-retried condition.
type Reader struct {
	Launch       LaunchFunc
	EOFBackoff   time.Duration // wait after a clean stream end
	ErrorBackoff time.Duration // wait after an unexpected error
	Verbose      bool          // log dropped lines

	cache *Cache

	mu      sync.Mutex
	current io.ReadCloser

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewReader returns a reader feeding the given cache, configured with the
// default gpspipe launcher and backoffs.
func NewReader(cache *Cache) *Reader {
	return &Reader{
		Launch:       GPSPipeLaunch("gpspipe", "-w"),
		EOFBackoff:   5 * time.Second,
		ErrorBackoff: 10 * time.Second,
		cache:        cache,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// GPSPipeLaunch builds a LaunchFunc that runs the given command and
// streams its stdout. The returned stream's Close kills the subprocess.
func GPSPipeLaunch(name string, args ...string) LaunchFunc {
	return func() (io.ReadCloser, error) {
		cmd := exec.Command(name, args...)
		out, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("%s stdout pipe: %w", name, err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting %s: %w", name, err)
		}
		return &processStream{cmd: cmd, out: out}, nil
	}
}

// processStream ties a subprocess's stdout to the process lifetime.
type processStream struct {
	cmd  *exec.Cmd
	out  io.ReadCloser
	once sync.Once
}

func (p *processStream) Read(b []byte) (int, error) { return p.out.Read(b) }

func (p *processStream) Close() error {
	p.once.Do(func() {
		p.out.Close()
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.cmd.Wait()
	})
	return nil
}

// Run is the reader loop. It blocks until Stop is called or the stream
// tool turns out to be missing; callers run it on its own goroutine. All
// faults are absorbed here, nothing propagates.
func (r *Reader) Run() {
	defer close(r.done)
	log.Println("gps: reader starting")

	for {
		if r.stopped() {
			return
		}

		stream, err := r.Launch()
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				// No point retrying against a binary that isn't there.
				// The cache freezes and every read goes stale.
				log.Printf("gps: CRITICAL: %v - GPS streaming disabled, install gpsd-clients", err)
				return
			}
			log.Printf("gps: stream launch failed: %v - retrying in %s", err, r.ErrorBackoff)
			if !r.wait(r.ErrorBackoff) {
				return
			}
			continue
		}

		r.setCurrent(stream)
		// Stop may have run while the launch was in flight, before it
		// could see this stream. Re-check so the subprocess dies instead
		// of feeding a consume loop nobody will stop.
		if r.stopped() {
			r.setCurrent(nil)
			stream.Close()
			return
		}
		err = r.consume(stream)
		r.setCurrent(nil)
		stream.Close()

		if r.stopped() {
			return
		}

		if err != nil {
			log.Printf("gps: stream read error: %v - restarting in %s", err, r.ErrorBackoff)
			if !r.wait(r.ErrorBackoff) {
				return
			}
		} else {
			log.Printf("gps: gpspipe stream ended, restarting in %s", r.EOFBackoff)
			if !r.wait(r.EOFBackoff) {
				return
			}
		}
	}
}

// Stop signals the loop, kills the active subprocess, and waits for Run to
// return. Safe to call more than once after Run has been started.
func (r *Reader) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	cur := r.current
	r.mu.Unlock()
	if cur != nil {
		cur.Close()
	}
	<-r.done
}

// consume feeds every recognized line into the cache until the stream ends.
// Malformed lines and unrecognized classes are dropped without error.
func (r *Reader) consume(stream io.Reader) error {
	sc := bufio.NewScanner(stream)
	// SKY reports carry the full satellite list and can outgrow the
	// default token size.
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for sc.Scan() {
		if r.stopped() {
			return nil
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		var probe struct {
			Class string `json:"class"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			if r.Verbose {
				log.Printf("gps: skipping non-JSON line: %q", line)
			}
			continue
		}

		switch probe.Class {
		case ClassTPV:
			var tpv TPVReport
			if err := json.Unmarshal(line, &tpv); err == nil {
				r.cache.SetTPV(tpv)
			}
		case ClassSKY:
			var sky SKYReport
			if err := json.Unmarshal(line, &sky); err == nil {
				r.cache.SetSKY(sky)
			}
		}
	}
	return sc.Err()
}

func (r *Reader) setCurrent(s io.ReadCloser) {
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
}

func (r *Reader) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// wait sleeps for d unless stopped first; reports whether the loop should
// keep going.
func (r *Reader) wait(d time.Duration) bool {
	select {
	case <-r.stop:
		return false
	case <-time.After(d):
		return true
	}
}
