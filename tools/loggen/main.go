// Command loggen appends synthetic bait-server traffic to an access log so
// the ingest worker can be exercised locally, including log rotation.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

func main() {
	out := flag.String("out", "./logs/access.log", "Access log file to append to")
	duration := flag.Duration("d", 30*time.Second, "How long to generate traffic")
	rps := flag.Int("rps", 50, "Lines per second")
	malformed := flag.Float64("malformed", 0.02, "Fraction of malformed lines")
	rotateEvery := flag.Int("rotate-every", 0, "Rotate the log after this many lines (0 disables)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	log.Printf("Writing synthetic traffic to %s", *out)
	log.Printf("Duration: %s, RPS: %d, Malformed: %.2f, Rotate every: %d", *duration, *rps, *malformed, *rotateEvery)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := newRotatingWriter(*out, *rotateEvery)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", *out, err)
	}
	defer w.Close()

	limiter := rate.NewLimiter(rate.Limit(*rps), max(1, *rps/10))
	gen := NewGenerator(*seed, *malformed)

	var written int64
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := w.WriteLine(gen.Line()); err != nil {
			log.Fatalf("Failed to write line: %v", err)
		}
		written++
	}

	log.Println("Generation finished.")
	log.Printf("Lines written: %d", written)
	log.Printf("Rotations: %d", w.rotations)
}

type rotatingWriter struct {
	path        string
	rotateEvery int
	file        *os.File
	lines       int
	rotations   int
}

func newRotatingWriter(path string, rotateEvery int) (*rotatingWriter, error) {
	w := &rotatingWriter{path: path, rotateEvery: rotateEvery}
	return w, w.open()
}

func (w *rotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w.file = f
	w.lines = 0
	return nil
}

// WriteLine appends line and rotates the file by renaming it to path.1 once
// rotateEvery lines were written.
func (w *rotatingWriter) WriteLine(line string) error {
	if _, err := w.file.WriteString(line); err != nil {
		return err
	}
	w.lines++
	if w.rotateEvery <= 0 || w.lines < w.rotateEvery {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.path, w.path+".1"); err != nil {
		return err
	}
	w.rotations++
	return w.open()
}

func (w *rotatingWriter) Close() error {
	return w.file.Close()
}
