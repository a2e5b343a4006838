package segio

// White box testing of throttled streams and the in-memory pipe.

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"segio/internal/testutils"
)

func TestThrottler(t *testing.T) {
	t.Run("Limits the read rate", func(t *testing.T) {
		// 3 KiB through a bucket holding 1 KiB at 8 KiB/s: at least 2 KiB of
		// budget must accrue, so the transfer takes 250ms or more.
		data := testutils.Alphabet(3 * 1024)
		throttler := NewThrottler(8*1024, 1024)
		src := throttler.Source(context.Background(), &chunkedSource{data: data, chunkSize: 1024})

		start := time.Now()
		got, err := NewReader(src).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Error("expected the throttled stream to pass through unchanged")
		}
		if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
			t.Errorf("expected the transfer to take at least 250ms, took %v", elapsed)
		}
	})

	t.Run("Limits the write rate", func(t *testing.T) {
		data := testutils.Alphabet(2 * 1024)
		downstream := &recordingSink{}
		throttler := NewThrottler(4*1024, 512)
		sink := throttler.Sink(context.Background(), downstream)

		source, _ := newTestBuffer(t)
		source.Write(data)

		start := time.Now()
		if err := sink.WriteBuffer(source, source.Size()); err != nil {
			t.Fatal(err)
		}
		if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
			t.Errorf("expected the transfer to take at least 250ms, took %v", elapsed)
		}
		got, _ := downstream.data.ReadBytes(downstream.data.Size())
		if !bytes.Equal(got, data) {
			t.Error("expected all bytes to be delivered")
		}
	})

	t.Run("Cancellation unblocks a waiting transfer", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		time.AfterFunc(50*time.Millisecond, cancel)

		throttler := NewThrottler(1, 1) // 1 byte per second.
		src := throttler.Source(ctx, &chunkedSource{data: testutils.Alphabet(100), chunkSize: 100})

		_, err := NewReader(src).ReadBytes(100)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("Panics on a non-positive rate", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected a panic for a zero rate")
			}
		}()
		NewThrottler(0, 1)
	})

	t.Run("Panics on a non-positive burst", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected a panic for a zero burst")
			}
		}()
		NewThrottler(1024, 0)
	})
}

func TestPipe(t *testing.T) {
	t.Run("Streams between goroutines", func(t *testing.T) {
		data := testutils.Alphabet(32 * SegmentSize)
		p := NewPipe(2 * SegmentSize) // Much smaller than the payload, so writes block.

		var g errgroup.Group
		g.Go(func() error {
			w := NewWriter(p.Sink())
			if _, err := w.Write(data); err != nil {
				return err
			}
			return w.Close()
		})

		got, err := NewReader(p.Source()).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Wait(); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, data) {
			t.Error("expected the pipe to deliver all bytes in order")
		}
	})

	t.Run("Readers drain the buffer then see EOF", func(t *testing.T) {
		p := NewPipe(1024)
		w := NewWriter(p.Sink())
		w.WriteString("last words")
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}

		r := NewReader(p.Source())
		got, err := r.ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "last words" {
			t.Errorf("expected %q, got %q", "last words", got)
		}
		exhausted, err := r.Exhausted()
		if err != nil || !exhausted {
			t.Errorf("expected EOF after the drain, got %t err=%v", exhausted, err)
		}
	})

	t.Run("A blocked write fails when the source closes", func(t *testing.T) {
		p := NewPipe(1024)
		source, _ := newTestBuffer(t)
		source.Write(testutils.Alphabet(4096))

		var g errgroup.Group
		g.Go(func() error {
			// Fills the pipe, then blocks until the source side goes away.
			return p.Sink().WriteBuffer(source, source.Size())
		})
		time.Sleep(50 * time.Millisecond)
		if err := p.Source().Close(); err != nil {
			t.Fatal(err)
		}

		if err := g.Wait(); !errors.Is(err, ErrPipeClosed) {
			t.Errorf("expected ErrPipeClosed, got %v", err)
		}
	})

	t.Run("Sink close refuses undeliverable bytes", func(t *testing.T) {
		p := NewPipe(1024)
		source, _ := newTestBuffer(t)
		source.WriteString("stranded")
		if err := p.Sink().WriteBuffer(source, source.Size()); err != nil {
			t.Fatal(err)
		}
		if err := p.Source().Close(); err != nil {
			t.Fatal(err)
		}

		if err := p.Sink().Flush(); !errors.Is(err, ErrPipeClosed) {
			t.Errorf("expected ErrPipeClosed from Flush, got %v", err)
		}
		if err := p.Sink().Close(); !errors.Is(err, ErrPipeClosed) {
			t.Errorf("expected ErrPipeClosed from Close, got %v", err)
		}
	})

	t.Run("Reads fail after the source closes", func(t *testing.T) {
		p := NewPipe(1024)
		if err := p.Source().Close(); err != nil {
			t.Fatal(err)
		}
		b, _ := newTestBuffer(t)
		if _, err := p.Source().ReadBuffer(b, 10); err != ErrClosed {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})

	t.Run("Zero-byte reads never block", func(t *testing.T) {
		p := NewPipe(1024)
		b, _ := newTestBuffer(t)
		n, err := p.Source().ReadBuffer(b, 0)
		if n != 0 || err != nil {
			t.Errorf("expected (0, nil) from an empty pipe, got (%d, %v)", n, err)
		}
	})

	t.Run("Close is idempotent on both sides", func(t *testing.T) {
		p := NewPipe(1024)
		if err := p.Sink().Close(); err != nil {
			t.Fatal(err)
		}
		if err := p.Sink().Close(); err != nil {
			t.Errorf("expected a second sink close to be a no-op, got %v", err)
		}
		if err := p.Source().Close(); err != nil {
			t.Fatal(err)
		}
		if err := p.Source().Close(); err != nil {
			t.Errorf("expected a second source close to be a no-op, got %v", err)
		}
	})

	t.Run("Panics on a non-positive capacity", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected a panic for a zero capacity")
			}
		}()
		NewPipe(0)
	})
}
