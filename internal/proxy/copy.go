package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Forward copies src to dst one chunk at a time until src reports EOF or
// either side fails. It never reads the next chunk before the previous
// write completed, so a slow dst backpressures src.
//
// A clean EOF on src returns a nil error.
func Forward(dst io.Writer, src io.Reader) (int64, error) {
	buf := chunkPool.Get()
	defer chunkPool.Put(buf)

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("%w: write: %w", ErrTransport, werr)
			}
			if nw != nr {
				return written, fmt.Errorf("%w: write: %w", ErrTransport, io.ErrShortWrite)
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("%w: read: %w", ErrTransport, rerr)
		}
	}
}

// Stats reports the bytes moved by CopyBidirectional in each direction.
type Stats struct {
	// LeftToRight is the number of bytes read from left and written to right.
	LeftToRight int64
	// RightToLeft is the number of bytes read from right and written to left.
	RightToLeft int64
}

// CopyBidirectional runs one Forwarder per direction between left and right.
// When either direction stops both connections are closed, which unblocks
// the sibling. Canceling ctx closes both as well.
//
// Errors caused by the sibling's close are not reported.
func CopyBidirectional(ctx context.Context, left, right net.Conn) (Stats, error) {
	g, gctx := errgroup.WithContext(ctx)

	var closeOnce sync.Once
	done := make(chan struct{})
	closeBoth := func() {
		closeOnce.Do(func() {
			close(done)
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	var stats Stats
	forward := func(dst, src net.Conn, n *int64) func() error {
		return func() error {
			var err error
			*n, err = Forward(dst, src)
			select {
			case <-done:
				// The sibling already tore down the pair.
				err = nil
			default:
			}
			closeBoth()
			return err
		}
	}

	g.Go(forward(right, left, &stats.LeftToRight))
	g.Go(forward(left, right, &stats.RightToLeft))

	// If the context is canceled, ensure we close both sides to unblock Forward.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			closeBoth()
		case <-done:
		}
		return nil
	})

	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return stats, err
}
