package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Stream interface {
	io.ReadWriteCloser
}

// Pipe copies in both directions until both directions finish. Each
// destination is closed once its source is drained.
func Pipe(downstream, upstream Stream) error {
	errChan := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		errChan <- unidirectional(upstream, downstream, "downstream->upstream")
	}()

	go func() {
		defer wg.Done()
		errChan <- unidirectional(downstream, upstream, "upstream->downstream")
	}()

	wg.Wait()
	close(errChan)

	var errs []error
	for err := range errChan {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during bidirectional copy: %w", errors.Join(errs...))
	}

	return nil
}

// Echo writes back everything read from s and closes it on end of stream.
func Echo(s Stream) error {
	return unidirectional(s, s, "echo")
}

// Splice joins a stream to a separate input and output, such as stdin and
// stdout. The stream is closed when the peer finishes sending, when ctx is
// done, or linger after in is exhausted, whichever comes first.
func Splice(ctx context.Context, s Stream, in io.Reader, out io.Writer, linger time.Duration) error {
	outDone := make(chan error, 1)
	go func() {
		written, err := Copy(out, s)
		log.Debug().Int64("bytes", written).Msg("stream drained")
		outDone <- err
	}()

	inDone := make(chan error, 1)
	go func() {
		written, err := Copy(s, in)
		log.Debug().Int64("bytes", written).Msg("input drained")
		inDone <- err
	}()

	var errs []error
	select {
	case err := <-outDone:
		errs = append(errs, err)
	case err := <-inDone:
		errs = append(errs, err)
		timer := time.NewTimer(linger)
		defer timer.Stop()
		select {
		case err := <-outDone:
			errs = append(errs, err)
		case <-timer.C:
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}

	if err := s.Close(); err != nil && !IsOKNetworkError(err) {
		errs = append(errs, err)
	}

	for i, err := range errs {
		if IsOKNetworkError(err) {
			errs[i] = nil
		}
	}
	return errors.Join(errs...)
}

func unidirectional(dst io.WriteCloser, src io.Reader, dir string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("recovered from panic in %s stream: %v", dir, r)
			err = fmt.Errorf("panic in %s stream: %v", dir, r)
		}
		dst.Close()
	}()

	written, err := Copy(dst, src)
	if err != nil && !IsOKNetworkError(err) {
		log.Error().Err(err).Str("direction", dir).Msg("copy failed")
		return err
	}
	log.Debug().Int64("bytes", written).Str("direction", dir).Msg("copy finished")
	return nil
}

const defaultBufferSize = 128 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, defaultBufferSize)
		return &buf
	},
}

// Copy is io.Copy with pooled buffers.
func Copy(dst io.Writer, src io.Reader) (written int64, err error) {
	if wt, ok := src.(io.WriterTo); ok {
		return wt.WriteTo(dst)
	}
	if rf, ok := dst.(io.ReaderFrom); ok {
		return rf.ReadFrom(src)
	}

	buffer := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(buffer)

	return io.CopyBuffer(dst, src, *buffer)
}
