package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// CurrentName is the pointer the daemon keeps aimed at its active log file.
const CurrentName = "analemma.log"

// DefaultPollInterval is how often Follow checks for new lines.
const DefaultPollInterval = 250 * time.Millisecond

const maxLineBytes = 1024 * 1024

// CurrentPath returns the log pointer path inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentName)
}

// Chunk is a batch of lines and the byte offset just past them.
type Chunk struct {
	Lines  []string
	Offset int64
}

// Tail returns up to limit trailing lines of path. A missing file yields an
// empty chunk. With limit <= 0 no lines are returned and Offset is the file size.
func Tail(path string, limit int) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Chunk{}, nil
		}
		return Chunk{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Chunk{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Chunk{}, fmt.Errorf("log path %q is a directory", path)
	}
	if limit <= 0 {
		return Chunk{Offset: info.Size()}, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	var offset int64
	err = scanLines(file, func(line string, consumed int64) {
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
		offset = consumed
	})
	if err != nil {
		return Chunk{}, err
	}

	lines := make([]string, 0, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := 0; i < count; i++ {
		lines = append(lines, ring[(start+i)%limit])
	}
	return Chunk{Lines: lines, Offset: offset}, nil
}

// ReadFrom returns every complete line written after offset. An offset past
// the end of the file (after truncation or rotation) restarts from zero.
func ReadFrom(path string, offset int64) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Chunk{Offset: offset}, nil
		}
		return Chunk{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}

	chunk := Chunk{Offset: offset}
	err = scanLines(file, func(line string, consumed int64) {
		chunk.Lines = append(chunk.Lines, line)
		chunk.Offset = offset + consumed
	})
	if err != nil {
		return Chunk{Offset: offset}, err
	}
	return chunk, nil
}

// Follow polls path from offset and hands each new line to emit until ctx
// is done. It returns nil when ctx is cancelled.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		chunk, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range chunk.Lines {
			emit(line)
		}
		offset = chunk.Offset

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// scanLines reports complete newline-terminated lines. A trailing partial
// line is left for the next read.
func scanLines(r io.Reader, fn func(line string, consumed int64)) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		data, err := reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			buf := append([]byte(nil), data...)
			for errors.Is(err, bufio.ErrBufferFull) && len(buf) < maxLineBytes {
				data, err = reader.ReadSlice('\n')
				buf = append(buf, data...)
			}
			data = buf
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, bufio.ErrBufferFull) {
				return nil
			}
			return fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(data))
		line := data[:len(data)-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		fn(string(line), consumed)
	}
}
