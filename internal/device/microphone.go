// Package device provides terminal stand-ins for the capture, viewport and
// audio hardware of a chat client.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/recording"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
)

const defaultChunkSize = 4096

// FileMicrophone "captures" audio by streaming a file in chunks. Pace delays
// each chunk to mimic real-time capture.
type FileMicrophone struct {
	ChunkSize int
	Pace      time.Duration

	mu   sync.Mutex
	path string
}

// Use selects the file the next Open streams.
func (m *FileMicrophone) Use(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
}

// Open implements recording.Microphone.
func (m *FileMicrophone) Open(ctx context.Context) (recording.Stream, error) {
	m.mu.Lock()
	path := m.path
	m.mu.Unlock()

	if path == "" {
		return nil, fmt.Errorf("%w: no input file selected", speech.ErrDeviceUnavailable)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", speech.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", speech.ErrDeviceUnavailable, err)
	}

	size := m.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	s := &fileStream{
		file:   f,
		chunks: make(chan []byte, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.pump(size, m.Pace)
	return s, nil
}

type fileStream struct {
	file      *os.File
	chunks    chan []byte
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *fileStream) pump(size int, pace time.Duration) {
	defer close(s.done)
	defer close(s.chunks)

	for {
		buf := make([]byte, size)
		n, err := s.file.Read(buf)
		if n > 0 {
			select {
			case s.chunks <- buf[:n]:
			case <-s.stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return
			}
			// the file is exhausted; keep the device open until stopped
			<-s.stop
			return
		}
		if pace > 0 {
			select {
			case <-time.After(pace):
			case <-s.stop:
				return
			}
		}
	}
}

func (s *fileStream) Chunks() <-chan []byte { return s.chunks }

func (s *fileStream) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *fileStream) Close() error {
	s.Stop()
	var err error
	s.closeOnce.Do(func() {
		<-s.done
		err = s.file.Close()
	})
	return err
}
