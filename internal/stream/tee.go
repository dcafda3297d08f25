package stream

import (
	"bytes"
	"io"
	"sync"
)

const readChunkSize = 32 * 1024

// Tee splits src into two readers that each observe every byte of src.
// Branches are independent: a slow or closed branch never stalls the other,
// as unread data is buffered per branch. src is closed once both branches are
// closed or src is exhausted.
func Tee(src io.ReadCloser) (io.ReadCloser, io.ReadCloser) {
	s := &splitter{src: src}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return &branch{s: s, idx: 0}, &branch{s: s, idx: 1}
}

type branchState struct {
	buf    bytes.Buffer
	closed bool
}

type splitter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	src      io.ReadCloser
	branches [2]branchState
	done     bool
	err      error

	closeOnce sync.Once
}

func (s *splitter) pump() {
	chunk := make([]byte, readChunkSize)
	for {
		n, err := s.src.Read(chunk)

		s.mu.Lock()
		if n > 0 {
			for i := range s.branches {
				if !s.branches[i].closed {
					s.branches[i].buf.Write(chunk[:n])
				}
			}
		}
		if err != nil {
			s.done = true
			s.err = err
			s.cond.Broadcast()
			s.mu.Unlock()
			s.closeSource()
			return
		}
		abandoned := s.allClosedLocked()
		s.cond.Broadcast()
		s.mu.Unlock()

		if abandoned {
			return
		}
	}
}

func (s *splitter) allClosedLocked() bool {
	return s.branches[0].closed && s.branches[1].closed
}

func (s *splitter) closeSource() {
	s.closeOnce.Do(func() {
		_ = s.src.Close()
	})
}

type branch struct {
	s   *splitter
	idx int
}

// Read blocks until data is buffered for this branch or the source ends.
func (b *branch) Read(p []byte) (int, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.branches[b.idx]
	for st.buf.Len() == 0 && !s.done && !st.closed {
		s.cond.Wait()
	}
	if st.closed {
		return 0, io.ErrClosedPipe
	}
	if st.buf.Len() > 0 {
		return st.buf.Read(p)
	}
	return 0, s.err
}

// Close discards this branch's buffer. The source is closed when the other
// branch is closed too.
func (b *branch) Close() error {
	s := b.s
	s.mu.Lock()
	st := &s.branches[b.idx]
	if st.closed {
		s.mu.Unlock()
		return nil
	}
	st.closed = true
	st.buf = bytes.Buffer{}
	both := s.allClosedLocked()
	s.cond.Broadcast()
	s.mu.Unlock()

	if both {
		s.closeSource()
	}
	return nil
}
