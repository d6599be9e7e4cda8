// Package stream provides the lazy, forward-only record sequences that
// dataset loaders return. A stream does no work until Scan is called,
// so building one is cheap even when its source is a large file;
// combinators compose lazily, and a union of per-file streams opens
// each file only when its records are reached.
package stream

// Stream is a lazy sequence of records. The usage pattern follows the
// usual scanner contract:
//
//	for s.Scan() {
//	    use(s.Record())
//	}
//	err := s.Close()
//
// Record is valid only after a true Scan. Close reports the first
// error encountered, including any deferred Err.
type Stream[T any] interface {
	// Scan advances to the next record, returning false at the end of
	// the sequence or on error.
	Scan() bool
	// Record returns the current record.
	Record() T
	// Err returns the error that terminated scanning, if any.
	Err() error
	// Close releases underlying resources and returns Err.
	Close() error
}

type errorStream[T any] struct{ err error }

func (s *errorStream[T]) Scan() bool   { return false }
func (s *errorStream[T]) Record() T    { panic("Record called on error stream") }
func (s *errorStream[T]) Err() error   { return s.err }
func (s *errorStream[T]) Close() error { return s.err }

// Error returns a stream that yields no records and reports err from
// Err and Close. Loaders use it to defer open failures to consumption
// time.
func Error[T any](err error) Stream[T] {
	return &errorStream[T]{err: err}
}

type sliceStream[T any] struct {
	recs []T
	pos  int
}

func (s *sliceStream[T]) Scan() bool {
	if s.pos >= len(s.recs) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream[T]) Record() T    { return s.recs[s.pos-1] }
func (s *sliceStream[T]) Err() error   { return nil }
func (s *sliceStream[T]) Close() error { return nil }

// FromSlice returns a stream over the already-materialized records.
func FromSlice[T any](recs []T) Stream[T] {
	return &sliceStream[T]{recs: recs}
}

// funcStream adapts a generator function to the Stream interface.
type funcStream[T any] struct {
	next  func() (T, bool, error)
	close func() error
	cur   T
	err   error
	done  bool
}

func (s *funcStream[T]) Scan() bool {
	if s.done || s.err != nil {
		return false
	}
	rec, ok, err := s.next()
	if err != nil {
		s.err = err
		s.done = true
		return false
	}
	if !ok {
		s.done = true
		return false
	}
	s.cur = rec
	return true
}

func (s *funcStream[T]) Record() T  { return s.cur }
func (s *funcStream[T]) Err() error { return s.err }

func (s *funcStream[T]) Close() error {
	var closeErr error
	if s.close != nil {
		closeErr = s.close()
		s.close = nil
	}
	if s.err != nil {
		return s.err
	}
	return closeErr
}

// Generate returns a stream driven by next, which yields the next
// record, false at the end of the sequence, or an error. close, which
// may be nil, releases resources.
func Generate[T any](next func() (T, bool, error), close func() error) Stream[T] {
	return &funcStream[T]{next: next, close: close}
}

// Deferred returns a stream whose underlying stream is constructed by
// open on the first Scan. Loaders use it to keep file opens and eager
// parses off the load path.
func Deferred[T any](open func() (Stream[T], error)) Stream[T] {
	var inner Stream[T]
	return &funcStream[T]{
		next: func() (T, bool, error) {
			var zero T
			if inner == nil {
				var err error
				if inner, err = open(); err != nil {
					return zero, false, err
				}
			}
			if inner.Scan() {
				return inner.Record(), true, nil
			}
			return zero, false, inner.Err()
		},
		close: func() error {
			if inner == nil {
				return nil
			}
			return inner.Close()
		},
	}
}

type unionStream[T any] struct {
	streams []Stream[T]
	pos     int
	err     error
}

func (s *unionStream[T]) Scan() bool {
	for s.pos < len(s.streams) {
		cur := s.streams[s.pos]
		if cur.Scan() {
			return true
		}
		if err := cur.Err(); err != nil {
			s.err = err
			return false
		}
		s.pos++
	}
	return false
}

func (s *unionStream[T]) Record() T  { return s.streams[s.pos].Record() }
func (s *unionStream[T]) Err() error { return s.err }

func (s *unionStream[T]) Close() error {
	err := s.err
	for _, sub := range s.streams {
		if cerr := sub.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}
	return err
}

// Union concatenates the streams lazily: each constituent is consumed
// in order, and none is touched before its predecessors are exhausted.
func Union[T any](streams ...Stream[T]) Stream[T] {
	if len(streams) == 1 {
		return streams[0]
	}
	return &unionStream[T]{streams: streams}
}

// Map returns a stream applying fn to every record of s.
func Map[S, T any](s Stream[S], fn func(S) (T, error)) Stream[T] {
	return Generate(func() (T, bool, error) {
		var zero T
		if !s.Scan() {
			return zero, false, s.Err()
		}
		rec, err := fn(s.Record())
		if err != nil {
			return zero, false, err
		}
		return rec, true, nil
	}, s.Close)
}

// Filter returns a stream of the records of s for which keep is true.
func Filter[T any](s Stream[T], keep func(T) bool) Stream[T] {
	return Generate(func() (T, bool, error) {
		for s.Scan() {
			if rec := s.Record(); keep(rec) {
				return rec, true, nil
			}
		}
		var zero T
		return zero, false, s.Err()
	}, s.Close)
}

// Collect materializes the remainder of the stream and closes it.
func Collect[T any](s Stream[T]) ([]T, error) {
	var recs []T
	for s.Scan() {
		recs = append(recs, s.Record())
	}
	if err := s.Close(); err != nil {
		return nil, err
	}
	return recs, nil
}
