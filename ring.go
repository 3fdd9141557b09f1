// ring.go: MPSC task ring feeding the event loop
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import "sync/atomic"

// taskRing is a bounded multi-producer single-consumer ring of tasks.
// Any goroutine may push; only the loop goroutine drains.
type taskRing struct {
	buffer   []func()
	capacity int64
	mask     int64 // capacity - 1 for fast modulo

	// MPSC atomic cursors with cache-line padding
	writerCursor atomic.Int64
	readerCursor atomic.Int64
	_            [48]byte

	// Per-slot availability markers, -1 when empty
	availableBuffer []atomic.Int64

	batchSize int64
	running   atomic.Bool

	processed atomic.Int64
	dropped   atomic.Int64
}

// newTaskRing creates a ring. capacity must be a power of 2; invalid values
// fall back to 256.
func newTaskRing(capacity, batchSize int64) *taskRing {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		capacity = 256
	}
	if batchSize <= 0 {
		batchSize = 16
	}

	r := &taskRing{
		buffer:          make([]func(), capacity),
		capacity:        capacity,
		mask:            capacity - 1,
		availableBuffer: make([]atomic.Int64, capacity),
		batchSize:       batchSize,
	}
	for i := range r.availableBuffer {
		r.availableBuffer[i].Store(-1)
	}
	r.running.Store(true)
	return r
}

// push enqueues fn. It returns false when the ring is full or stopped.
func (r *taskRing) push(fn func()) bool {
	if !r.running.Load() {
		r.dropped.Add(1)
		return false
	}

	// Claim a sequence only when a slot is free, so a full ring never leaves
	// an unpublished hole behind.
	var sequence int64
	for {
		sequence = r.writerCursor.Load()
		if sequence >= r.readerCursor.Load()+r.capacity {
			r.dropped.Add(1)
			return false
		}
		if r.writerCursor.CompareAndSwap(sequence, sequence+1) {
			break
		}
	}

	r.buffer[sequence&r.mask] = fn
	r.availableBuffer[sequence&r.mask].Store(sequence)
	return true
}

// drain runs up to batchSize contiguous published tasks through run and
// returns how many were processed.
func (r *taskRing) drain(run func(func())) int {
	current := r.readerCursor.Load()
	writerPos := r.writerCursor.Load()
	if current >= writerPos {
		return 0
	}

	maxProcess := minInt64(r.batchSize, writerPos-current)
	available := current - 1
	for seq := current; seq < current+maxProcess; seq++ {
		if r.availableBuffer[seq&r.mask].Load() == seq {
			available = seq
		} else {
			break
		}
	}
	if available < current {
		return 0
	}

	for seq := current; seq <= available; seq++ {
		idx := seq & r.mask
		fn := r.buffer[idx]
		r.buffer[idx] = nil
		r.availableBuffer[idx].Store(-1)
		// Publish the slot before running the task so the task may push again.
		r.readerCursor.Store(seq + 1)
		r.processed.Add(1)
		run(fn)
	}
	return int(available - current + 1)
}

// pending returns the number of claimed but unprocessed slots.
func (r *taskRing) pending() int64 {
	return r.writerCursor.Load() - r.readerCursor.Load()
}

func (r *taskRing) stop() {
	r.running.Store(false)
}

func (r *taskRing) stats() map[string]int64 {
	return map[string]int64{
		"writer_position": r.writerCursor.Load(),
		"reader_position": r.readerCursor.Load(),
		"buffer_size":     r.capacity,
		"items_buffered":  r.pending(),
		"items_processed": r.processed.Load(),
		"items_dropped":   r.dropped.Load(),
		"batch_size":      r.batchSize,
	}
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
