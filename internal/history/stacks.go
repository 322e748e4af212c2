package history

// stacks holds the undo and redo stacks, most recent last, and the snapshot
// bytes held by both. It does no locking; the Engine owns it.
type stacks[S any] struct {
	undo  []*Operation[S]
	redo  []*Operation[S]
	bytes int64
}

func (s *stacks[S]) pushUndo(op *Operation[S]) {
	s.undo = append(s.undo, op)
	s.bytes += op.Size()
}

func (s *stacks[S]) pushRedo(op *Operation[S]) {
	s.redo = append(s.redo, op)
	s.bytes += op.Size()
}

func (s *stacks[S]) popUndo() *Operation[S] {
	if len(s.undo) == 0 {
		return nil
	}
	op := s.undo[len(s.undo)-1]
	s.undo[len(s.undo)-1] = nil
	s.undo = s.undo[:len(s.undo)-1]
	s.bytes -= op.Size()
	return op
}

func (s *stacks[S]) popRedo() *Operation[S] {
	if len(s.redo) == 0 {
		return nil
	}
	op := s.redo[len(s.redo)-1]
	s.redo[len(s.redo)-1] = nil
	s.redo = s.redo[:len(s.redo)-1]
	s.bytes -= op.Size()
	return op
}

// clearRedo drops the redo stack and returns how many operations it held.
func (s *stacks[S]) clearRedo() int {
	n := len(s.redo)
	for _, op := range s.redo {
		s.bytes -= op.Size()
	}
	s.redo = nil
	return n
}

// evictOldest removes the head of the undo stack.
func (s *stacks[S]) evictOldest() *Operation[S] {
	if len(s.undo) == 0 {
		return nil
	}
	op := s.undo[0]
	s.undo[0] = nil
	s.undo = s.undo[1:]
	s.bytes -= op.Size()
	return op
}

func (s *stacks[S]) reset() {
	s.undo = nil
	s.redo = nil
	s.bytes = 0
}

// evictResult describes one eviction run.
type evictResult struct {
	byCount  int
	byMemory int

	// memoryTriggered is set when the memory pass ran; usage is measured
	// before it removed anything.
	memoryTriggered bool
	usageBytes      int64
}

// evict runs count eviction then memory eviction.
func (s *stacks[S]) evict(countLimit int, budget int64) evictResult {
	var res evictResult

	for len(s.undo) > countLimit {
		s.evictOldest()
		res.byCount++
	}

	if s.bytes <= budget {
		return res
	}
	res.memoryTriggered = true
	res.usageBytes = s.bytes

	target := int64(float64(budget) * memoryTarget)
	for s.bytes > target && len(s.undo) > MinRetained {
		s.evictOldest()
		res.byMemory++
	}
	return res
}

// contains reports whether id is on either stack and which.
func (s *stacks[S]) contains(id string) (inUndo, inRedo bool) {
	for _, op := range s.undo {
		if op.id == id {
			inUndo = true
			break
		}
	}
	for _, op := range s.redo {
		if op.id == id {
			inRedo = true
			break
		}
	}
	return inUndo, inRedo
}
