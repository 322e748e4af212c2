package history

import (
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rcliao/opshistory/internal/codec"
	"github.com/rcliao/opshistory/internal/model"
)

// Snapshot is an encoded, immutable capture of a state value. It is owned by
// the operation that created it.
type Snapshot struct {
	id          string
	timestamp   time.Time
	kind        model.OperationKind
	payload     []byte
	codec       codec.Kind
	hash        string
	size        int
	entityCount int
}

func (s *Snapshot) ID() string                { return s.id }
func (s *Snapshot) Timestamp() time.Time      { return s.timestamp }
func (s *Snapshot) Kind() model.OperationKind { return s.kind }
func (s *Snapshot) Codec() codec.Kind         { return s.codec }

// Hash is a short xxhash digest of the encoded payload. It detects damage,
// it does not authenticate.
func (s *Snapshot) Hash() string { return s.hash }

// Size is the encoded payload length in bytes.
func (s *Snapshot) Size() int { return s.size }

// EntityCount is a diagnostic count of the domain entities in the state.
func (s *Snapshot) EntityCount() int { return s.entityCount }

// Detached reports whether the payload was not loaded (history files saved
// without payloads). Detached snapshots cannot be decoded.
func (s *Snapshot) Detached() bool { return s.payload == nil }

// held is the number of bytes the snapshot keeps in memory.
func (s *Snapshot) held() int64 {
	if s == nil {
		return 0
	}
	return int64(len(s.payload))
}

func (s *Snapshot) record(withPayload bool) *model.SnapshotRecord {
	if s == nil {
		return nil
	}
	rec := &model.SnapshotRecord{
		ID:          s.id,
		Timestamp:   s.timestamp,
		Codec:       string(s.codec),
		Hash:        s.hash,
		Size:        s.size,
		EntityCount: s.entityCount,
	}
	if withPayload {
		rec.Payload = s.payload
	}
	return rec
}

func contentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// decodeSnapshot decodes a snapshot with the codec it was written with.
func decodeSnapshot[S any](s *Snapshot) (S, error) {
	var state S
	if s.Detached() {
		return state, &SnapshotError{SnapshotID: s.id, Codec: s.codec, Err: errDetached}
	}
	c, err := codec.For(s.codec)
	if err != nil {
		return state, &SnapshotError{SnapshotID: s.id, Codec: s.codec, Err: err}
	}
	if state, err = decodeState[S](c, s.payload); err != nil {
		return state, &SnapshotError{SnapshotID: s.id, Codec: s.codec, Err: err}
	}
	return state, nil
}

// gobEnvelope carries a state through the native codec. gob cannot decode
// into a bare interface value, so an interface-typed S travels as a field.
type gobEnvelope[S any] struct {
	V S
}

func encodeState[S any](c codec.Codec, state S) ([]byte, error) {
	if c.Kind() == codec.Native {
		return c.Encode(gobEnvelope[S]{V: state})
	}
	return c.Encode(state)
}

func decodeState[S any](c codec.Codec, data []byte) (S, error) {
	if c.Kind() == codec.Native {
		var env gobEnvelope[S]
		err := c.Decode(data, &env)
		return env.V, err
	}
	var state S
	err := c.Decode(data, &state)
	return state, err
}

// EntityCounter lets a state report its own entity count.
type EntityCounter interface {
	EntityCount() int
}

// snapshotter builds snapshots with the active codec, falling back to the
// None codec when the active one cannot encode a state.
type snapshotter struct {
	active      codec.Codec
	fallback    codec.Codec
	collections []string
	logger      *slog.Logger
}

func newSnapshotter(kind codec.Kind, collections []string, logger *slog.Logger) (*snapshotter, error) {
	active, err := codec.For(kind)
	if err != nil {
		return nil, err
	}
	fallback, err := codec.For(codec.None)
	if err != nil {
		return nil, err
	}
	return &snapshotter{
		active:      active,
		fallback:    fallback,
		collections: collections,
		logger:      logger,
	}, nil
}

// buildSnapshot encodes state with b's active codec. fellBack reports that
// the fallback codec was used.
func buildSnapshot[S any](b *snapshotter, id string, kind model.OperationKind, state S) (snap *Snapshot, fellBack bool, err error) {
	used := b.active
	data, err := encodeState(used, state)
	if err != nil {
		if used.Kind() == b.fallback.Kind() {
			return nil, false, fmt.Errorf("%w: snapshot %s: %w", ErrEncodeFailure, id, err)
		}
		b.logger.Warn("codec failed, falling back",
			slog.String("snapshot_id", id),
			slog.String("codec", string(used.Kind())),
			slog.String("fallback", string(b.fallback.Kind())),
			slog.String("error", err.Error()))
		codecFallbacksTotal.WithLabelValues(string(used.Kind())).Inc()

		used = b.fallback
		fellBack = true
		data, err = encodeState(used, state)
		if err != nil {
			return nil, true, fmt.Errorf("%w: snapshot %s: %w", ErrEncodeFailure, id, err)
		}
	}

	return &Snapshot{
		id:          id,
		timestamp:   time.Now(),
		kind:        kind,
		payload:     data,
		codec:       used.Kind(),
		hash:        contentHash(data),
		size:        len(data),
		entityCount: countEntities(state, b.collections),
	}, fellBack, nil
}

// countEntities sums the lengths of the named collections when state is a
// string-keyed map. Any other shape counts as zero.
func countEntities(state any, collections []string) int {
	if c, ok := state.(EntityCounter); ok {
		return c.EntityCount()
	}

	v := indirect(reflect.ValueOf(state))
	if !v.IsValid() || v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return 0
	}

	n := 0
	keyType := v.Type().Key()
	for _, name := range collections {
		f := indirect(v.MapIndex(reflect.ValueOf(name).Convert(keyType)))
		if !f.IsValid() {
			continue
		}
		switch f.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			n += f.Len()
		}
	}
	return n
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
