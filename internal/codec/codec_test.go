package codec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y float64
}

type room struct {
	ID      string
	Name    string
	Outline []point
	Props   map[string]string
}

type floorState struct {
	Level string
	Rooms []room
	Index map[string]int
}

func largeState(n int) floorState {
	st := floorState{Level: "L1", Index: make(map[string]int, n)}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("room-%04d", i)
		st.Rooms = append(st.Rooms, room{
			ID:   id,
			Name: "Office " + id,
			Outline: []point{
				{X: float64(i), Y: 0}, {X: float64(i) + 4.5, Y: 0},
				{X: float64(i) + 4.5, Y: 3.25}, {X: float64(i), Y: 3.25},
			},
			Props: map[string]string{"usage": "office", "finish": "carpet"},
		})
		st.Index[id] = i
	}
	return st
}

func TestRoundTrip(t *testing.T) {
	states := map[string]floorState{
		"empty": {},
		"nested": {
			Level: "L2",
			Rooms: []room{{
				ID:      "r1",
				Name:    "Lobby",
				Outline: []point{{0, 0}, {10, 0}, {10, 8}},
				Props:   map[string]string{"usage": "public"},
			}},
			Index: map[string]int{"r1": 0},
		},
		"large": largeState(2000),
	}

	for _, kind := range Kinds() {
		c, err := For(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, c.Kind())

		for name, want := range states {
			t.Run(string(kind)+"/"+name, func(t *testing.T) {
				data, err := c.Encode(want)
				require.NoError(t, err)
				require.NotEmpty(t, data)

				var got floorState
				require.NoError(t, c.Decode(data, &got))
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestRoundTripGenericMap(t *testing.T) {
	want := map[string]any{
		"x": 5.0,
		"y": 5.0,
		"work_rooms": []any{
			map[string]any{"id": "a", "area": 12.5},
		},
	}

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			c, err := For(kind)
			require.NoError(t, err)

			data, err := c.Encode(want)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, c.Decode(data, &got))
			assert.Equal(t, want, got)
		})
	}
}

func TestDeflateIsSmallerThanNone(t *testing.T) {
	st := largeState(500)

	plain, err := For(None)
	require.NoError(t, err)
	packed, err := For(Deflate)
	require.NoError(t, err)

	a, err := plain.Encode(st)
	require.NoError(t, err)
	b, err := packed.Encode(st)
	require.NoError(t, err)

	assert.Less(t, len(b), len(a))
}

func TestDecodeGarbage(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			c, err := For(kind)
			require.NoError(t, err)

			var got floorState
			assert.Error(t, c.Decode([]byte("\x00\x01not a payload"), &got))
		})
	}
}

func TestEncodeUnsupported(t *testing.T) {
	ch := make(chan int)
	for _, kind := range Kinds() {
		c, err := For(kind)
		require.NoError(t, err)
		_, err = c.Encode(ch)
		assert.Error(t, err, "codec %s", kind)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("deflate")
	require.NoError(t, err)
	assert.Equal(t, Deflate, k)

	_, err = ParseKind("pickle")
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = For(Kind("zstd"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}
