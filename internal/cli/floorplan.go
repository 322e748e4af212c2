package cli

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/rcliao/opshistory/internal/event"
	"github.com/rcliao/opshistory/internal/history"
	"github.com/rcliao/opshistory/internal/model"
)

// floorPlan is the document edited by simulate and replayed by inspect.
type floorPlan struct {
	Level    string    `json:"level"`
	Rooms    []room    `json:"work_rooms"`
	Openings []opening `json:"work_openings"`
}

type room struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

type opening struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Kind   string `json:"kind"`
}

func (p floorPlan) EntityCount() int {
	return len(p.Rooms) + len(p.Openings)
}

// clone deep-copies p. Empty slices become nil so decoded and live plans
// compare equal.
func (p floorPlan) clone() floorPlan {
	return floorPlan{
		Level:    p.Level,
		Rooms:    cloneSlice(p.Rooms),
		Openings: cloneSlice(p.Openings),
	}
}

func cloneSlice[T any](in []T) []T {
	if len(in) == 0 {
		return nil
	}
	return slices.Clone(in)
}

// editor owns a live floor plan and the engine recording its edits. The
// engine's fallback hooks write restored states back into the plan.
type editor struct {
	plan     floorPlan
	engine   *history.Engine[floorPlan]
	rng      *rand.Rand
	next     int
	warnings int
}

func newEditor(cfg history.Config, seed int64) (*editor, error) {
	ed := &editor{
		plan: floorPlan{Level: "L1"},
		rng:  rand.New(rand.NewSource(seed)),
	}
	restore := history.HookFunc[floorPlan](func(state *floorPlan, _ *history.Operation[floorPlan], _ history.StatusInfo) error {
		if state != nil {
			ed.plan = state.clone()
		}
		return nil
	})

	e, err := history.New[floorPlan](cfg, history.WithFallbackHooks[floorPlan](restore, restore))
	if err != nil {
		return nil, err
	}
	e.Subscribe(event.MemoryWarning, func(event.Event) error {
		ed.warnings++
		return nil
	})
	ed.engine = e
	return ed, nil
}

func (ed *editor) snapshot() (floorPlan, error) {
	return ed.plan.clone(), nil
}

func (ed *editor) newID(prefix string) string {
	ed.next++
	return fmt.Sprintf("%s%d", prefix, ed.next)
}

// record applies mutate to the live plan and pushes the before and after
// states.
func (ed *editor) record(kind model.OperationKind, desc string, ids []string, mutate func()) error {
	before := ed.plan.clone()
	mutate()
	after := ed.plan.clone()
	_, err := ed.engine.Push(history.PushParams[floorPlan]{
		Kind:        kind,
		Description: desc,
		Before:      before,
		After:       &after,
		EntityIDs:   ids,
		Levels:      []string{ed.plan.Level},
	})
	return err
}

// step performs one random edit.
func (ed *editor) step() error {
	r := ed.rng.Float64()
	if len(ed.plan.Rooms) == 0 || r < 0.3 {
		return ed.addRoom()
	}

	i := ed.rng.Intn(len(ed.plan.Rooms))
	target := ed.plan.Rooms[i]
	switch {
	case r < 0.5:
		dx, dy := float64(ed.rng.Intn(5)-2), float64(ed.rng.Intn(5)-2)
		return ed.record(model.KindMove, fmt.Sprintf("Move %s", target.Name), []string{target.ID}, func() {
			ed.plan.Rooms[i].X += dx
			ed.plan.Rooms[i].Y += dy
		})
	case r < 0.65:
		return ed.record(model.KindModifyGeometry, fmt.Sprintf("Resize %s", target.Name), []string{target.ID}, func() {
			ed.plan.Rooms[i].W += 0.5
			ed.plan.Rooms[i].H += 0.25
		})
	case r < 0.75:
		_, err := ed.engine.Capture(model.KindModifyProperties, fmt.Sprintf("Rename %s", target.Name), ed.snapshot, func() error {
			ed.plan.Rooms[i].Name = fmt.Sprintf("%s (%d)", target.Name, ed.rng.Intn(100))
			return nil
		})
		return err
	case r < 0.85:
		return ed.deleteRoom(i)
	case r < 0.9:
		return ed.record(model.KindCopy, fmt.Sprintf("Copy %s", target.Name), []string{target.ID}, func() {
			c := target
			c.ID = ed.newID("R")
			c.X += c.W
			ed.plan.Rooms = append(ed.plan.Rooms, c)
		})
	default:
		return ed.addOpenings(target)
	}
}

func (ed *editor) addRoom() error {
	id := ed.newID("R")
	r := room{
		ID:   id,
		Name: "Room " + id,
		X:    float64(ed.rng.Intn(50)),
		Y:    float64(ed.rng.Intn(50)),
		W:    3 + float64(ed.rng.Intn(6)),
		H:    3 + float64(ed.rng.Intn(6)),
	}
	return ed.record(model.KindCreate, "Add "+r.Name, []string{id}, func() {
		ed.plan.Rooms = append(ed.plan.Rooms, r)
	})
}

func (ed *editor) deleteRoom(i int) error {
	target := ed.plan.Rooms[i]
	ids := []string{target.ID}
	for _, o := range ed.plan.Openings {
		if o.RoomID == target.ID {
			ids = append(ids, o.ID)
		}
	}
	return ed.record(model.KindDelete, "Delete "+target.Name, ids, func() {
		ed.plan.Rooms = slices.Delete(slices.Clone(ed.plan.Rooms), i, i+1)
		ed.plan.Openings = slices.DeleteFunc(slices.Clone(ed.plan.Openings), func(o opening) bool {
			return o.RoomID == target.ID
		})
	})
}

// addOpenings adds a door and a window to r as one batch.
func (ed *editor) addOpenings(r room) error {
	bid := ed.engine.BeginBatch("Add openings to " + r.Name)
	for _, kind := range []string{"door", "window"} {
		o := opening{ID: ed.newID("O"), RoomID: r.ID, Kind: kind}
		err := ed.record(model.KindCreate, fmt.Sprintf("Add %s to %s", kind, r.Name), []string{o.ID, r.ID}, func() {
			ed.plan.Openings = append(ed.plan.Openings, o)
		})
		if err != nil {
			ed.engine.EndBatch(bid, false)
			return err
		}
	}
	return ed.engine.EndBatch(bid, true)
}

// run performs ops random edits, then undoes up to undo of them.
func (ed *editor) run(ops, undo int) error {
	for i := 0; i < ops; i++ {
		if err := ed.step(); err != nil {
			return fmt.Errorf("edit %d: %w", i, err)
		}
	}
	for i := 0; i < undo; i++ {
		if !ed.engine.Undo() {
			break
		}
	}
	return nil
}
