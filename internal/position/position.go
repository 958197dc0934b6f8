// Package position computes sparse ordering keys for sibling entities:
// lists within a board and cards within a list.
package position

import "fmt"

// Gap is the distance between consecutive positions after an append or a
// full reindex.
const Gap = 65535

// Update is a single position write. ContainerID is only set for the entity
// that changed container during a cross-container move.
type Update struct {
	ID          string  `json:"id"`
	Position    float64 `json:"position"`
	ContainerID string  `json:"containerId,omitempty"`
}

// CrossMove holds the reindexed source and destination containers of a move.
type CrossMove struct {
	Source []Update
	Dest   []Update
}

// NextAppendPosition returns max(existing)+Gap, or Gap for an empty container.
func NextAppendPosition(existing []float64) float64 {
	var highest float64
	for i, value := range existing {
		if i == 0 || value > highest {
			highest = value
		}
	}
	return highest + Gap
}

// ReindexSingleContainer assigns (index+1)*Gap to every id in order.
func ReindexSingleContainer(orderedIDs []string) []Update {
	updates := make([]Update, len(orderedIDs))
	for i, id := range orderedIDs {
		updates[i] = Update{ID: id, Position: float64(i+1) * Gap}
	}
	return updates
}

// Move returns a copy of ordered with the element at from moved to index to.
// Out-of-range indexes are clamped.
func Move(ordered []string, from, to int) []string {
	out := make([]string, len(ordered))
	copy(out, ordered)
	if len(out) == 0 {
		return out
	}
	from = clamp(from, 0, len(out)-1)
	to = clamp(to, 0, len(out)-1)
	if from == to {
		return out
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	return insertAt(out, to, moved)
}

// IsNoop reports whether a move leaves the container order unchanged.
func IsNoop(sourceContainerID, destContainerID string, from, to int) bool {
	return sourceContainerID == destContainerID && from == to
}

// ReindexCrossContainerMove removes movedID from source, inserts it into dest
// at destIndex and reindexes both containers. The moved entity's update
// carries destContainerID.
func ReindexCrossContainerMove(source, dest []string, movedID string, destIndex int, destContainerID string) (CrossMove, error) {
	remaining := make([]string, 0, len(source))
	found := false
	for _, id := range source {
		if id == movedID {
			found = true
			continue
		}
		remaining = append(remaining, id)
	}
	if !found {
		return CrossMove{}, fmt.Errorf("entity %s not in source container", movedID)
	}

	target := make([]string, 0, len(dest)+1)
	for _, id := range dest {
		if id != movedID {
			target = append(target, id)
		}
	}
	target = insertAt(target, clamp(destIndex, 0, len(target)), movedID)

	destUpdates := ReindexSingleContainer(target)
	for i := range destUpdates {
		if destUpdates[i].ID == movedID {
			destUpdates[i].ContainerID = destContainerID
		}
	}

	return CrossMove{
		Source: ReindexSingleContainer(remaining),
		Dest:   destUpdates,
	}, nil
}

// NextSequentialPosition returns max(existing)+1, starting at 0.
func NextSequentialPosition(existing []int) int {
	if len(existing) == 0 {
		return 0
	}
	highest := existing[0]
	for _, value := range existing[1:] {
		if value > highest {
			highest = value
		}
	}
	return highest + 1
}

func insertAt(ids []string, index int, id string) []string {
	ids = append(ids, "")
	copy(ids[index+1:], ids[index:])
	ids[index] = id
	return ids
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
