package api

import "github.com/jamhan/predictionmarket/pkg/types"

// buildSnapshotResponse converts an engine book snapshot into the wire
// format of GET /markets/{id}/snapshot (spec.md §6).
func buildSnapshotResponse(snap types.BookSnapshot) SnapshotResponse {
	return SnapshotResponse{
		Yes: levelWires(snap.Yes),
		No:  levelWires(snap.No),
	}
}

func levelWires(levels []types.PriceLevel) []LevelWire {
	wire := toWireLevels(levels)
	out := make([]LevelWire, len(wire))
	for i, lvl := range wire {
		out[i] = LevelWire(lvl)
	}
	return out
}
