package cube

import (
	"context"
	"time"

	"github.com/nci/geocube/cubeview"
)

// Node is one lazy operation in a cube graph. Nodes are immutable after
// construction and form a DAG by construction: inputs are fixed when a node
// is created, so no cycle can ever be assembled. All nodes of one graph
// share exactly one View.
//
// Read computes one chunk on the calling goroutine. Implementations must
// not retain the returned buffer and must be safe for concurrent calls with
// distinct coordinates.
type Node interface {
	Kind() string
	Bands() []string
	View() *cubeview.View

	// ChunkGrid is the chunk coordinate space of this node's output. It
	// matches the view's grid except where an operation collapses an
	// axis (time reduction).
	ChunkGrid() (ct, cy, cx int)

	// Timestamps is the output time axis.
	Timestamps() []time.Time

	Read(ctx context.Context, coord cubeview.Coord) (*ChunkBuffer, error)
}

// Coords enumerates a node's chunk coordinate space in deterministic
// evaluation order.
func Coords(n Node) []cubeview.Coord {
	ct, cy, cx := n.ChunkGrid()
	out := make([]cubeview.Coord, 0, ct*cy*cx)
	for t := 0; t < ct; t++ {
		for y := 0; y < cy; y++ {
			for x := 0; x < cx; x++ {
				out = append(out, cubeview.Coord{T: t, Y: y, X: x})
			}
		}
	}
	return out
}

func sameView(nodes []Node) error {
	for i := 1; i < len(nodes); i++ {
		if nodes[i].View() != nodes[0].View() {
			return cubeview.ConfigErrorf("inputs %s and %s do not share a view",
				nodes[0].Kind(), nodes[i].Kind())
		}
	}
	return nil
}

func bandNames(nodes []Node) []string {
	var names []string
	for _, n := range nodes {
		names = append(names, n.Bands()...)
	}
	return names
}
