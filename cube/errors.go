package cube

import (
	"fmt"

	"github.com/nci/geocube/cubeview"
)

// ConfigError reports an invalid graph or view configuration, raised at
// construction time.
type ConfigError = cubeview.ConfigError

// BandMismatchError reports a band name unknown to a node's input, or a
// chunk shape disagreement between joined inputs.
type BandMismatchError struct {
	Band   string
	Reason string
}

func (e *BandMismatchError) Error() string {
	if e.Band != "" {
		return fmt.Sprintf("band mismatch: band %q %s", e.Band, e.Reason)
	}
	return "band mismatch: " + e.Reason
}

// ExpressionError reports an unparsable or unbound pixel expression, raised
// at construction time.
type ExpressionError struct {
	Expr   string
	Reason string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expr, e.Reason)
}

// SourceReadError reports a chunk whose every contributing source image
// failed to read.
type SourceReadError struct {
	Coord cubeview.Coord
	Path  string
	Err   error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("source read failed for chunk %v (%s): %v", e.Coord, e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}
