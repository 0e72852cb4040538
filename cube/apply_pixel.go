package cube

import (
	"context"
	"fmt"
	"time"

	goeval "github.com/edisonguo/govaluate"

	"github.com/nci/geocube/cubeview"
)

// Expr is one named arithmetic expression over the input bands.
type Expr struct {
	Name    string `json:"name" yaml:"name"`
	Formula string `json:"formula" yaml:"formula"`
}

type compiledExpr struct {
	name string
	expr *goeval.EvaluableExpression
	vars []string
}

// ApplyPixel evaluates arithmetic expressions per pixel, with the input
// bands as named variables. More than one input is allowed as long as the
// inputs share a view and their band names do not clash.
type ApplyPixel struct {
	inputs []Node
	exprs  []compiledExpr
	bands  []string

	// band name -> (input index, band index within input)
	binding map[string][2]int
}

// NewApplyPixel parses and binds every expression at construction;
// unparsable formulas and references to unknown bands fail here.
func NewApplyPixel(inputs []Node, exprs []Expr) (*ApplyPixel, error) {
	if len(inputs) == 0 {
		return nil, cubeview.ConfigErrorf("apply_pixel requires at least one input")
	}
	if len(exprs) == 0 {
		return nil, cubeview.ConfigErrorf("apply_pixel requires at least one expression")
	}
	if err := sameView(inputs); err != nil {
		return nil, err
	}

	binding := map[string][2]int{}
	for i, input := range inputs {
		for j, name := range input.Bands() {
			if _, ok := binding[name]; ok {
				return nil, cubeview.ConfigErrorf("apply_pixel inputs both provide band %q", name)
			}
			binding[name] = [2]int{i, j}
		}
	}

	node := &ApplyPixel{inputs: inputs, binding: binding}
	outNames := map[string]bool{}
	for _, e := range exprs {
		if e.Name == "" {
			return nil, cubeview.ConfigErrorf("apply_pixel expression %q has no output name", e.Formula)
		}
		if outNames[e.Name] {
			return nil, cubeview.ConfigErrorf("apply_pixel output band %q is defined twice", e.Name)
		}
		outNames[e.Name] = true

		compiled, err := goeval.NewEvaluableExpression(e.Formula)
		if err != nil {
			return nil, &ExpressionError{Expr: e.Formula, Reason: err.Error()}
		}
		vars := compiled.Vars()
		for _, v := range vars {
			if _, ok := binding[v]; !ok {
				return nil, &ExpressionError{Expr: e.Formula, Reason: fmt.Sprintf("unknown band %q", v)}
			}
		}
		node.exprs = append(node.exprs, compiledExpr{name: e.Name, expr: compiled, vars: vars})
		node.bands = append(node.bands, e.Name)
	}
	return node, nil
}

func (n *ApplyPixel) Kind() string               { return "apply_pixel" }
func (n *ApplyPixel) Bands() []string            { return n.bands }
func (n *ApplyPixel) View() *cubeview.View       { return n.inputs[0].View() }
func (n *ApplyPixel) ChunkGrid() (int, int, int) { return n.inputs[0].ChunkGrid() }
func (n *ApplyPixel) Timestamps() []time.Time    { return n.inputs[0].Timestamps() }

func (n *ApplyPixel) Read(ctx context.Context, coord cubeview.Coord) (*ChunkBuffer, error) {
	chunks := make([]*ChunkBuffer, len(n.inputs))
	for i, input := range n.inputs {
		c, err := input.Read(ctx, coord)
		if err != nil {
			return nil, err
		}
		chunks[i] = c
	}
	_, nt, ny, nx := chunks[0].Shape()
	for i := 1; i < len(chunks); i++ {
		_, t, y, x := chunks[i].Shape()
		if t != nt || y != ny || x != nx {
			return nil, &BandMismatchError{Reason: fmt.Sprintf(
				"apply_pixel chunk %v: input %d shape (%d,%d,%d) differs from (%d,%d,%d)",
				coord, i, t, y, x, nt, ny, nx)}
		}
	}

	out := NewChunkBuffer(n.bands, nt, ny, nx, NoDataNaN)
	plane := nt * ny * nx

	params := make(map[string]interface{}, len(n.binding))
	for ei := range n.exprs {
		e := &n.exprs[ei]
		dst := out.BandData(ei)

		// resolve operand planes once per expression
		operands := make([][]float64, len(e.vars))
		sentinels := make([]*ChunkBuffer, len(e.vars))
		for vi, v := range e.vars {
			loc := n.binding[v]
			operands[vi] = chunks[loc[0]].BandData(loc[1])
			sentinels[vi] = chunks[loc[0]]
		}

		for i := 0; i < plane; i++ {
			noData := false
			for vi := range e.vars {
				v := operands[vi][i]
				if sentinels[vi].IsNoData(v) {
					noData = true
					break
				}
				// the evaluator's numeric type is float32
				params[e.vars[vi]] = float32(v)
			}
			if noData {
				continue // output stays no-data
			}
			res, err := e.expr.Evaluate(params)
			if err != nil {
				return nil, &ExpressionError{Expr: e.name, Reason: fmt.Sprintf("chunk %v: %v", coord, err)}
			}
			switch r := res.(type) {
			case float32:
				dst[i] = float64(r)
			case float64:
				dst[i] = r
			default:
				return nil, &ExpressionError{Expr: e.name, Reason: fmt.Sprintf("chunk %v: non-numeric result %T", coord, res)}
			}
		}
	}
	return out, nil
}
