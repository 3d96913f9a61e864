// Package lp is a small builder for linear programs with bounded continuous
// variables, plus a dense-simplex backend. It exists so the holding-time
// formulation does not depend on any particular solver binding.
package lp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Op is a linear constraint relation.
type Op int

const (
	LE Op = iota // sum <= rhs
	GE           // sum >= rhs
	EQ           // sum == rhs
)

// VarID identifies a variable within one Problem.
type VarID int

// Term is a single coefficient*variable entry in a constraint or objective.
type Term struct {
	Var  VarID
	Coef float64
}

type constraint struct {
	terms []Term
	op    Op
	rhs   float64
}

// Problem accumulates a minimization LP: bounded continuous variables, linear
// constraints, and a linear objective.
type Problem struct {
	names    []string
	lower    []float64
	upper    []float64 // math.Inf(1) when unbounded above
	cons     []constraint
	objCoefs []float64
	objConst float64
}

func NewProblem() *Problem {
	return &Problem{}
}

// AddVariable declares a continuous variable with bounds lo <= x <= hi.
// Use math.Inf(1) for no upper bound.
func (p *Problem) AddVariable(name string, lo, hi float64) (VarID, error) {
	if math.IsNaN(lo) || math.IsNaN(hi) || hi < lo {
		return 0, fmt.Errorf("variable %q: invalid bounds [%v, %v]", name, lo, hi)
	}
	p.names = append(p.names, name)
	p.lower = append(p.lower, lo)
	p.upper = append(p.upper, hi)
	p.objCoefs = append(p.objCoefs, 0)
	return VarID(len(p.names) - 1), nil
}

// AddConstraint adds sum(terms) op rhs.
func (p *Problem) AddConstraint(terms []Term, op Op, rhs float64) {
	c := constraint{terms: append([]Term(nil), terms...), op: op, rhs: rhs}
	p.cons = append(p.cons, c)
}

// SetObjective replaces the minimization objective with sum(terms) + constant.
// The constant shifts the reported objective value only.
func (p *Problem) SetObjective(terms []Term, constant float64) {
	for i := range p.objCoefs {
		p.objCoefs[i] = 0
	}
	for _, t := range terms {
		p.objCoefs[t.Var] += t.Coef
	}
	p.objConst = constant
}

// NumVars reports the number of declared variables.
func (p *Problem) NumVars() int { return len(p.names) }

// Solution holds the optimal point of a solved Problem.
type Solution struct {
	Objective float64
	values    []float64
}

// Value returns the optimal value of a variable.
func (s *Solution) Value(v VarID) float64 { return s.values[v] }

// Solver solves minimization problems. Implementations must be deterministic
// for identical inputs.
type Solver interface {
	Solve(p *Problem) (*Solution, error)
}

// Simplex solves problems with gonum's dense simplex method.
type Simplex struct {
	// Tol is the simplex tolerance; 0 selects gonum's default.
	Tol float64
}

// Solve converts the problem to standard form (shifted variables, slack and
// surplus columns) and runs the simplex method. Infeasible or unbounded
// problems return an error and a nil solution.
func (s Simplex) Solve(p *Problem) (*Solution, error) {
	n := len(p.names)
	if n == 0 {
		return &Solution{Objective: p.objConst}, nil
	}

	// Count rows and extra columns: one slack column per finite upper bound,
	// one slack/surplus column per inequality constraint.
	rows := len(p.cons)
	extra := 0
	for _, hi := range p.upper {
		if !math.IsInf(hi, 1) {
			rows++
			extra++
		}
	}
	for _, c := range p.cons {
		if c.op != EQ {
			extra++
		}
	}

	cols := n + extra
	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	c := make([]float64, cols)

	// Shift x' = x - lo so every variable is >= 0 in standard form.
	shiftConst := 0.0
	for j := 0; j < n; j++ {
		c[j] = p.objCoefs[j]
		shiftConst += p.objCoefs[j] * p.lower[j]
	}

	row := 0
	col := n
	for j := 0; j < n; j++ {
		hi := p.upper[j]
		if math.IsInf(hi, 1) {
			continue
		}
		// x' + slack = hi - lo
		a.Set(row, j, 1)
		a.Set(row, col, 1)
		b[row] = hi - p.lower[j]
		row++
		col++
	}
	for _, con := range p.cons {
		rhs := con.rhs
		for _, t := range con.terms {
			a.Set(row, int(t.Var), a.At(row, int(t.Var))+t.Coef)
			rhs -= t.Coef * p.lower[t.Var]
		}
		switch con.op {
		case LE:
			a.Set(row, col, 1)
			col++
		case GE:
			a.Set(row, col, -1)
			col++
		}
		b[row] = rhs
		// Simplex phase 1 wants non-negative right-hand sides.
		if b[row] < 0 {
			for j := 0; j < cols; j++ {
				a.Set(row, j, -a.At(row, j))
			}
			b[row] = -b[row]
		}
		row++
	}

	opt, x, err := lp.Simplex(c, a, b, s.Tol, nil)
	if err != nil {
		return nil, fmt.Errorf("simplex: %w", err)
	}

	values := make([]float64, n)
	for j := 0; j < n; j++ {
		values[j] = p.lower[j] + x[j]
	}
	return &Solution{Objective: opt + shiftConst + p.objConst, values: values}, nil
}
