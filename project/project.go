// Package project loads modelling projects from HCL files.
//
// A project file describes the model in a model block, the frequencies to
// solve at, and optionally the acquisition geometry and run defaults:
//
//	model {
//	  operator = "fivepoint"
//	  nx       = 120
//	  nz       = 60
//	  dx       = 10
//	  dz       = 10
//	  c        = 2500
//
//	  free_surface {
//	    top = true
//	  }
//	}
//
//	frequencies = concat(range(2, 10, 2), [12.5])
//
//	geometry {
//	  mode      = "fixed"
//	  sources   = [[100, 20]]
//	  receivers = [for x in range(0, 1200, 50) : [x, 20]]
//	}
//
//	run {
//	  parallel = true
//	  scale    = 1
//	  timeout  = "90s"
//	}
//
// Expressions may use range, concat, min and max, and the variable pi.
package project

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/sarchlab/wavefreq/discretization"
)

// ErrInvalidProject is wrapped by errors about well-formed files that do not
// describe a usable project.
var ErrInvalidProject = errors.New("project: invalid project")

// Project is a loaded project file.
type Project struct {
	// Base is the configuration shared by all subproblems. Its Freq is unset.
	Base discretization.Config

	// Frequencies are the subproblem frequencies, in file order.
	Frequencies []complex128

	// Run holds the run defaults of the file.
	Run RunOptions
}

// RunOptions are run defaults a project may carry. Unset options are nil.
type RunOptions struct {
	Parallel *bool
	Scale    *float64
	Timeout  *time.Duration
}

type fileRoot struct {
	Model       modelBlock     `hcl:"model,block"`
	Geometry    *geometryBlock `hcl:"geometry,block"`
	Run         *runBlock      `hcl:"run,block"`
	Frequencies cty.Value      `hcl:"frequencies"`
}

type modelBlock struct {
	Operator string  `hcl:"operator"`
	Nx       int     `hcl:"nx"`
	Nz       int     `hcl:"nz"`
	Dx       float64 `hcl:"dx,optional"`
	Dz       float64 `hcl:"dz,optional"`
	XOrig    float64 `hcl:"xorig,optional"`
	ZOrig    float64 `hcl:"zorig,optional"`
	NKy      int     `hcl:"nky,optional"`
	Tau      float64 `hcl:"tau,optional"`
	IsReg    bool    `hcl:"isreg,optional"`
	Solver   string  `hcl:"solver,optional"`

	C     cty.Value `hcl:"c"`
	Rho   cty.Value `hcl:"rho,optional"`
	QP    cty.Value `hcl:"qp,optional"`
	Eps   cty.Value `hcl:"eps,optional"`
	Delta cty.Value `hcl:"delta,optional"`
	Theta cty.Value `hcl:"theta,optional"`

	FreeSurface *freeSurfaceBlock `hcl:"free_surface,block"`
}

type freeSurfaceBlock struct {
	Top    bool `hcl:"top,optional"`
	Right  bool `hcl:"right,optional"`
	Bottom bool `hcl:"bottom,optional"`
	Left   bool `hcl:"left,optional"`
}

type geometryBlock struct {
	Mode      string    `hcl:"mode,optional"`
	Sources   cty.Value `hcl:"sources,optional"`
	Receivers cty.Value `hcl:"receivers,optional"`
}

type runBlock struct {
	Parallel *bool    `hcl:"parallel,optional"`
	Scale    *float64 `hcl:"scale,optional"`
	Timeout  *string  `hcl:"timeout,optional"`
}

// EvalContext returns the functions and variables available to project
// expressions.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"pi": cty.NumberFloatVal(math.Pi),
		},
		Functions: map[string]function.Function{
			"range":  stdlib.RangeFunc,
			"concat": stdlib.ConcatFunc,
			"min":    stdlib.MinFunc,
			"max":    stdlib.MaxFunc,
		},
	}
}

// Load reads and decodes a project file.
func Load(path string) (*Project, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}

	return Parse(src, path)
}

// Parse decodes project source. The filename is used in diagnostics.
func Parse(src []byte, filename string) (*Project, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("project: failed to parse %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, EvalContext(), &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("project: failed to decode %s: %w", filename, diags)
	}

	p, err := translate(&root)
	if err != nil {
		return nil, fmt.Errorf("project: %s: %w", filename, err)
	}

	log.Debug("project loaded",
		"file", filename,
		"operator", p.Base.Operator,
		"cells", p.Base.Cells(),
		"frequencies", len(p.Frequencies))

	return p, nil
}

func translate(root *fileRoot) (*Project, error) {
	m := root.Model
	cfg := discretization.Config{
		Operator: m.Operator,
		Nx:       m.Nx,
		Nz:       m.Nz,
		Dx:       m.Dx,
		Dz:       m.Dz,
		XOrig:    m.XOrig,
		ZOrig:    m.ZOrig,
		NKy:      m.NKy,
		Tau:      m.Tau,
		IsReg:    m.IsReg,
		Solver:   m.Solver,
	}

	if fs := m.FreeSurface; fs != nil {
		cfg.FreeSurf[discretization.Top] = fs.Top
		cfg.FreeSurf[discretization.Right] = fs.Right
		cfg.FreeSurf[discretization.Bottom] = fs.Bottom
		cfg.FreeSurf[discretization.Left] = fs.Left
	}

	c, err := realField("c", m.C)
	if err != nil {
		return nil, err
	}
	cfg.C = complexField(c)

	fields := []struct {
		name string
		val  cty.Value
		dst  *discretization.Field[float64]
	}{
		{"rho", m.Rho, &cfg.Rho},
		{"eps", m.Eps, &cfg.Eps},
		{"delta", m.Delta, &cfg.Delta},
		{"theta", m.Theta, &cfg.Theta},
	}
	for _, f := range fields {
		if *f.dst, err = realField(f.name, f.val); err != nil {
			return nil, err
		}
	}

	if cfg.Q, err = attenuation(m.QP); err != nil {
		return nil, err
	}

	if g := root.Geometry; g != nil {
		cfg.Geometry.Mode = g.Mode
		if cfg.Geometry.Sources, err = points("sources", g.Sources); err != nil {
			return nil, err
		}
		if cfg.Geometry.Receivers, err = points("receivers", g.Receivers); err != nil {
			return nil, err
		}
	}

	freqs, err := numbers("frequencies", root.Frequencies)
	if err != nil {
		return nil, err
	}
	if len(freqs) == 0 {
		return nil, fmt.Errorf("%w: no frequencies", ErrInvalidProject)
	}

	p := &Project{Base: cfg}
	for _, f := range freqs {
		p.Frequencies = append(p.Frequencies, complex(f, 0))
	}

	if p.Run, err = runOptions(root.Run); err != nil {
		return nil, err
	}

	return p, nil
}

func runOptions(r *runBlock) (RunOptions, error) {
	var opts RunOptions
	if r == nil {
		return opts, nil
	}

	opts.Parallel = r.Parallel
	opts.Scale = r.Scale

	if r.Timeout != nil {
		d, err := time.ParseDuration(*r.Timeout)
		if err != nil {
			return opts, fmt.Errorf("%w: run.timeout: %w", ErrInvalidProject, err)
		}
		opts.Timeout = &d
	}

	return opts, nil
}

// attenuation turns the quality factor qp into Q = 1/qp.
func attenuation(qp cty.Value) (discretization.Field[float64], error) {
	if isUnset(qp) {
		return discretization.Field[float64]{}, nil
	}

	f, err := realField("qp", qp)
	if err != nil {
		return f, err
	}

	inv := func(v float64) (float64, error) {
		if v == 0 {
			return 0, fmt.Errorf("%w: qp must not be zero", ErrInvalidProject)
		}
		return 1 / v, nil
	}

	if !f.IsGrid() {
		q, err := inv(f.Value())
		return discretization.Uniform(q), err
	}

	values := f.Broadcast(f.Len())
	q := make([]float64, len(values))
	for i, v := range values {
		if q[i], err = inv(v); err != nil {
			return f, err
		}
	}

	return discretization.Grid(q), nil
}

func complexField(f discretization.Field[float64]) discretization.Field[complex128] {
	if !f.IsGrid() {
		return discretization.Uniform(complex(f.Value(), 0))
	}

	values := f.Broadcast(f.Len())
	c := make([]complex128, len(values))
	for i, v := range values {
		c[i] = complex(v, 0)
	}

	return discretization.Grid(c)
}
