package trajectory

import (
	"fmt"
	"math"

	"github.com/banshee-data/trackfit/internal/units"
	"gonum.org/v1/gonum/mat"
)

// ParamIndex identifies one of the helix parameters.
type ParamIndex int

// Helix parameter indices.
const (
	Rad  ParamIndex = iota // transverse radius
	Lam                    // longitudinal wavelength
	CX                     // circle center x
	CY                     // circle center y
	Phi0                   // azimuth at the z=0 plane
	T0                     // time at the z=0 plane
)

// NParams is the number of helix parameters.
const NParams = 6

// TrajName is the name of the helix parametrisation.
const TrajName = "LHelix"

var (
	paramNames  = [NParams]string{"Radius", "Lambda", "CenterX", "CenterY", "Phi0", "Time0"}
	paramUnits  = [NParams]string{units.MM, units.MM, units.MM, units.MM, units.Radians, units.NS}
	paramTitles = [NParams]string{
		"Transverse Radius",
		"Longitudinal Wavelength",
		"Cylinder Center X",
		"Cylinder Center Y",
		"Azimuth at Z=0 Plane",
		"Time at Z=0 Plane",
	}
)

func (i ParamIndex) String() string {
	if i < 0 || int(i) >= NParams {
		return fmt.Sprintf("ParamIndex(%d)", int(i))
	}
	return paramNames[i]
}

// Unit returns the unit label of the parameter.
func (i ParamIndex) Unit() string { return paramUnits[i] }

// Title returns the long description of the parameter.
func (i ParamIndex) Title() string { return paramTitles[i] }

// ParamNames returns a copy of the parameter name table.
func ParamNames() [NParams]string { return paramNames }

// DVec is a vector in parameter space: a parameter set, a parameter shift,
// or a derivative with respect to the parameters.
type DVec [NParams]float64

// Add returns d + o.
func (d DVec) Add(o DVec) DVec {
	for i := range d {
		d[i] += o[i]
	}
	return d
}

// Sub returns d - o.
func (d DVec) Sub(o DVec) DVec {
	for i := range d {
		d[i] -= o[i]
	}
	return d
}

// Scale returns f*d.
func (d DVec) Scale(f float64) DVec {
	for i := range d {
		d[i] *= f
	}
	return d
}

// Dot returns the inner product of d and o.
func (d DVec) Dot(o DVec) float64 {
	var s float64
	for i := range d {
		s += d[i] * o[i]
	}
	return s
}

// Dense returns a gonum copy of the vector.
func (d DVec) Dense() *mat.VecDense {
	return mat.NewVecDense(NParams, d[:])
}

// DVecFrom copies a gonum vector of length NParams.
func DVecFrom(v mat.Vector) DVec {
	var d DVec
	for i := range d {
		d[i] = v.AtVec(i)
	}
	return d
}

// ParamData holds a parameter vector and its covariance.
type ParamData struct {
	Params DVec
	Cov    *mat.SymDense
}

// NewParamData builds ParamData; a nil covariance is replaced by zeros.
func NewParamData(params DVec, cov *mat.SymDense) ParamData {
	if cov == nil {
		cov = mat.NewSymDense(NParams, nil)
	}
	return ParamData{Params: params, Cov: cov}
}

// Clone returns a deep copy.
func (pd ParamData) Clone() ParamData {
	cov := mat.NewSymDense(NParams, nil)
	if pd.Cov != nil {
		cov.CopySym(pd.Cov)
	}
	return ParamData{Params: pd.Params, Cov: cov}
}

// Sigma returns the uncertainty of parameter i.
func (pd ParamData) Sigma(i ParamIndex) float64 {
	if pd.Cov == nil {
		return 0
	}
	return math.Sqrt(math.Max(pd.Cov.At(int(i), int(i)), 0))
}

// DiagonalCov returns a covariance with the given per-parameter sigmas.
func DiagonalCov(sigmas DVec) *mat.SymDense {
	cov := mat.NewSymDense(NParams, nil)
	for i, s := range sigmas {
		cov.SetSym(i, i, s*s)
	}
	return cov
}
