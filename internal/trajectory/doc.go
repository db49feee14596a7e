// Package trajectory owns the analytic track model used by the fit.
//
// Responsibilities: the looping helix segment (construction from a
// position/momentum pair, kinematics, closed-form derivatives with respect
// to its six parameters), the piecewise trajectory assembled from such
// segments, straight lines used as wire references, and the adaptive
// domain splitter that bounds field-inhomogeneity distortion.
// Key types: Helix, Piecewise, Line, ParamData, TimeRange.
//
// Units: mm, ns, MeV, Tesla.
//
// No I/O is allowed in this package.
package trajectory
