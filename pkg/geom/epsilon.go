package geom

// Centralized numeric tolerances. Individual strategies must not define their
// own epsilons; everything degeneracy-related goes through these constants.
const (
	// EpsDirection is the minimum length below which a vector has no usable
	// direction. Plant coordinates are millimetres, so 1e-9 is far below any
	// meaningful geometry.
	EpsDirection = 1e-9

	// EpsParallel bounds |dot| above which two unit vectors are treated as
	// parallel when constructing an orthogonal basis.
	EpsParallel = 1.0 - 1e-6

	// EpsPosition is the tolerance for positional comparisons.
	EpsPosition = 1e-6

	// EpsAngleDeg is the tolerance for angle comparisons in degrees.
	EpsAngleDeg = 1e-9
)
