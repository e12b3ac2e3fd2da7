package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hitreco/internal/hits"
)

// RotationZ returns the rotation by phi around the beam (z) axis.
func RotationZ(phi float64) *mat.Dense {
	c, s := math.Cos(phi), math.Sin(phi)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// TiltX returns the rotation by tilt around the local radial (x) axis,
// used for stereo-tilted strips.
func TiltX(tilt float64) *mat.Dense {
	c, s := math.Cos(tilt), math.Sin(tilt)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// LadderRotation returns Rz(phi) * Rx(tilt).
func LadderRotation(phi, tilt float64) *mat.Dense {
	var r mat.Dense
	r.Mul(RotationZ(phi), TiltX(tilt))
	return &r
}

// Rotate returns R * M * Rᵀ. The result is symmetrised so that rounding
// cannot break the symmetry of covariance matrices.
func Rotate(r mat.Matrix, m hits.Matrix3) hits.Matrix3 {
	var out mat.Dense
	out.Product(r, m.Dense(), r.T())
	rot := hits.Matrix3FromMat(&out)
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			avg := 0.5 * (rot[i][j] + rot[j][i])
			rot[i][j], rot[j][i] = avg, avg
		}
	}
	return rot
}

// Apply returns R * v.
func Apply(r mat.Matrix, v [3]float64) [3]float64 {
	var out mat.VecDense
	out.MulVec(r, mat.NewVecDense(3, v[:]))
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}
