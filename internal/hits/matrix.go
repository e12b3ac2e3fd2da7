package hits

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// matrixTolerance bounds asymmetry and negative eigenvalues that are
// attributed to floating point rounding.
const matrixTolerance = 1e-12

// Matrix3 is a row-major 3x3 matrix used for cluster size and error.
type Matrix3 [3][3]float64

// Diagonal3 returns a diagonal matrix with the given entries.
func Diagonal3(a, b, c float64) Matrix3 {
	return Matrix3{{a, 0, 0}, {0, b, 0}, {0, 0, c}}
}

// Matrix3FromMat copies a 3x3 gonum matrix.
func Matrix3FromMat(m mat.Matrix) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// Dense returns the matrix as a gonum dense matrix.
func (m Matrix3) Dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// Sym returns the symmetric part of the matrix.
func (m Matrix3) Sym() *mat.SymDense {
	s := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			s.SetSym(i, j, 0.5*(m[i][j]+m[j][i]))
		}
	}
	return s
}

// IsFinite reports whether every entry is a finite number.
func (m Matrix3) IsFinite() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return false
			}
		}
	}
	return true
}

// IsSymmetric reports whether m equals its transpose up to a relative
// tolerance.
func (m Matrix3) IsSymmetric() bool {
	scale := m.maxAbs()
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if math.Abs(m[i][j]-m[j][i]) > matrixTolerance*math.Max(scale, 1) {
				return false
			}
		}
	}
	return true
}

// IsPositiveSemidefinite reports whether all eigenvalues of the symmetric
// part are non-negative up to rounding.
func (m Matrix3) IsPositiveSemidefinite() bool {
	var eig mat.EigenSym
	if !eig.Factorize(m.Sym(), false) {
		return false
	}
	floor := -matrixTolerance * math.Max(m.maxAbs(), 1)
	for _, v := range eig.Values(nil) {
		if v < floor {
			return false
		}
	}
	return true
}

func (m Matrix3) maxAbs() float64 {
	var v float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v = math.Max(v, math.Abs(m[i][j]))
		}
	}
	return v
}
