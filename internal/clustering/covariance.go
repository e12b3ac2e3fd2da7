package clustering

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hitreco/internal/geometry"
	"github.com/banshee-data/hitreco/internal/hits"
)

// localCovariance builds the size and error matrices of a cluster. In the
// local (radial, phi, z) frame size is diag((t/2)², (phiSize/2)²,
// (zSize/2)²) and the error is size/12 (uniform distribution). Both are
// rotated into the global frame as R M Rᵀ.
func localCovariance(thickness, phiSize, zSize float64, r mat.Matrix) (size, errm hits.Matrix3) {
	ht, hp, hz := 0.5*thickness, 0.5*phiSize, 0.5*zSize
	local := hits.Diagonal3(ht*ht, hp*hp, hz*hz)
	localErr := hits.Diagonal3(ht*ht/12, hp*hp/12, hz*hz/12)
	return geometry.Rotate(r, local), geometry.Rotate(r, localErr)
}
