package fieldtrain

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"

	"github.com/fieldml/fieldae/grid"
)

// ReconstructionLoss returns the squared relative Frobenius error of the
// reconstruction against the target, as a scalar node:
// |reco - truth|_F^2 / |truth|_F^2. It is scale invariant: rescaling both
// tensors by the same nonzero constant leaves it unchanged.
func ReconstructionLoss(reconstruction, truth *Node) *Node {
	return Div(L2NormSquare(Sub(reconstruction, truth)), L2NormSquare(truth))
}

// SmoothnessLoss returns the squared ratio of the Frobenius norm of the
// field's spatial gradient to the Frobenius norm of the field itself, as a
// scalar node. A zero-norm field contributes a defined zero instead of
// dividing by zero.
func SmoothnessLoss(op *grid.Operators, field *Node) *Node {
	// Squared Frobenius norm of the gradient-magnitude map: the pointwise
	// square undoes the Euclidean norm, so summing the squared directional
	// derivatives is the same quantity without the Sqrt in the autodiff path.
	num := Add(L2NormSquare(op.DerivX(field)), L2NormSquare(op.DerivY(field)))
	den := L2NormSquare(field)
	degenerate := IsZero(den)
	safeDen := Where(degenerate, OnesLike(den), den)
	return Where(degenerate, ZerosLike(den), Div(num, safeDen))
}
