package ot

// Transform adjusts two operations authored against the same base version so
// that either application order converges. It returns (a', b') such that
// applying a then b' produces the same content as applying b then a'.
//
// Ties between two inserts at the same position are broken by argument order
// alone: the first operation keeps its position and the second shifts right.
// This is a deliberate convention; author-id tie-breaks are equally valid but
// would change convergence behavior for simultaneous same-offset edits.
//
// Transform never fails. Inconsistent inputs produce best-effort clamped
// results, because converging on an approximation is preferable to dropping
// an editing session.
func Transform(a, b Operation) (Operation, Operation) {
	switch {
	case a.Kind == KindRetain || b.Kind == KindRetain:
		// Retain never changes content, so neither operand shifts.
		return a, b
	case a.Kind == KindInsert && b.Kind == KindInsert:
		return transformInsertInsert(a, b)
	case a.Kind == KindInsert && b.Kind == KindDelete:
		return transformInsertDelete(a, b)
	case a.Kind == KindDelete && b.Kind == KindInsert:
		bPrime, aPrime := transformInsertDelete(b, a)
		return aPrime, bPrime
	default:
		return transformDeleteDelete(a, b)
	}
}

// TransformAgainst sequentially transforms op against each operation in
// history, yielding the operation as it must apply to the state produced by
// that history. This is the server-side half of the Jupiter scheme: the
// concurrent history is everything committed since the operation's base
// version.
func TransformAgainst(op Operation, history []Operation) Operation {
	transformed := op
	for _, committed := range history {
		_, transformed = Transform(committed, transformed)
	}
	return transformed
}

func transformInsertInsert(a, b Operation) (Operation, Operation) {
	switch {
	case a.Position < b.Position:
		b.Position += a.Span()
	case a.Position > b.Position:
		a.Position += b.Span()
	default:
		b.Position += a.Span()
	}
	return a, b
}

// transformInsertDelete adjusts an insert against a concurrent delete. An
// insert at or before the deleted range shifts the delete right; an insert at
// or after the range's end shifts left past the removed content; an insert
// strictly inside the range is relocated to where the surviving content
// begins and the delete widens to cover the insertion.
func transformInsertDelete(ins, del Operation) (Operation, Operation) {
	deleteStart := del.Position
	deleteEnd := del.Position + del.Length
	switch {
	case ins.Position <= deleteStart:
		del.Position += ins.Span()
	case ins.Position >= deleteEnd:
		ins.Position -= del.Length
	default:
		ins.Position = deleteStart
		del.Length += ins.Span()
	}
	return ins, del
}

// transformDeleteDelete resolves two concurrent deletes. Disjoint ranges
// shift past each other; overlapping ranges each keep only the portion the
// other has not already removed, so a fully covered delete degenerates to
// length zero and re-applying it contributes nothing further.
func transformDeleteDelete(a, b Operation) (Operation, Operation) {
	aStart, aEnd := a.Position, a.Position+a.Length
	bStart, bEnd := b.Position, b.Position+b.Length

	if aEnd <= bStart {
		b.Position -= a.Length
		return a, b
	}
	if bEnd <= aStart {
		a.Position -= b.Length
		return a, b
	}

	overlap := minInt(aEnd, bEnd) - maxInt(aStart, bStart)
	if bStart < aStart {
		a.Position -= minInt(bEnd, aStart) - bStart
	}
	if aStart < bStart {
		b.Position -= minInt(aEnd, bStart) - aStart
	}
	a.Length -= overlap
	b.Length -= overlap
	return a, b
}

func minInt(x, y int) int {
	if x < y {
		return x
	}
	return y
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}
