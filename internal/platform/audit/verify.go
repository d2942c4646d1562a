package audit

import (
	"context"
	"fmt"
)

// Source is the read side of a Store. Verification only needs the replay
// half, so offline tooling can implement it without append support.
type Source interface {
	Entries(ctx context.Context) ([]Entry, error)
}

type VerificationResult struct {
	Valid          bool   `json:"valid"`
	CheckedEntries int    `json:"checked_entries"`
	FirstInvalidID *int64 `json:"first_invalid_id"`
	Message        string `json:"message"`
}

// Verify replays the whole chain from the first entry, recomputing every
// link and content hash. It is a pure read-only scan: entries appended
// after the snapshot is taken are simply not part of this verification.
func Verify(ctx context.Context, src Source) (VerificationResult, error) {
	entries, err := src.Entries(ctx)
	if err != nil {
		return VerificationResult{}, err
	}

	var expected *string
	for _, e := range entries {
		if !hashEqual(e.PreviousHash, expected) {
			return invalidAt(e.ID, len(entries), "previous hash mismatch"), nil
		}
		computed, err := ComputeHash(e.Record(), expected)
		if err != nil {
			return VerificationResult{}, fmt.Errorf("recompute hash for entry %d: %w", e.ID, err)
		}
		if computed != e.ContentHash {
			return invalidAt(e.ID, len(entries), "content hash mismatch"), nil
		}
		hash := e.ContentHash
		expected = &hash
	}

	return VerificationResult{
		Valid:          true,
		CheckedEntries: len(entries),
		Message:        "hash chain verified",
	}, nil
}

func invalidAt(id int64, checked int, reason string) VerificationResult {
	return VerificationResult{
		Valid:          false,
		CheckedEntries: checked,
		FirstInvalidID: &id,
		Message:        fmt.Sprintf("%s at entry %d", reason, id),
	}
}

func hashEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
