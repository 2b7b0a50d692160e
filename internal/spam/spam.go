// Package spam gates privacy transitions on a node's spam status.
package spam

import (
	"github.com/pattisdr/osf.io/internal/model"
)

// Policy decides which spam states block making a node public.
type Policy struct {
	// FlaggedBlocksPublic extends the block from confirmed spam to
	// nodes that are merely flagged for review.
	FlaggedBlocksPublic bool
}

// BlocksPublic reports whether the node's spam status forbids a
// transition to public. Confirmed spam always blocks.
func (p Policy) BlocksPublic(node *model.Node) bool {
	if node.SpamStatus == model.SpamMarked {
		return true
	}
	if p.FlaggedBlocksPublic && node.SpamStatus == model.SpamFlagged {
		return true
	}
	return false
}
