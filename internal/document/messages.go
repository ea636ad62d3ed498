package document

import (
	"log/slog"

	"github.com/stencila/stencila/internal/graph"
	"github.com/stencila/stencila/internal/schema"
)

// When indicates the urgency with which a patch should be applied and
// forwarded to subscribers.
type When string

const (
	WhenNow  When = "Now"
	WhenSoon When = "Soon"
)

// PatchRequest asks the patch applicator to apply a patch to the root.
type PatchRequest struct {
	Patch schema.Patch
	When  When
}

// CancelRequest asks the executor to cancel one node (Scope Single, Start
// set) or the whole plan (Scope All).
type CancelRequest struct {
	Start string
	Scope graph.PlanScope
}

// RunApplicator consumes patch requests and applies them to the root until
// the channel is closed. It is the single writer of the root node tree.
func RunApplicator(root *Root, requests <-chan PatchRequest) {
	for request := range requests {
		root.Apply(request.Patch)
	}
}

// sendPatch queues a single non-empty patch.
func sendPatch(sender chan<- PatchRequest, patch schema.Patch, when When) {
	if patch.IsEmpty() {
		return
	}
	sender <- PatchRequest{Patch: patch, When: when}
}

// sendPatches queues a batch of patches.
func sendPatches(sender chan<- PatchRequest, patches []schema.Patch, when When) {
	for _, patch := range patches {
		sendPatch(sender, patch, when)
	}
}

func logTaskError(context string, err error) {
	slog.Error("while executing plan", "context", context, "error", err)
}
