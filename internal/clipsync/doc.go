// Package clipsync keeps a timeline.State in step with the engine.
//
// The Synchronizer consumes event batches in delivery order and classifies
// each one:
//
//   - A batch that only touches the current page while it plays is a
//     playhead tick and is skipped.
//   - A batch that changes the ordering signature (the page's children
//     followed by the background track's children), creates a block or
//     destroys one is dirty and triggers a full reload.
//   - Destruction of a block registered with ExpectTeardown is swallowed
//     and only clears scrubbing state.
//   - Anything else is incremental: each updated block's owning clip is
//     refreshed in place.
//
// Blocks registered with MarkTransient never become clips and are left out
// of the ordering signature.
package clipsync
