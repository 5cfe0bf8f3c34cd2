// Package session binds one engine page to the timeline core and owns the
// control goroutine.
//
// Every engine event batch, every command and every completion posted by a
// background task is queued and handled in FIFO order by a single goroutine.
// Components built on top of a Session (synchronizer, editor, scrubbing,
// playback) therefore never lock: they are only ever touched from the
// control goroutine.
//
// Two ways of driving a session:
//
//   - Run(ctx) blocks and processes work as it arrives. Other goroutines
//     use Submit to run commands on it.
//   - Do(ctx, fn) and Settle(ctx) run synchronously on the caller's
//     goroutine, which then is the control goroutine. The CLI and the
//     scenario harness work this way.
//
// Do not mix the two on one Session.
package session
