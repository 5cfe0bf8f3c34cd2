// Package harness runs editing scenarios against an in-memory engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: split_background
//	description: "Splitting a background clip keeps the total"
//	config:
//	  min_clip_duration: 500ms
//	scene:
//	  background:
//	    - { name: a, kind: video, duration: 3s }
//	  foreground:
//	    - { name: music, kind: audio, unbounded: true }
//	steps:
//	  - { op: split, clip: a, at: 1s, as: a2 }
//	  - { op: set_trim, clip: a, trim: 0s, duration: 100ms, expect_error: validation }
//	assertions:
//	  - { type: total, value: 3s }
//	  - { type: background_order, clips: [a, a2] }
//
// Clips are referred to by name. A split names its new clip with as.
//
// # Operations
//
//   - split (clip, at, as), set_trim (clip, offset, trim, duration)
//   - toggle_background (clip), reorder (clip, index), delete (clip)
//   - select (clip), mute (clip), volume (clip, value)
//   - play, pause, seek (at), advance (at), clamp
//   - scrub_start (clip), scrub (at), scrub_stop
//
// # Assertion Types
//
//   - total: TotalDuration equals value
//   - playhead: playhead position equals value
//   - background_order / foreground_order: clip names in order
//   - selected: the selected clip (empty clip means none)
//   - clip: fields of one clip (offset, duration, trim, muted, volume, background)
//   - commits: journal labels in order
//   - phase: scrubbing phase ("idle" or "scrubbing")
//
// # Deterministic Execution
//
// Every run uses a fresh engine, an in-memory SQLite journal, sequence ids
// and a logical clock starting at zero, so the transcript is identical
// across runs and can be compared against a golden file.
package harness
