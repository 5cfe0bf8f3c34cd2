// Package scene defines the facade the timeline core consumes from the
// external scene-graph engine, plus Memory, an in-memory engine with the same
// observable behaviour.
//
// The engine is authoritative. Every mutation queues an event; events are
// delivered as one batch per Flush, never from inside the mutating call. Time
// values cross the facade as float64 seconds; Seconds and Duration convert.
//
// A resource without a natural end (a voiceover still being recorded) reports
// UnboundedSeconds as its duration.
package scene
