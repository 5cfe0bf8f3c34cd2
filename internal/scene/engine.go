package scene

import "context"

// Reader is the query surface of the engine.
type Reader interface {
	// CurrentPage returns the page the timeline is bound to.
	CurrentPage() (BlockID, error)
	Children(id BlockID) ([]BlockID, error)
	Parent(id BlockID) (BlockID, error)
	Type(id BlockID) (BlockType, error)
	// Kind returns the kind metadata string of a block (see Kind* constants).
	Kind(id BlockID) (string, error)
	// FillType returns the type of the block's fill, FillNone without one.
	FillType(id BlockID) (FillType, error)
	SubResources(id BlockID) (SubResources, error)
	Name(id BlockID) (string, error)
	Float(id BlockID, p Property) (float64, error)
	Bool(id BlockID, p Property) (bool, error)
	Exists(id BlockID) bool
	// ResourceLoaded reports whether the media behind id is available.
	ResourceLoaded(id BlockID) (bool, error)
}

// Writer mutates scalar properties and references.
type Writer interface {
	SetFloat(id BlockID, p Property, v float64) error
	SetBool(id BlockID, p Property, v bool) error
	// SetFill makes fill the fill of id. The fill is shared, not copied.
	SetFill(id, fill BlockID) error
}

// Lifecycle creates, copies, destroys and re-parents blocks.
type Lifecycle interface {
	Create(t BlockType) (BlockID, error)
	// Duplicate deep-copies id (including its fill) and inserts the copy
	// directly after id in its parent.
	Duplicate(id BlockID) (BlockID, error)
	Destroy(id BlockID) error
	AppendChild(parent, child BlockID) error
	InsertChild(parent, child BlockID, index int) error
}

// EventSource delivers block events in batches.
type EventSource interface {
	// Subscribe registers fn for every delivered batch. The returned func
	// removes the subscription.
	Subscribe(fn func([]Event)) (unsubscribe func())
	// Flush delivers pending events as one batch. Events are never
	// delivered from inside a mutating call.
	Flush()
}

// Loader loads resources asynchronously.
type Loader interface {
	ForceLoadResource(ctx context.Context, id BlockID) error
}

// Committer marks undo boundaries.
type Committer interface {
	Commit(label string) error
}

// Engine is the full facade the timeline core consumes.
type Engine interface {
	Reader
	Writer
	Lifecycle
	EventSource
	Loader
	Committer
}

// Thumbnailer renders preview imagery and audio waveforms.
type Thumbnailer interface {
	// Frame renders id at footage time seconds.
	Frame(ctx context.Context, id BlockID, size Size, seconds float64) ([]byte, error)
	// Samples returns count waveform samples for [from, to) seconds.
	Samples(ctx context.Context, id BlockID, from, to float64, count int) ([]float32, error)
}
