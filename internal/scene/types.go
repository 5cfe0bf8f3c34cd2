package scene

import (
	"fmt"
	"math"
	"time"
)

// BlockID is an opaque handle to a node in the engine's scene graph.
type BlockID uint32

// NoBlock is the zero handle. The engine never hands it out.
const NoBlock BlockID = 0

// Valid reports whether id refers to a block at all.
func (id BlockID) Valid() bool {
	return id != NoBlock
}

func (id BlockID) String() string {
	return fmt.Sprintf("block#%d", uint32(id))
}

// BlockType is the engine's structural type of a block.
type BlockType string

const (
	TypeScene   BlockType = "scene"
	TypePage    BlockType = "page"
	TypeTrack   BlockType = "track"
	TypeGraphic BlockType = "graphic"
	TypeAudio   BlockType = "audio"
	TypeText    BlockType = "text"
	TypeFill    BlockType = "fill"
	TypeShape   BlockType = "shape"
	TypeEffect  BlockType = "effect"
	TypeBlur    BlockType = "blur"
)

// FillType is the type of the fill attached to a graphic block.
type FillType string

const (
	FillNone  FillType = ""
	FillColor FillType = "color"
	FillImage FillType = "image"
	FillVideo FillType = "video"
)

// Kind strings the engine stores as block metadata.
const (
	KindImage           = "image"
	KindVideo           = "video"
	KindAudio           = "audio"
	KindVoiceover       = "voiceover"
	KindText            = "text"
	KindShape           = "shape"
	KindSticker         = "sticker"
	KindAnimatedSticker = "animated_sticker"
)

// Property names a scalar property of a block.
type Property string

const (
	PropDuration        Property = "playback/duration"
	PropTimeOffset      Property = "playback/timeOffset"
	PropTrimOffset      Property = "playback/trimOffset"
	PropTrimLength      Property = "playback/trimLength"
	PropFootageDuration Property = "playback/totalDuration"
	PropVolume          Property = "playback/volume"
	PropMuted           Property = "playback/muted"
	PropLooping         Property = "playback/looping"
	PropPlaybackTime    Property = "playback/time"
	PropPlaying         Property = "playback/playing"
	PropSoloPlayback    Property = "playback/soloPlaybackEnabled"
	PropWidth           Property = "transform/width"
	PropHeight          Property = "transform/height"
)

// UnboundedSeconds is the value the engine reports for the duration of a
// resource without a natural end.
const UnboundedSeconds = math.MaxFloat64

// EventType classifies a block event.
type EventType int

const (
	EventCreated EventType = iota + 1
	EventUpdated
	EventDestroyed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a single entry of an event batch.
type Event struct {
	Block BlockID
	Type  EventType
}

// SubResources are the blocks a graphic block references.
type SubResources struct {
	Fill    BlockID
	Shape   BlockID
	Blur    BlockID
	Effects []BlockID
}

// Size is a pixel size for rendered thumbnails.
type Size struct {
	Width  int
	Height int
}

// Seconds converts d to engine seconds.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// Duration converts engine seconds to a time.Duration rounded to the
// nearest microsecond, so values written as seconds read back unchanged.
func Duration(seconds float64) time.Duration {
	if math.IsInf(seconds, 1) || seconds >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	us := math.Round(seconds * 1e6)
	return time.Duration(us) * time.Microsecond
}
