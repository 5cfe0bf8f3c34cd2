package scene

import (
	"fmt"
	"time"
)

// ClipSpec describes a timeline-visible block for AddClip.
type ClipSpec struct {
	Name      string
	Kind      string // one of the Kind* constants
	Offset    time.Duration
	Duration  time.Duration
	Unbounded bool
	Footage   time.Duration
	Trim      time.Duration
	Volume    float64
	Muted     bool
	Unloaded  bool
}

type floatProp struct {
	id BlockID
	p  Property
	v  float64
}

// AddClip creates the blocks for spec, appends the clip to parent and
// returns its id. Media kinds get a fill (or carry the media themselves for
// audio) with footage duration, volume and load state set.
func (m *Memory) AddClip(parent BlockID, spec ClipSpec) (BlockID, error) {
	var (
		id    BlockID
		media BlockID
		err   error
	)
	switch spec.Kind {
	case KindAudio, KindVoiceover:
		id, err = m.Create(TypeAudio)
		media = id
	case KindText:
		id, err = m.Create(TypeText)
	case KindVideo, KindImage, KindSticker, KindAnimatedSticker, KindShape:
		id, err = m.graphic(spec.Kind)
		if err == nil && spec.Kind == KindVideo {
			subs, _ := m.SubResources(id)
			media = subs.Fill
		}
	default:
		return NoBlock, fmt.Errorf("add clip %q: unsupported kind %q", spec.Name, spec.Kind)
	}
	if err != nil {
		return NoBlock, err
	}
	if err := m.SetKind(id, spec.Kind); err != nil {
		return NoBlock, err
	}
	if err := m.SetName(id, spec.Name); err != nil {
		return NoBlock, err
	}

	duration := spec.Duration.Seconds()
	if spec.Unbounded {
		duration = UnboundedSeconds
	}
	floats := []floatProp{
		{id, PropDuration, duration},
		{id, PropTimeOffset, spec.Offset.Seconds()},
		{id, PropTrimOffset, spec.Trim.Seconds()},
	}
	if media.Valid() {
		volume := spec.Volume
		if volume == 0 && !spec.Muted {
			volume = 1
		}
		footage := spec.Footage.Seconds()
		if spec.Footage == 0 {
			footage = duration
		}
		floats = append(floats,
			floatProp{media, PropFootageDuration, footage},
			floatProp{media, PropVolume, volume},
		)
	}
	for _, f := range floats {
		if err := m.SetFloat(f.id, f.p, f.v); err != nil {
			return NoBlock, err
		}
	}
	if media.Valid() {
		if err := m.SetBool(media, PropMuted, spec.Muted); err != nil {
			return NoBlock, err
		}
		if spec.Unloaded {
			if err := m.SetLoaded(media, false); err != nil {
				return NoBlock, err
			}
		}
	}
	if err := m.AppendChild(parent, id); err != nil {
		return NoBlock, err
	}
	return id, nil
}

func (m *Memory) graphic(kind string) (BlockID, error) {
	id, err := m.Create(TypeGraphic)
	if err != nil {
		return NoBlock, err
	}
	fillType := FillImage
	switch kind {
	case KindVideo:
		fillType = FillVideo
	case KindShape:
		fillType = FillColor
		shape, err := m.Create(TypeShape)
		if err != nil {
			return NoBlock, err
		}
		if err := m.SetShape(id, shape); err != nil {
			return NoBlock, err
		}
	}
	fill, err := m.Create(TypeFill)
	if err != nil {
		return NoBlock, err
	}
	if err := m.SetFillType(fill, fillType); err != nil {
		return NoBlock, err
	}
	if err := m.SetFill(id, fill); err != nil {
		return NoBlock, err
	}
	return id, nil
}

// BackgroundTrack returns the page's background track, creating and
// appending one when the page has none.
func (m *Memory) BackgroundTrack() (BlockID, error) {
	children, err := m.Children(m.page)
	if err != nil {
		return NoBlock, err
	}
	for _, id := range children {
		if t, err := m.Type(id); err == nil && t == TypeTrack {
			return id, nil
		}
	}
	track, err := m.Create(TypeTrack)
	if err != nil {
		return NoBlock, err
	}
	if err := m.AppendChild(m.page, track); err != nil {
		return NoBlock, err
	}
	return track, nil
}
