package timeline

import "fmt"

// Kind is the closed set of clip variants. Block type, fill type and kind
// metadata are classified into a Kind once, when the clip is created.
type Kind int

const (
	KindImage Kind = iota + 1
	KindVideo
	KindAudio
	KindText
	KindShape
	KindSticker
	KindVoiceover
)

var kindNames = map[Kind]string{
	KindImage:     "image",
	KindVideo:     "video",
	KindAudio:     "audio",
	KindText:      "text",
	KindShape:     "shape",
	KindSticker:   "sticker",
	KindVoiceover: "voiceover",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown clip kind %q", s)
}

// IsAudio reports whether the clip itself carries the audio (as opposed to
// its fill).
func (k Kind) IsAudio() bool {
	return k == KindAudio || k == KindVoiceover
}

// Trimmable reports whether clips of this kind play footage that can be
// trimmed.
func (k Kind) Trimmable() bool {
	switch k {
	case KindVideo, KindAudio, KindVoiceover:
		return true
	default:
		return false
	}
}
