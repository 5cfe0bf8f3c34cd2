package timeline

import "time"

// Layout recomputes background start offsets, the total duration and every
// clip's display duration. It returns the new total and whether it changed.
func (s *State) Layout() (time.Duration, bool) {
	var total time.Duration
	if s.Background.Len() > 0 {
		for _, c := range s.Background.Clips {
			c.TimeOffset = total
			total += c.Duration.Or(0)
		}
	} else {
		for _, t := range s.Tracks {
			for _, c := range t.Clips {
				total = max(total, c.End())
			}
		}
	}
	changed := total != s.TotalDuration
	s.TotalDuration = total

	for _, c := range s.Clips() {
		c.DisplayDuration = displayDuration(c, total)
	}
	return total, changed
}

func displayDuration(c *Clip, total time.Duration) time.Duration {
	switch {
	case c.Duration.Valid:
		return c.Duration.Value
	case c.Kind == KindVoiceover:
		return total
	default:
		return max(total-c.TimeOffset, 0)
	}
}

// Overhang returns the foreground clips whose end lies past the total
// duration. Only meaningful while the background track is non-empty.
func (s *State) Overhang() []*Clip {
	if s.Background.Len() == 0 {
		return nil
	}
	var out []*Clip
	for _, t := range s.Tracks {
		for _, c := range t.Clips {
			if c.End() > s.TotalDuration {
				out = append(out, c)
			}
		}
	}
	return out
}
