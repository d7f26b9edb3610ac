package seg

import "fmt"

// Warning describes a recoverable problem.  The affected frame or segment was
// skipped and processing continued.
type Warning struct {
	Frame   int    // -1 if not specific to a frame
	Segment uint16 // 0 if not specific to a segment
	Message string
}

func (w Warning) String() string {
	switch {
	case w.Frame >= 0:
		return fmt.Sprintf("frame %d (segment %d): %s", w.Frame, w.Segment, w.Message)
	case w.Segment != 0:
		return fmt.Sprintf("segment %d: %s", w.Segment, w.Message)
	default:
		return w.Message
	}
}

// Warnf logs a warning and returns it.
func Warnf(frame int, segment uint16, format string, args ...interface{}) Warning {
	w := Warning{Frame: frame, Segment: segment, Message: fmt.Sprintf(format, args...)}
	Warningf("%s\n", w)
	return w
}
