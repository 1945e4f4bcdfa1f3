package enums

import "fmt"

// TimelineKind separates status changes from plain location checkpoints.
type TimelineKind string

const (
	TimelineKindStatus     TimelineKind = "status"
	TimelineKindCheckpoint TimelineKind = "checkpoint"
)

var validTimelineKinds = []TimelineKind{TimelineKindStatus, TimelineKindCheckpoint}

func (k TimelineKind) IsValid() bool {
	for _, candidate := range validTimelineKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTimelineKind converts raw input into a TimelineKind.
func ParseTimelineKind(value string) (TimelineKind, error) {
	for _, candidate := range validTimelineKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid timeline kind %q", value)
}

// TimelineSource records who produced a timeline event.
type TimelineSource string

const (
	TimelineSourceCourier TimelineSource = "courier"
	TimelineSourceSystem  TimelineSource = "system"
)
