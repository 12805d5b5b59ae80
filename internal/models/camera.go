package models

// Position is where a camera sits in the studio.
type Position string

const (
	PositionHost  Position = "host"
	PositionGuest Position = "guest"
	PositionWide  Position = "wide"
	PositionOther Position = "other"
)

// Valid reports whether p is one of the known positions.
func (p Position) Valid() bool {
	switch p {
	case PositionHost, PositionGuest, PositionWide, PositionOther:
		return true
	}
	return false
}

// Camera is a switchable feed registered for a session.
// Priority breaks ties; the lower number wins.
type Camera struct {
	ID                  string   `json:"camera_id" yaml:"camera_id"`
	Name                string   `json:"name" yaml:"name"`
	Position            Position `json:"position" yaml:"position"`
	Priority            int      `json:"priority" yaml:"priority"`
	AudioThreshold      float64  `json:"audio_threshold" yaml:"audio_threshold"`
	EngagementThreshold float64  `json:"engagement_threshold" yaml:"engagement_threshold"`
	AutoSwitchEnabled   bool     `json:"auto_switch_enabled" yaml:"auto_switch_enabled"`
	// Participants are the speaker / participant ids framed by this camera.
	Participants []string `json:"participants,omitempty" yaml:"participants,omitempty"`
}

// Frames reports whether the camera is linked to the given speaker or participant id.
// A camera frames its own id, its position name and any listed participant.
func (c *Camera) Frames(id string) bool {
	if id == "" {
		return false
	}
	if id == c.ID || id == string(c.Position) {
		return true
	}
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}
