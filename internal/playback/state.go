package playback

// State is the lifecycle state of a playthrough.
type State string

const (
	StateIdle     State = "idle"
	StateShowing  State = "showing"
	StateChoosing State = "choosing"
	StateEnded    State = "ended"
	StateStalled  State = "stalled"
)

// Done returns true once the playthrough cannot continue.
func (s State) Done() bool {
	return s == StateEnded || s == StateStalled
}

// Frame is what the player sees at one node.
type Frame struct {
	NodeID        string   `json:"node_id"`
	Variant       string   `json:"variant"`
	Label         string   `json:"label"`
	State         State    `json:"state"`
	CharacterName string   `json:"character_name,omitempty"`
	Dialogue      string   `json:"dialogue,omitempty"`
	ImageSrc      string   `json:"image_src,omitempty"`
	Choices       []string `json:"choices,omitempty"`
	Ending        string   `json:"ending,omitempty"`
	FinalMessage  string   `json:"final_message,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}
