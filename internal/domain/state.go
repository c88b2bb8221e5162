package domain

// SeenState maps a board key to the link of the last announced (or seeded) post.
type SeenState map[string]string

// Clone returns an independent copy.
func (s SeenState) Clone() SeenState {
	out := make(SeenState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Action is what the change detector decided for one board.
type Action int

const (
	NoChange Action = iota
	Seed
	Announce
)

func (a Action) String() string {
	switch a {
	case Seed:
		return "seed"
	case Announce:
		return "announce"
	default:
		return "no_change"
	}
}
