package domain

import (
	"encoding/json"
	"fmt"
)

// TransitionMethod says how the connective segment between two shots is made.
type TransitionMethod string

const (
	// MethodGenerative renders the transition with the external video model.
	MethodGenerative TransitionMethod = "generative"
	// MethodLocal synthesizes the transition from the cached adjacent stills.
	MethodLocal TransitionMethod = "local"
)

// Effect identifiers the planner may request for a transition. Unknown ids
// degrade to a crossfade at composition time.
const (
	EffectCrossfade   = "crossfade"
	EffectFadeToBlack = "fade_to_black"
	EffectZoomIn      = "zoom_in"
	EffectZoomOut     = "zoom_out"
	EffectPan         = "pan"
)

// Resolution tiers for rendered shots.
const (
	ResolutionHero     = "1080p"
	ResolutionStandard = "720p"
)

// Shot is one still frame of the storyboard with its generation prompt.
type Shot struct {
	Cut              int     `json:"cut"`
	SceneDescription string  `json:"scene_description"`
	ImagePrompt      string  `json:"image_prompt"`
	Duration         float64 `json:"duration"`
	IsHeroShot       bool    `json:"is_hero_shot"`
	Resolution       string  `json:"resolution"`
}

// Transition is the connective segment between two adjacent shots.
type Transition struct {
	Method   TransitionMethod `json:"method"`
	Effect   string           `json:"effect"`
	Duration float64          `json:"duration"`
	Reason   string           `json:"reason"`
}

type transitionEnvelope struct {
	Transition Transition `json:"transition"`
}

// StoryboardItem is a tagged union: exactly one of Shot or Transition is set.
// On the wire a transition is the object {"transition": {...}} and anything
// else is a shot, matching the planner's heterogeneous JSON array.
type StoryboardItem struct {
	Shot       *Shot
	Transition *Transition
}

// IsShot reports whether the item carries a shot.
func (i StoryboardItem) IsShot() bool { return i.Shot != nil }

func (i StoryboardItem) MarshalJSON() ([]byte, error) {
	if i.Transition != nil {
		return json.Marshal(transitionEnvelope{Transition: *i.Transition})
	}
	if i.Shot != nil {
		return json.Marshal(i.Shot)
	}
	return nil, fmt.Errorf("storyboard item has neither shot nor transition")
}

func (i *StoryboardItem) UnmarshalJSON(data []byte) error {
	var probe struct {
		Transition json.RawMessage `json:"transition"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if len(probe.Transition) > 0 && string(probe.Transition) != "null" {
		var env transitionEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		i.Transition = &env.Transition
		i.Shot = nil
		return nil
	}
	var shot Shot
	if err := json.Unmarshal(data, &shot); err != nil {
		return err
	}
	i.Shot = &shot
	i.Transition = nil
	return nil
}

// Storyboard is the ordered interleaving of shots and transitions. Adjacency
// is structural: the nearest shot on each side of a transition is what it
// connects, there is no separate index.
type Storyboard []StoryboardItem

// Shots returns the shots in storyboard order.
func (s Storyboard) Shots() []Shot {
	var shots []Shot
	for _, item := range s {
		if item.Shot != nil {
			shots = append(shots, *item.Shot)
		}
	}
	return shots
}

// Transitions returns the transitions in storyboard order.
func (s Storyboard) Transitions() []Transition {
	var transitions []Transition
	for _, item := range s {
		if item.Transition != nil {
			transitions = append(transitions, *item.Transition)
		}
	}
	return transitions
}

// AdjacentShots scans outward from the transition at index idx and returns the
// nearest shot on each side. Either may be nil at the storyboard edges.
func (s Storyboard) AdjacentShots(idx int) (from, to *Shot) {
	if idx < 0 || idx >= len(s) {
		return nil, nil
	}
	for i := idx - 1; i >= 0; i-- {
		if s[i].Shot != nil {
			from = s[i].Shot
			break
		}
	}
	for i := idx + 1; i < len(s); i++ {
		if s[i].Shot != nil {
			to = s[i].Shot
			break
		}
	}
	return from, to
}

// TransitionKey names a transition artifact by the cuts it connects.
func TransitionKey(fromCut, toCut int) string {
	return fmt.Sprintf("%d-%d", fromCut, toCut)
}

// Validate checks the structural invariants. Alternation violations and fewer
// than two shots are fatal; a shot count that drifts from the tier's cut count
// is tolerated and reported as a warning.
func (s Storyboard) Validate(wantCuts int) ([]string, error) {
	shots := s.Shots()
	if len(shots) < 2 {
		return nil, fmt.Errorf("%w: %d shots, need at least 2", ErrInvalidStoryboard, len(shots))
	}
	if len(s) > 0 {
		if s[0].Transition != nil {
			return nil, fmt.Errorf("%w: begins with a transition", ErrInvalidStoryboard)
		}
		if s[len(s)-1].Transition != nil {
			return nil, fmt.Errorf("%w: ends with a transition", ErrInvalidStoryboard)
		}
	}
	for i := 1; i < len(s); i++ {
		if s[i].IsShot() == s[i-1].IsShot() {
			return nil, fmt.Errorf("%w: items %d and %d do not alternate", ErrInvalidStoryboard, i-1, i)
		}
	}
	var warnings []string
	if wantCuts > 0 && len(shots) != wantCuts {
		warnings = append(warnings, fmt.Sprintf("storyboard has %d shots, tier expects %d", len(shots), wantCuts))
	}
	if got, want := len(s.Transitions()), len(shots)-1; got != want {
		warnings = append(warnings, fmt.Sprintf("storyboard has %d transitions, expected %d", got, want))
	}
	return warnings, nil
}

// Normalize enforces the derivable invariants after parsing: cut numbers are
// contiguous and 1-based, the first and last shot are hero shots, and the
// resolution tier follows the hero flag.
func (s Storyboard) Normalize() {
	cut := 0
	shotIdx := 0
	total := len(s.Shots())
	for i := range s {
		shot := s[i].Shot
		if shot == nil {
			continue
		}
		cut++
		shotIdx++
		shot.Cut = cut
		if shotIdx == 1 || shotIdx == total {
			shot.IsHeroShot = true
		}
		if shot.IsHeroShot {
			shot.Resolution = ResolutionHero
		} else if shot.Resolution == "" {
			shot.Resolution = ResolutionStandard
		}
	}
}

// DeclaredDuration sums the durations declared for every shot and transition.
func (s Storyboard) DeclaredDuration() float64 {
	var total float64
	for _, item := range s {
		switch {
		case item.Shot != nil:
			total += item.Shot.Duration
		case item.Transition != nil:
			total += item.Transition.Duration
		}
	}
	return total
}
