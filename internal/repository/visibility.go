package repository

// VisibilityDecision carries the directive for an entity's public projection
// together with the flag the entity ends up with.
type VisibilityDecision struct {
	Action IndexAction
	Public bool
}

// DecideVisibility reconciles the public index projection with the requested
// visibility. requested is nil when the caller is not changing visibility.
// A projection that disagrees with the flag is repaired in either direction.
func DecideVisibility(current bool, requested *bool, projected bool) VisibilityDecision {
	target := current
	if requested != nil {
		target = *requested
	}

	switch {
	case target && !projected:
		return VisibilityDecision{Action: IndexAdd, Public: target}
	case !target && projected:
		return VisibilityDecision{Action: IndexRemove, Public: target}
	default:
		return VisibilityDecision{Action: IndexNone, Public: target}
	}
}
