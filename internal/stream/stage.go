package stream

// Stage names one phase of an event walk.
type Stage string

// Stages used by the built-in actions.
const (
	StageInitial   Stage = "initial"
	StageRestrict  Stage = "restrict"
	StageFilter    Stage = "filter"
	StageValidate  Stage = "validate"
	StagePreMerge  Stage = "pre-merge"
	StageMerge     Stage = "merge"
	StagePrecommit Stage = "precommit"
	StageCommit    Stage = "commit"
	StageComplete  Stage = "complete"
)

// Action identifies the kind of mutation an event requests.
type Action string

// Built-in action codes.
const (
	ActionNext   Action = "next"
	ActionSet    Action = "set"
	ActionDelete Action = "delete"
)

// ReplaceStages is the stage list for a plain replace, and the fallback for
// any action without a registered list.
func ReplaceStages() []Stage {
	return []Stage{StageInitial, StageFilter, StageValidate, StagePrecommit, StageCommit, StageComplete}
}

// SetStages is the stage list for a partial merge on keyed streams.
func SetStages() []Stage {
	return []Stage{StageInitial, StageRestrict, StageFilter, StageValidate, StagePrecommit, StageCommit, StageComplete}
}

// MergeStages is the stage list for "next" on keyed streams.
// MERGE is separate from PRECOMMIT so field observers see the fully merged
// candidate before it is frozen.
func MergeStages() []Stage {
	return []Stage{StageInitial, StageFilter, StageValidate, StagePreMerge, StageMerge, StagePrecommit, StageCommit, StageComplete}
}

// DeleteStages is the stage list for key removal on keyed streams.
func DeleteStages() []Stage {
	return []Stage{StageInitial, StageFilter, StageValidate, StagePrecommit, StageCommit, StageComplete}
}
