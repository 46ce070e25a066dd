package domain

// ArtifactKind names one of the rotatable artifact families.
type ArtifactKind string

const (
	ArtifactProfile            ArtifactKind = "profile"
	ArtifactRawFeedback        ArtifactKind = "raw_feedback"
	ArtifactAggregatedFeedback ArtifactKind = "aggregated_feedback"
	ArtifactSkill              ArtifactKind = "skill"
)

func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactProfile, ArtifactRawFeedback, ArtifactAggregatedFeedback, ArtifactSkill:
		return true
	}
	return false
}

// Rotatable reports whether the kind participates in the
// current/pending/archived rotation. Skills carry their own
// draft/published/deprecated machine and are excluded.
func (k ArtifactKind) Rotatable() bool {
	return k == ArtifactProfile || k == ArtifactRawFeedback || k == ArtifactAggregatedFeedback
}

// RotationStatus is the three-state label used by profiles and feedback.
// The empty string is the default on freshly queried artifacts and means
// "current".
type RotationStatus string

const (
	RotationCurrent  RotationStatus = ""
	RotationPending  RotationStatus = "pending"
	RotationArchived RotationStatus = "archived"
)

func (s RotationStatus) Valid() bool {
	switch s {
	case RotationCurrent, RotationPending, RotationArchived:
		return true
	}
	return false
}

// ExpirationNever is the sentinel epoch value meaning a profile never
// expires. Expiry is informational; consumers compare against wall-clock
// time themselves.
const ExpirationNever int64 = 0
