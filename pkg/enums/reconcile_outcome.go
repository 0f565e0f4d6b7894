package enums

// ReconcileOutcome is the result of reconciling one checkout session.
type ReconcileOutcome string

const (
	ReconcileOutcomeSkippedNotPaid          ReconcileOutcome = "skipped_not_paid"
	ReconcileOutcomeSkippedMissingMetadata  ReconcileOutcome = "skipped_missing_metadata"
	ReconcileOutcomeSkippedAlreadyRecorded  ReconcileOutcome = "skipped_already_recorded"
	ReconcileOutcomeSkippedPropertyAssigned ReconcileOutcome = "skipped_property_assigned"
	ReconcileOutcomeCreated                 ReconcileOutcome = "created"
)

// ReconcileOutcomes lists outcomes in the order reports print them.
var ReconcileOutcomes = []ReconcileOutcome{
	ReconcileOutcomeCreated,
	ReconcileOutcomeSkippedAlreadyRecorded,
	ReconcileOutcomeSkippedPropertyAssigned,
	ReconcileOutcomeSkippedNotPaid,
	ReconcileOutcomeSkippedMissingMetadata,
}

func (r ReconcileOutcome) String() string {
	return string(r)
}

// IsSkip reports whether the outcome left the store untouched.
func (r ReconcileOutcome) IsSkip() bool {
	return r != ReconcileOutcomeCreated && r != ""
}
