package models

// PageStatus represents the membership status of a non-reentrant URL in the database
type PageStatus string

const (
	PageStatusUnset    PageStatus = ""          // Zero value = unset/unknown
	PageStatusPending  PageStatus = "pending"   // URL queued or in flight
	PageStatusSuccess  PageStatus = "success"   // Page processed successfully
	PageStatusFailure  PageStatus = "failure"   // Page processing failed
	PageStatusNotFound PageStatus = "not_found" // URL not in database
	PageStatusDBError  PageStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s PageStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s PageStatus) IsValid() bool {
	switch s {
	case PageStatusPending, PageStatusSuccess, PageStatusFailure:
		return true
	}
	return false
}

// IsTerminal reports whether the URL has finished processing and may be enqueued again
func (s PageStatus) IsTerminal() bool {
	return s == PageStatusSuccess || s == PageStatusFailure
}

// LoadOutcome is the terminal stage a page reached in the extraction pipeline
type LoadOutcome string

const (
	OutcomeIrrelevant LoadOutcome = "irrelevant" // Relevance gate rejected the page
	OutcomeNoResult   LoadOutcome = "no_result"  // Extractor returned no row
	OutcomeDone       LoadOutcome = "done"       // Row produced and post-extract hook ran
	OutcomeFailed     LoadOutcome = "failed"     // Extractor or a collaborator returned an error
)

// String implements fmt.Stringer for logging
func (o LoadOutcome) String() string {
	if o == "" {
		return "unset"
	}
	return string(o)
}
