package core

// Status is the result of handling one opportunity or one message.
type Status string

// Outcome statuses
const (
	StatusSent    Status = "SENT"
	StatusSkipped Status = "SKIPPED"
	StatusFailed  Status = "FAILED"
)

// Outcome replaces catch-and-log control flow: every no-op and every
// swallowed failure is reported to the caller with its reason.
type Outcome struct {
	Status Status
	Reason error
}

// Sent reports a delivered message.
func Sent() Outcome {
	return Outcome{Status: StatusSent}
}

// Skipped reports an expected no-op, e.g. an unsupported currency pair.
func Skipped(reason error) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// Failed reports a dropped message.
func Failed(reason error) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

// OK reports whether the outcome is neither skipped nor failed.
func (o Outcome) OK() bool {
	return o.Status == StatusSent
}

// String returns the status, with the reason when there is one.
func (o Outcome) String() string {
	if o.Reason == nil {
		return string(o.Status)
	}
	return string(o.Status) + ": " + o.Reason.Error()
}
