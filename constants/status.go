package constants

// ClaimStatus is the final decision for a claim.
type ClaimStatus string

// Stable values (store these exact strings in DB).
const (
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// JobStatus tracks a claim job in the async queue.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusFailed  JobStatus = "FAILED" // terminal failure
)
