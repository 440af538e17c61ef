package queue

import "strings"

// Outcome is the single terminal result an executor reports for a job.
type Outcome struct {
	Succeeded bool
	// Artifact is the primary output path or URL.
	Artifact string
	// Outputs lists every produced file for batch media references.
	Outputs []string
	// Message explains a failure.
	Message string
}

// Success builds a successful outcome. When artifact is empty the first
// output stands in for it.
func Success(artifact string, outputs ...string) Outcome {
	if artifact == "" && len(outputs) > 0 {
		artifact = outputs[0]
	}
	return Outcome{Succeeded: true, Artifact: artifact, Outputs: outputs}
}

// Failure builds a failed outcome. Blank messages are replaced so a failed
// job always carries an error string.
func Failure(message string) Outcome {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "executor reported failure without a message"
	}
	return Outcome{Message: message}
}
