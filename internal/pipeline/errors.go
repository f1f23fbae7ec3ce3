package pipeline

import "fmt"

const (
	StageCollect  = "collect"
	StageClassify = "classify"
	StagePersist  = "persist"
)

// RunError reports which stage of a score computation failed and how many
// comments had been classified when it did. No record is saved for a failed
// run.
type RunError struct {
	Subject   string
	Stage     string
	Processed int
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("score %q failed at %s after %d comments: %v", e.Subject, e.Stage, e.Processed, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
