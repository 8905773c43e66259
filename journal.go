package ftptree

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Step is one mutating command issued by a multi-step operation.
type Step struct {
	// Op is "mkdir", "rmdir" or "delete".
	Op   string
	Path string

	// Err is nil when the server accepted the command.
	Err error
}

func (s Step) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s %s: %v", s.Op, s.Path, s.Err)
	}
	return fmt.Sprintf("%s %s", s.Op, s.Path)
}

// Journal records the steps of MkdirAll and RemoveAll in the order they were
// issued. The server offers no transactions, so when such an operation fails
// the journal is the only account of what was already changed.
type Journal struct {
	Steps []Step
}

func (j *Journal) record(op, path string, err error) {
	j.Steps = append(j.Steps, Step{Op: op, Path: path, Err: err})
}

// Applied returns the steps the server accepted.
func (j *Journal) Applied() []Step {
	var out []Step
	for _, s := range j.Steps {
		if s.Err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Failed returns the steps the server rejected.
func (j *Journal) Failed() []Step {
	var out []Step
	for _, s := range j.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Err aggregates every failed step, or returns nil when all succeeded.
func (j *Journal) Err() error {
	var result *multierror.Error
	for _, s := range j.Failed() {
		result = multierror.Append(result, fmt.Errorf("%s %s: %w", s.Op, s.Path, s.Err))
	}
	return result.ErrorOrNil()
}

// partial builds the error returned when the final step of op failed.
// Steps that were rejected along the way are folded into the cause so the
// caller sees why the tree is still there, not only that it is.
func (j *Journal) partial(op, path string) error {
	kind := ErrPartialMutation
	if len(j.Applied()) == 0 {
		kind = ErrCommand
	}
	return &OpError{Op: op, Path: path, Kind: kind, Err: j.Err()}
}
