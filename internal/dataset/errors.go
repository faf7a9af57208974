package dataset

import "fmt"

// LoadError indicates the source file could not be turned into a Dataset.
// Nothing downstream can run without a dataset, so callers treat it as fatal
// for the page or command that triggered the load.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e == nil {
		return "dataset load failed"
	}
	if e.Err != nil {
		return fmt.Sprintf("load dataset %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load dataset %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// InvalidSelectionError indicates that no usable client is selected: nothing
// was selected, the key is outside the dataset bounds, or the dataset is empty.
type InvalidSelectionError struct {
	Key        int
	ExternalID string
	Min        int
	Max        int
	Absent     bool
	Empty      bool
}

func (e *InvalidSelectionError) Error() string {
	switch {
	case e == nil:
		return "invalid selection"
	case e.Absent:
		return "no client selected"
	case e.ExternalID != "":
		return fmt.Sprintf("client %q not found", e.ExternalID)
	case e.Empty:
		return fmt.Sprintf("client key %d is invalid: dataset is empty", e.Key)
	default:
		return fmt.Sprintf("client key %d out of range [%d, %d]", e.Key, e.Min, e.Max)
	}
}
