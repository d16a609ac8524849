package reconcile

import "fmt"

// ItemError reports why one input item was not written. Index is the item's
// position in the request body.
type ItemError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// Result is the outcome of one reconciliation call. Closed is nil unless a
// close-missing pass ran.
type Result struct {
	Created int         `json:"created"`
	Updated int         `json:"updated"`
	Closed  *int        `json:"closed,omitempty"`
	Errors  []ItemError `json:"errors"`
}

func NewResult() Result {
	return Result{Errors: []ItemError{}}
}

func (r *Result) fail(index int, format string, args ...any) {
	r.Errors = append(r.Errors, ItemError{Index: index, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addClosed(n int) {
	if r.Closed == nil {
		r.Closed = new(int)
	}
	*r.Closed += n
}

// Merge folds o into r. indexes maps o's item positions back to r's.
func (r *Result) Merge(o Result, indexes []int) {
	r.Created += o.Created
	r.Updated += o.Updated
	if o.Closed != nil {
		r.addClosed(*o.Closed)
	}
	for _, e := range o.Errors {
		if e.Index >= 0 && e.Index < len(indexes) {
			e.Index = indexes[e.Index]
		}
		r.Errors = append(r.Errors, e)
	}
	sortErrors(r)
}

// Fail records an item error.
func (r *Result) Fail(index int, message string) {
	r.Errors = append(r.Errors, ItemError{Index: index, Message: message})
	sortErrors(r)
}

// Written is the number of items that reached the store.
func (r Result) Written() int {
	return r.Created + r.Updated
}
