package affinity

// PassThrough is a Dispatcher with no affinity goroutine. Post and Send run
// the action inline on the caller and IsCurrent is always true.
type PassThrough struct{}

// Post runs the action inline. Its error is discarded.
func (PassThrough) Post(action Action) {
	if action == nil {
		return
	}
	_ = call(action)
}

// Send runs the action inline and returns its error.
func (PassThrough) Send(action Action) error {
	if action == nil {
		return ErrNilAction
	}
	return call(action)
}

// IsCurrent always returns true.
func (PassThrough) IsCurrent() bool {
	return true
}
