package affinity

// Reactor decides how a reaction to a change notification is executed.
// Bindings and view models consult the executor's reactors instead of
// choosing a dispatch path themselves.
type Reactor func(action Action) error

// PropertyChanged returns the reactor used for simple state-change
// notifications. By default the reaction runs inline on the notifying
// goroutine and its error is returned unchanged.
func (e *Executor) PropertyChanged() Reactor {
	if r := e.propertyChanged.Load(); r != nil {
		return *r
	}
	return runInline
}

// SetPropertyChanged replaces the property-changed reactor.
func (e *Executor) SetPropertyChanged(r Reactor) error {
	if r == nil {
		return ErrNilReactor
	}
	e.propertyChanged.Store(&r)
	return nil
}

// CollectionChanged returns the reactor used for structural or collection
// change notifications. By default the reaction goes through RunSync.
func (e *Executor) CollectionChanged() Reactor {
	if r := e.collectionChanged.Load(); r != nil {
		return *r
	}
	return e.RunSync
}

// SetCollectionChanged replaces the collection-changed reactor.
func (e *Executor) SetCollectionChanged(r Reactor) error {
	if r == nil {
		return ErrNilReactor
	}
	e.collectionChanged.Store(&r)
	return nil
}

func runInline(action Action) error {
	if action == nil {
		return ErrNilAction
	}
	return call(action)
}
