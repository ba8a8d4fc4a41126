package affinity

var defaultExecutor = NewExecutor()

// Default returns the process-wide executor used by the package-level functions.
func Default() *Executor {
	return defaultExecutor
}

// Installed returns the dispatcher installed on the default executor.
func Installed() Dispatcher {
	return defaultExecutor.Dispatcher()
}

// SetDispatcher installs d on the default executor.
// It is meant to be called once during startup.
func SetDispatcher(d Dispatcher) error {
	return defaultExecutor.SetDispatcher(d)
}

// PostAsync posts the action through the default executor.
func PostAsync(action Action) {
	defaultExecutor.PostAsync(action)
}

// PostAsyncAwaitable posts the action through the default executor and
// returns a Future for its completion.
func PostAsyncAwaitable(action Action) *Future {
	return defaultExecutor.PostAsyncAwaitable(action)
}

// Run runs the action on the affinity goroutine, inline if already there.
func Run(action Action) {
	defaultExecutor.Run(action)
}

// RunSync runs the action on the affinity goroutine and waits for it.
func RunSync(action Action) error {
	return defaultExecutor.RunSync(action)
}

// RunAsync runs the action on the affinity goroutine and returns a Future.
func RunAsync(action Action) *Future {
	return defaultExecutor.RunAsync(action)
}

// PropertyChanged returns the default executor's property-changed reactor.
func PropertyChanged() Reactor {
	return defaultExecutor.PropertyChanged()
}

// SetPropertyChanged replaces the default executor's property-changed reactor.
func SetPropertyChanged(r Reactor) error {
	return defaultExecutor.SetPropertyChanged(r)
}

// CollectionChanged returns the default executor's collection-changed reactor.
func CollectionChanged() Reactor {
	return defaultExecutor.CollectionChanged()
}

// SetCollectionChanged replaces the default executor's collection-changed reactor.
func SetCollectionChanged(r Reactor) error {
	return defaultExecutor.SetCollectionChanged(r)
}
