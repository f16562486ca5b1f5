package resolver

// Locator is the immutable invocation identity of spec.md §3.
type Locator struct {
	AppName      string
	ModuleName   string
	DistinctName string
	BeanName     string
	SessionID    *string
	Affinity     Affinity
}
