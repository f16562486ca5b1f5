package resolver

// StatefulWithClusterAffinity is implemented by locators (or a small
// wrapper around one) that can report whether the bean in question is
// stateful and cluster-affine, the condition spec.md §4.E's
// post-invocation hooks branch on.
type StatefulWithClusterAffinity func(Locator) bool

// HandleSessionCreation implements spec.md §4.E "handleSessionCreation":
// if the locator is stateful-with-cluster-affinity and weak affinity is
// still None, weak affinity becomes the session's observed target
// affinity; otherwise it becomes the resolved destination URI.
func (r *Resolver) HandleSessionCreation(ic InvocationContext, statefulWithClusterAffinity bool, sessionTargetAffinity Affinity) {
	r.applyPostInvocationAffinity(ic, statefulWithClusterAffinity, sessionTargetAffinity)
}

// HandleInvocationResult implements spec.md §4.E "handleInvocationResult":
// on success it behaves like HandleSessionCreation; on a "target
// missing" failure it blacklists the destination, clears
// destination/target/weak affinity, and requests a retry. It returns
// invocationErr unchanged (spec.md §7 point 4: "Rethrow").
func (r *Resolver) HandleInvocationResult(ic InvocationContext, statefulWithClusterAffinity bool, sessionTargetAffinity Affinity, invocationErr error) error {
	if invocationErr == nil {
		r.applyPostInvocationAffinity(ic, statefulWithClusterAffinity, sessionTargetAffinity)
		return nil
	}

	if isTargetMissing(invocationErr) {
		if dest, ok := ic.Destination(); ok {
			blacklistFrom(ic).Add(dest)
		}
		ic.ClearDestination()
		ic.ClearTargetAffinity()
		ic.SetWeakAffinity(NoAffinity{})
		ic.RequestRetry()
	}

	return invocationErr
}

func (r *Resolver) applyPostInvocationAffinity(ic InvocationContext, statefulWithClusterAffinity bool, sessionTargetAffinity Affinity) {
	if statefulWithClusterAffinity {
		if _, isNone := ic.WeakAffinity().(NoAffinity); isNone {
			ic.SetWeakAffinity(sessionTargetAffinity)
			return
		}
	}
	if dest, ok := ic.Destination(); ok {
		ic.SetWeakAffinity(URIAffinity{URI: dest})
	}
}
