// Package container implements the MVI state container: a single state value,
// an ordered side-effect queue and a serialized dispatch loop for intents.
//
// A host typically keeps the container returned by New and exposes methods that
// submit intents:
//
//	func (vm *Counter) Increment() *container.Job {
//		return vm.c.Orbit(func(s *container.Syntax[int, string]) error {
//			return s.Reduce(func(n int) int { return n + 1 })
//		})
//	}
//
// Intents run on their own goroutines. Reductions made before an intent first
// reaches a suspension point (Delay, Suspend, Join, RepeatOnSubscription or a
// PostSideEffect on a full buffer) are applied before the next submitted intent
// starts.
package container
