// Package petalstream provides demand-driven, multicast event streams.
//
// A stream delivers Events to its subscribers: values, followed by exactly
// one terminal event (normal completion or an error). Consumers control the
// flow by granting demand through their Subscription; a stream never
// delivers more values to a subscriber than it asked for.
//
//	box := petalstream.NewPostBox[int]()
//	box.Subscribe(
//	    func(sub *petalstream.Subscription) { sub.Request(10) },
//	    func(ev petalstream.Event[int]) { fmt.Println(ev) },
//	)
//	box.Post(1)
//	box.Close()
//
// # Demand and dropping
//
// Streams are hot: every value is offered to all current subscribers, and a
// stream accepts values only while at least one subscriber still has
// demand. Its credit is the largest demand held by any single subscriber,
// not the sum. A value produced while no demand exists is dropped, never
// buffered. Pull sources (OnRequestStream) only produce while demand exists,
// so nothing is lost; push sources (PostBox) rely on the producer to respect
// demand.
//
// # Operators
//
// Map, Filter, CompactMap, Reduce, CountEvents, Coalesce, Final, Limit, Skip,
// Split and Paused derive a new stream from one upstream stream. Demand
// granted downstream travels upstream through each operator, and ending or
// cancelling a derived stream cancels its upstream subscription.
//
// Merge and FlatMap combine many streams into one, either ending at the first
// error or delaying it until every source has finished.
//
// # Concurrency
//
// Every stream runs its deliveries on a serial Queue, so a subscriber sees
// events in order. Subscription.Request and Subscription.Cancel may be called
// from any goroutine. Subscribe blocks until the subscription is registered
// and must not be called from a callback running on the same stream's queue.
package petalstream
