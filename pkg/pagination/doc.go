// Package pagination drives the incrementally loaded character list.
//
// State accumulates pages in server order. Controller owns a State on a Loop,
// the single goroutine that mutates it, and translates fetch results into
// change events:
//
//	EventLoading   show a spinner, lock the list
//	EventInitial   reload everything
//	EventInserted  insert rows at Event.Indices
//	EventFailed    show Event.Err, unlock the list
//
// Example usage:
//
//	ctrl, err := pagination.NewController(marvelClient, pagination.DefaultConfig(),
//		pagination.WithListener(pagination.ListenerFunc(func(e pagination.Event) {
//			render(e)
//		})))
//	if err != nil {
//		return err
//	}
//	defer ctrl.Close()
//
//	_ = ctrl.LoadInitial()
//	// later, from the scroll handler
//	ctrl.LoadNextPageIfNeeded(pagination.ItemPosition(cursor, count))
//
// At most one fetch is in flight per controller. Triggers that arrive while a
// fetch is outstanding are ignored, not queued. A failed page leaves the list
// untouched and can be requested again with Retry or the next scroll.
//
// BatchFetcher is the bulk counterpart: it downloads every page in parallel
// with a bounded worker pool.
package pagination
