// Package devicesync keeps a local, readable view of a dashboard's devices
// consistent with a polled backend while absorbing user mutations with no
// perceived latency.
//
// # Architecture
//
//	          ┌──────────┐  tick / RequestRefresh
//	          │  Poller  │──────────────┐
//	          └──────────┘              ▼
//	                           ┌──────────────────┐     ┌─────────┐
//	RemoteDeviceSource ──────▶ │ Merge (+Tracker) │ ──▶ │  Store  │ ──▶ subscribers
//	        ▲                  └──────────────────┘     └─────────┘
//	        │                                               ▲
//	        └──────────────── Gateway ──────────────────────┘
//	                 (optimistic write, settle / rollback)
//
// # Reconciliation
//
// Every poll returns the complete device list. Merge takes that snapshot,
// the previous view and the pending set:
//
//   - the snapshot decides membership and order
//   - a device with a live pending entry keeps its optimistic value
//   - an unchanged device keeps its previous pointer, so identical polls
//     produce no notification
//
// A pending entry lives for PendingTTL from mutation start. After that the
// server wins. Expired entries are pruned by the next merge; there are no
// timers.
//
// # Concurrency
//
// Merges, optimistic writes and rollbacks run under one step mutex owned
// by the Synchronizer. Network calls run outside it. At most one poll is in
// flight; a tick that finds one running is skipped.
//
// Subscribers are called synchronously and in commit order. A listener may
// read the view but must not start a mutation from inside the callback.
//
// # Usage
//
//	sync, err := devicesync.New(devicesync.Options{
//	    Source:      client,
//	    Filter:      filter,
//	    OnAuthError: sess.HandleAuthError,
//	})
//	if err != nil {
//	    return err
//	}
//	defer sync.Close()
//
//	unsubscribe := sync.Subscribe(func(st devicesync.State) { render(st) })
//	defer unsubscribe()
//
//	if err := sync.Start(ctx); err != nil {
//	    return err
//	}
//	err = sync.ToggleDevice(ctx, "42", true)
package devicesync
