// Package daemon keeps the local audit database in step with the web
// service without the auditor asking for it.
//
// The daemon runs a sync pass:
//
//  1. Once at startup
//  2. Every Config.Interval
//  3. When a trigger file in the data directory changes, after
//     Config.Debounce of quiet
//
// Trigger files are the session file (a login or logout from another
// process) and RequestFile, which the CLI touches after an audit is
// completed. Passes started while another is running share its result
// instead of queueing a second one.
//
// Only one daemon may serve a data directory; Start takes an exclusive lock
// on LockFile and fails with ErrLocked when another process holds it.
//
// Usage:
//
//	d, err := daemon.New(dataDir, func(ctx context.Context) auditsync.Result {
//	    return seq.Run(ctx)
//	})
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until ctx is done
package daemon
