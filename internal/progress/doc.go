// Package progress reconstructs transfer progress for tools that expose no byte-level hooks.
//
// A Monitor periodically probes the size of the directory a transfer writes into, derives
// throughput and ETA from the growth between two samples, and hands a Snapshot to a callback.
// Stopping the monitor always emits one last snapshot at 100% so consumers observe a
// terminating event.
//
//	mon := progress.NewMonitor(dir, totalBytes, time.Second, func(s progress.Snapshot) {
//	    // update the tracked item
//	})
//	mon.Start()
//	defer mon.Stop()
package progress
