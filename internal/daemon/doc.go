// Package daemon hosts the long-running hopper process. It ties the work item
// store, the feature flag gate, the stage worker scheduler, and the control
// API into a single lifecycle with flock-based locking to prevent multiple
// daemon instances from sharing one database.
package daemon
