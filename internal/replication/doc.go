// Package replication holds the per-peer side of pose replication: the
// Observer that turns the local actor's pose-stack into Replication
// messages and the Applier that installs remote actors' poses.
//
// Everything in this package runs on the peer's single tick goroutine and
// holds no locks.
package replication
