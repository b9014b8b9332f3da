/*
Package session serializes access to run snapshots.

It provides reference-counted per-snapshot locks so concurrent Resume and
Fork calls on the same snapshot cannot interleave their read-modify-write
cycles, integrating optional distributed locking for multi-replica
deployments on top of any snapshot store adapter.
*/
package session
