/*
Package ports defines the driven ports (interfaces) for the Psylens engine.

These interfaces decouple the core logic from external implementations,
allowing the engine to work with various collaborators, plan sources, and
snapshot backends.

# Key Interfaces

  - Performer: executes one external collaboration (model call, script, operator input, file read).
  - PlanLoader: loads plan documents (e.g. from files or a Loam repository).
  - SnapshotStore: persists and restores run checkpoints.
  - DistributedLocker: provides distributed locking for concurrent resume/fork.
  - RunController: the engine surface that serving adapters (HTTP, MCP) drive.
*/
package ports
