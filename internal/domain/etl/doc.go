// Package etl contains the retail synchronization bounded context.
// It defines the canonical entities loaded from the ProHandel API, the run
// history record and the error taxonomy shared by every ETL stage.
//
// Key concepts:
//   - Branch, Article, Customer, Sale: canonical records keyed by their business number
//   - SyncRun: audit row written once per load operation
//   - RawRecord: a loosely typed record as decoded from the remote API
//
// Design Pattern: Ports & Adapters
//   - Entities and errors are defined here in the domain layer
//   - The remote client and persistence live in the infrastructure layer
package etl
