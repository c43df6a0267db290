// Package services defines shared utilities consumed by every worker
// component.
//
// Key responsibilities:
//   - Context helpers that stamp the run ID, worker phase, and playlist item
//     index for logging.
//   - Structured error markers plus the Wrap helper that sort failures into
//     the skipped / item / worker tiers the orchestrator propagates on.
//
// Lower tiers are absorbed as close to their origin as possible; only
// worker-fatal errors unwind out of the orchestrator.
package services
