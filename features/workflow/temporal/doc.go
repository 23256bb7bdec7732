// Package temporal is the Workflow Engine's durable backend: it hosts the
// same Graph/StepDefinition model pkg/workflow's in-process Engine
// interprets locally, but runs the step loop as a Temporal workflow so
// Temporal's replay-based event history durably reconstructs run state
// instead of a polled ContextRepository. Step executors, being arbitrary
// in-process closures rather than serializable values, run as Temporal
// activities dispatched by a process-local name→executor registry, mirroring
// the teacher's engine/temporal split from its own in-memory engine.
package temporal
