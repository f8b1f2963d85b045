// Package dark is a feature-flag evaluation and data-synchronization
// engine: Value/User model types, an eleven-operator clause matcher, a
// deterministic consistent-hashing bucketer, a prerequisite/target/rule/
// fallthrough flag evaluation state machine, a versioned flag Store, and
// an analytics EventPipeline.
//
// The datasource subpackage provides the two ways a Store gets populated
// from a control plane: polling and streaming. The storeredis subpackage
// provides a Redis-backed Store for deployments that share flag state
// across multiple processes.
package dark
