// Package api implements the protocol gateway: a stateless JSON-RPC 2.0
// endpoint that decodes task operations (tasks/submit, tasks/get,
// tasks/cancel, tasks/list), delegates each to a single engine call,
// translates domain errors into the external error vocabulary and shapes
// task snapshots into response DTOs.
package api
