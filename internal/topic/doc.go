// Package topic defines the data model shared by every part of the
// dashboard: jobs (called topics by the upscaling pipeline), the stream
// events that update them, the snapshot records that seed them, and the
// error taxonomy used across the reconciliation engine.
//
// This package contains types and pure parsing functions only. All other
// internal packages import topic; topic imports nothing internal.
//
// Key constraints:
//   - A job is identified by its name. Names are normalized with
//     NormalizeName (trimmed, NFC) before they are used as keys.
//   - Progress is an int in [0, 100]. Values above 100 are clamped,
//     negative values are rejected.
//   - Wire JSON tags follow the upstream server (camelCase for submit and
//     snapshot records, snake_case topic_id on stream events).
package topic
