// Package gate provides the role authentication and share-link grant core
// for a content platform: signed role sessions, revocation, step-up proofs,
// a timing-safe credential verify flow, and per-resource access grants.
//
// Roles and sessions:
//   - A handful of shared-secret roles (admin, staff, upload, cron) map to
//     compact HS256 bearer sessions. Role satisfaction is an explicit,
//     auditable order (admin satisfies staff and upload) rather than string
//     matching. Sessions carry a per-role token version and a unique jti so
//     they can be mass-invalidated in O(1) or revoked individually.
//   - CredentialVerifier is the only path that mints sessions and step-up
//     proofs. It rate limits before doing any comparison work and compares
//     secrets over canonical-length digests so neither secret length nor a
//     shared prefix leaks through timing.
//
// Storage:
//   - All durable state (role version counters, revoked-jti markers, the
//     session index, share-link records, vote codes) lives behind the KV
//     contract. Handlers are stateless; the store is the only suspension
//     point. SetNX is the single compare-and-swap the core relies on, used
//     when minting tokens and codes so concurrent mints can never collide.
//
// Share links:
//   - The sharelink subpackage manages tokenized, optionally PIN-protected,
//     time-limited grants per content slug, and issues access tokens bound
//     to a link's fingerprint. Any security-relevant mutation changes the
//     fingerprint and invalidates outstanding bound tokens without a
//     blacklist write.
//
// Audit sinks:
//   - AuditSink is a light-weight emitter describing verify attempts,
//     revocations, and step-up grants. Sinks run best-effort (errors are
//     logged) so authorization latency never depends on audit delivery.
package gate
