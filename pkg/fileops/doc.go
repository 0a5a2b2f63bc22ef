// Package fileops provides path-safety primitives used to resolve untrusted
// path-like arguments against a set of allowed roots.
//
// The core entry point is CanonicalizeWithinRoots, which resolves symlinks,
// computes an absolute canonical form, and rejects any path that escapes the
// given roots — including escapes hidden behind a symlinked parent directory.
// IsReservedDirectory guards a fixed set of platform system directories that
// must never be treated as allowed regardless of policy configuration;
// internal/validator calls it on every canonicalized path ahead of the
// configured glob decision, so a reserved directory is denied even when an
// allowed glob would otherwise match it.
package fileops
