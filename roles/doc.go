// Package roles holds the role policy registry and the credential
// validation rules driven by it.
//
// Every role-specific behavior in the engine — identity format, email
// domain rules, password strength, MFA enforcement, privilege flags —
// is expressed as a field on [Policy] and resolved through [Registry].
// No caller may branch on a role name directly; adding a role is a
// registry change, never a state-machine change.
package roles
