// Package defauth is the credential and MFA policy engine for the defence
// personnel portal. It drives registration, login, failed-attempt lockout,
// OTP challenges, email verification, and session issuance for every portal
// role, with all role-specific behavior resolved through the roles package.
//
// Callers construct an Engine through the Builder, supplying a Redis client
// for shared lockout/challenge state, an AccountProvider backed by their
// account store, and a notify.Sender for code and token delivery.
package defauth
