// Package policy is the single authorization decision point for the service.
// Every mutating operation asks these functions; role checks never live in
// handlers or scattered call sites.
package policy

import "slices"

// Role claims issued by the external identity provider.
const (
	RoleCitizen = "citizen"
	RoleOfficer = "officer"
	RoleVoucher = "voucher"
	RoleAdmin   = "admin"
)

// SystemReviewer is the synthetic reviewer identity used when the workflow
// engine itself approves an application on confidence grounds.
const SystemReviewer = "system"

// CanReview reports whether the principal may transition applications
// (start review, approve, reject).
func CanReview(roles []string) bool {
	return slices.Contains(roles, RoleOfficer) || slices.Contains(roles, RoleAdmin)
}

// CanAdminister reports whether the principal may perform administrative
// operations (purge applications, suspend/revoke credentials).
func CanAdminister(roles []string) bool {
	return slices.Contains(roles, RoleAdmin)
}

// CanReadApplication reports whether the principal may read an application
// they do not own.
func CanReadApplication(roles []string) bool {
	return CanReview(roles)
}
