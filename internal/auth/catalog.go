package auth

// CatalogVersion identifies the permission catalog below. Bump it when the
// list changes so operators can tell which tenants were seeded from which
// revision.
const CatalogVersion = 3

// Catalog is the static list of permission names seeded for every tenant at
// registration time. Each tenant owns its own rows for these names.
var Catalog = []string{
	"tenant.view",
	"tenant.update",
	"user.create",
	"user.view",
	"user.update",
	"role.create",
	"role.view",
	"role.update",
	"role.assign",
	"member.create",
	"member.view",
	"member.update",
	"member.delete",
	"policy.create",
	"policy.view",
	"policy.update",
	"policy.delete",
	"claim.create",
	"claim.view",
	"claim.update",
	"claim.delete",
	"asset.create",
	"asset.view",
	"asset.update",
	"asset.delete",
	"document.create",
	"document.view",
	"document.delete",
}

// AdminRoleName is the role created at tenant registration holding the full
// catalog.
const AdminRoleName = "admin"
