package httpapi

import (
	"fmt"
	"net/http"

	"tenauth.dev/internal/audit"
	"tenauth.dev/internal/auth"
)

type registerTenantRequest struct {
	Domain        string `json:"domain"`
	Name          string `json:"name"`
	ContactEmail  string `json:"contact_email"`
	ContactPhone  string `json:"contact_phone"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	tn, admin, err := a.svc.RegisterTenant(r.Context(), auth.RegisterTenantInput{
		Domain:        req.Domain,
		Name:          req.Name,
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
		AdminEmail:    req.AdminEmail,
		AdminPassword: req.AdminPassword,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	// New domain means a new allowed origin; rebuild out of band.
	if a.origins != nil {
		a.origins.Invalidate()
	}
	_ = audit.LogEvent(r.Context(), "tenant.register", map[string]any{
		"tenant_id": tn.ID,
		"domain":    tn.Domain,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", tn.ID))
	writeJSON(w, http.StatusCreated, map[string]any{
		"tenant": tn,
		"admin":  admin.Summary(),
	})
}
