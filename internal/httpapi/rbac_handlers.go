package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"tenauth.dev/internal/audit"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	UserID string `json:"user_id"`
}

// Role management always operates in the caller's own tenant, taken from
// the verified claims. There is no cross-tenant administration surface.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleCreateRole(w, r)
	case http.MethodGet:
		a.handleListRoles(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	claims, ok := requirePermission(w, r, "role.create")
	if !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.svc.CreateRole(r.Context(), claims.TenantID, req.Name, req.Description)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.create", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	claims, ok := requirePermission(w, r, "role.view")
	if !ok {
		return
	}
	roles, err := a.svc.ListRoles(r.Context(), claims.TenantID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID := parts[0]
	switch parts[1] {
	case "permissions":
		a.handleRolePermissions(w, r, roleID)
	case "assign":
		a.handleRoleAssign(w, r, roleID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	claims, ok := requirePermission(w, r, "role.update")
	if !ok {
		return
	}
	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.SetRolePermissions(r.Context(), claims.TenantID, roleID, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.permissions.update", map[string]any{
		"role_id": roleID,
		"count":   len(req.Permissions),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRoleAssign(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := requirePermission(w, r, "role.assign")
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := a.svc.AssignRole(r.Context(), claims.TenantID, req.UserID, roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.assign", map[string]any{
		"role_id": roleID,
		"user_id": req.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := requirePermission(w, r, "role.view")
	if !ok {
		return
	}
	perms, err := a.svc.ListPermissions(r.Context(), claims.TenantID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}
