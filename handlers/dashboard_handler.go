package handlers

import (
	"net/http"

	"github.com/upb/academy-hub/guard"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/utils"
)

// HandleDashboardShell serves the shell of the caller's dashboard.
// The route must be wrapped by guard.Require.
func HandleDashboardShell(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		http.Redirect(w, r, guard.LoginPath, http.StatusFound)
		return
	}

	shell, ok := guard.ShellFor(principal.Role)
	if !ok {
		http.Redirect(w, r, guard.LoginPath, http.StatusFound)
		return
	}
	_ = utils.WriteOK(w, shell)
}
