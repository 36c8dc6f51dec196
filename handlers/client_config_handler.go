package handlers

import (
	"net/http"

	"github.com/upb/academy-hub/config"
	"github.com/upb/academy-hub/utils"
)

// HandleClientConfig serves the public configuration browsers need to
// initialize the identity SDK. Nothing here is secret.
func HandleClientConfig(cfg config.ClientConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=300")
		_ = utils.WriteOK(w, cfg)
	}
}
