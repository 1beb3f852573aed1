package handlers

import (
	"encoding/json"
	"net/http"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Health reports liveness. The dev gateway has no dependencies that can
// degrade independently, so live and ready are the same check.
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// VersionHandler reports the build version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": Version})
}
