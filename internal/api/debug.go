package api

import (
	"net/http"
	"time"

	"github.com/lmsedutechkpr/Slate-sub000/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"build":  buildinfo.Info(),
		"time":   time.Now().UTC().Format(time.RFC3339),
		"config": s.Config.Redacted(),
		"hub":    s.Hub.Stats(),
		"feed": map[string]int{
			"size":     s.Feed.Len(),
			"capacity": s.Feed.Capacity(),
		},
	})
}
