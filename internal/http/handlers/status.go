package handlers

import "net/http"

// TestAPIs reports which line art candidates this deployment can actually
// reach. The local filter is always present; providers show up only when
// their credentials are configured.
func (a *App) TestAPIs(w http.ResponseWriter, r *http.Request) {
	providers := map[string]bool{}
	for _, p := range a.Race.Producers {
		available := true
		if c, ok := p.(interface{ HasCredentials() bool }); ok {
			available = c.HasCredentials()
		}
		providers[p.Name()] = available
	}

	a.json(w, http.StatusOK, map[string]any{
		"providers":  providers,
		"fallback":   a.Race.Fallback,
		"deadlineMs": a.Cfg.PreviewDeadline.Milliseconds(),
	})
}
