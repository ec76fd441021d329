package connectivity

import "net/http"

// HealthHandler answers 200 while the link is ready and 503 with the state
// and last link error otherwise.
func HealthHandler(s *Supervisor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		msg := s.State().String()
		if err := s.LastError(); err != nil {
			msg += ": " + err.Error()
		}
		http.Error(w, msg, http.StatusServiceUnavailable)
	})
}
