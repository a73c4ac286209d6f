package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// decodeJSON tolerates double-encoded payloads (a JSON string holding a
// JSON object), which HubSpot CRM cards sometimes send.
func decodeJSON(body []byte, out any) error {
	if len(body) == 0 {
		return io.EOF
	}
	var once any
	if err := json.Unmarshal(body, &once); err != nil {
		return err
	}
	if s, ok := once.(string); ok {
		return json.Unmarshal([]byte(s), out)
	}
	return json.Unmarshal(body, out)
}
