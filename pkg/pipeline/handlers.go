package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Trigger response texts. Schedulers pattern-match on these; change
// them only with the upstream automation.
const (
	missingKeyMessage = "This HTTP triggered function executed successfully. " +
		"Pass a process_key in the query string or in the request body."
	errorMessageFormat = "This HTTP triggered function executed successfully. " +
		"And the error occured  - %s."
)

// TriggerHandler handles POST /api/pipeline/v1/trigger and the legacy
// GET form. The process key and parameters come from the query string;
// when the query carries no key, a JSON object body supplies both.
// Success returns 200 with {"value": <generation-or-null>}; a missing
// key or stage error returns 400 plain text.
func TriggerHandler(d *Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]string)
		for name, values := range r.URL.Query() {
			if len(values) > 0 {
				params[name] = values[0]
			}
		}

		key := strings.TrimSpace(params["process_key"])
		if key == "" && r.Body != nil {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				params = make(map[string]string, len(body))
				for name, value := range body {
					params[name] = fmt.Sprint(value)
				}
				key = strings.TrimSpace(params["process_key"])
			}
		}

		if key == "" {
			writeText(w, http.StatusBadRequest, missingKeyMessage)
			return
		}

		result, err := d.Dispatch(r.Context(), ProcessKey(key), params)
		if err != nil {
			writeText(w, http.StatusBadRequest, fmt.Sprintf(errorMessageFormat, err))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"value": result.Value})
	}
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
