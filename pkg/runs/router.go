package runs

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the run status API.
func Router(store *RunStore) chi.Router {
	r := chi.NewRouter()

	r.Get("/", ListRunsHandler(store))
	r.Get("/{runId}", GetRunHandler(store))
	r.Get("/stage/{stage}/generation/{generation}", GetRunByGenerationHandler(store))

	return r
}
