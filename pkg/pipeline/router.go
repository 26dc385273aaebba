package pipeline

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the trigger and watermark API.
func Router(d *Dispatcher) chi.Router {
	r := chi.NewRouter()

	trigger := TriggerHandler(d)
	r.Get("/trigger", trigger)
	r.Post("/trigger", trigger)

	r.Get("/watermarks", WatermarksHandler(d.watermarks))
	r.Get("/watermarks/{table}", WatermarkHistoryHandler(d.watermarks))

	return r
}
