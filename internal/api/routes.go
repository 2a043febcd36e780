package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter собирает chi-роутер со всеми маршрутами API.
func (h *Handler) NewRouter() *chi.Mux {
	r := chi.NewRouter()

	// Logging снаружи Recovery: запрос с паникой тоже попадает
	// в access-лог со статусом 500
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logging(h.logger))
	r.Use(Recovery(h.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Pipelines
		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", h.ListPipelines)
			r.Post("/", h.CreatePipeline)
			r.Post("/validate", h.ValidatePipeline)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetPipeline)
				r.Put("/", h.UpdatePipeline)
				r.Delete("/", h.DeletePipeline)

				r.Post("/runs", h.CreateRun)
				r.Post("/schedules", h.CreateSchedule)
			})
		})

		// Runs
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRun)
				r.Post("/cancel", h.CancelRun)
				r.Get("/cells", h.ListRunCells)
			})
		})

		// Cells
		r.Route("/cells", func(r chi.Router) {
			r.Get("/{id}", h.GetCell)
		})

		// Schedules
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSchedule)
				r.Put("/", h.UpdateSchedule)
				r.Delete("/", h.DeleteSchedule)
				r.Put("/enabled", h.SetScheduleEnabled)
			})
		})
	})

	return r
}
