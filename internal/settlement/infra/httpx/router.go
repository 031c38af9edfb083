package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/marketplace-settlement/internal/settlement/infra/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachRequestMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/quotes", handler.Quote)
	r.Post("/settlements", handler.Settle)
	r.Get("/orders/{id}", handler.GetOrderByID)
	r.Post("/orders/{id}/installments/{index}/verify", handler.VerifyInstallment)
	return r
}
