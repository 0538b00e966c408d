package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mysafehouse/access-api/internal/http/response"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
	"github.com/mysafehouse/access-api/internal/service"
	"github.com/mysafehouse/access-api/pkg/config"
)

type Handlers struct {
	engine     service.RequestEngine
	registry   service.CodeRegistry
	policy     service.DomainPolicy
	accessLogs postgres.AccessLogRepo
	properties postgres.PropertyRepo
	config     *config.Config
	validate   *validator.Validate
}

func New(
	engine service.RequestEngine,
	registry service.CodeRegistry,
	policy service.DomainPolicy,
	accessLogs postgres.AccessLogRepo,
	properties postgres.PropertyRepo,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		engine:     engine,
		registry:   registry,
		policy:     policy,
		accessLogs: accessLogs,
		properties: properties,
		config:     cfg,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// decode parses the JSON body into v and runs struct validation. The
// returned bool reports success; on failure the error response has already
// been written.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		response.BadRequest(w, "Invalid request: "+validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "validation failed"
	}
	fe := verrs[0]
	return fe.Field() + " failed on '" + fe.Tag() + "'"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	return id, err == nil && id > 0
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 20, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
