// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"spotcheck/internal/domain"
)

// maxBody caps request bodies accepted by the stub.
const maxBody = 1 << 20

type Handlers struct {
	B *Backend
	v *validator.Validate
}

func NewHandlers(b *Backend) *Handlers {
	return &Handlers{B: b, v: validator.New(validator.WithRequiredStructEnabled())}
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Post("/login", h.login)
	s.mux.Post("/users", h.register)
	s.mux.Get("/places", h.listPlaces)
	s.mux.Post("/places", h.reconcilePlace)
	s.mux.Get("/places/{id}", h.getPlace)
	s.mux.Group(func(r chi.Router) {
		r.Use(RequireBearer(h.B))
		r.Post("/places/{id}/add_review", h.addReview)
		r.Get("/favorites", h.listFavorites)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "request body must be a JSON object")
		return false
	}
	return true
}

// validationDetail renders validator errors as "field tag" pairs.
func validationDetail(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err.Error()
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		parts = append(parts, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var c domain.Credentials
	if !decodeBody(w, r, &c) {
		return
	}
	u, tok, ok := h.B.Login(c.Email, c.Password)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "Invalid email or password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "user": u})
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var p domain.Profile
	if !decodeBody(w, r, &p) {
		return
	}
	if err := h.v.Struct(p); err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid profile", validationDetail(err))
		return
	}
	u, tok, err := h.B.Register(p)
	if errors.Is(err, ErrEmailTaken) {
		writeProblem(w, http.StatusConflict, "Conflict", "Email is already registered")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	if tok != "" {
		writeJSON(w, http.StatusCreated, map[string]any{"token": tok, "user": u})
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *Handlers) listPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	for _, k := range []string{"lat", "lng"} {
		if v := q.Get(k); v != "" {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				writeProblem(w, http.StatusBadRequest, "Invalid "+k, k+" must be a number")
				return
			}
		}
	}
	writeCacheable(w, r, h.B.Places())
}

func (h *Handlers) reconcilePlace(w http.ResponseWriter, r *http.Request) {
	var ext domain.ExternalPlace
	if !decodeBody(w, r, &ext) {
		return
	}
	if strings.TrimSpace(ext.ProviderID) == "" {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid place", "provider_id is required")
		return
	}
	p, created := h.B.Reconcile(ext)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		log.Info().Int64("id", p.ID).Str("provider_id", p.ProviderID).Msg("place created")
	}
	writeJSON(w, status, p)
}

func (h *Handlers) getPlace(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
		return
	}
	d, ok := h.B.Detail(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
		return
	}
	writeCacheable(w, r, d)
}

func (h *Handlers) addReview(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
		return
	}
	var d domain.ReviewDraft
	if !decodeBody(w, r, &d) {
		return
	}
	d = d.Normalized()
	if err := h.v.Struct(d); err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Invalid review", validationDetail(err))
		return
	}
	rv, err := h.B.AddReview(id, userFrom(r.Context()), d)
	if errors.Is(err, ErrPlaceMissing) {
		writeProblem(w, http.StatusNotFound, "Not Found", "place not found")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (h *Handlers) listFavorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.B.Favorites(userFrom(r.Context()).ID))
}
