package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"askia-quiz-service/internal/app"
)

// NewRouter wires health, metrics, the play socket and the REST API.
func NewRouter(service *app.QuizService, gatherer prometheus.Gatherer, log logrus.FieldLogger) *mux.Router {
	api := &apiHandler{service: service, log: log}
	ws := NewWSHandler(service, log)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ws", ws.ServeWS)

	v := r.PathPrefix("/api").Subrouter()
	v.HandleFunc("/players/{id}", api.register).Methods(http.MethodPost)
	v.HandleFunc("/players/{id}/progress", api.progress).Methods(http.MethodGet)
	v.HandleFunc("/players/{id}/guest-claim", api.claimGuest).Methods(http.MethodPost)
	v.HandleFunc("/league/{week}/standings", api.standings).Methods(http.MethodGet)
	v.HandleFunc("/league/{week}/players", api.topScores).Methods(http.MethodGet)
	return r
}

type apiHandler struct {
	service *app.QuizService
	log     logrus.FieldLogger
}

type guestClaim struct {
	XP   int `json:"xp"`
	Orbs int `json:"orbs"`
}

func (h *apiHandler) register(w http.ResponseWriter, r *http.Request) {
	var profile app.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		http.Error(w, "invalid profile body", http.StatusBadRequest)
		return
	}
	p, err := h.service.Register(r.Context(), mux.Vars(r)["id"], profile)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *apiHandler) progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Progress(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *apiHandler) claimGuest(w http.ResponseWriter, r *http.Request) {
	var claim guestClaim
	if err := json.NewDecoder(r.Body).Decode(&claim); err != nil {
		http.Error(w, "invalid claim body", http.StatusBadRequest)
		return
	}
	p, err := h.service.ClaimGuestRewards(r.Context(), mux.Vars(r)["id"], claim.XP, claim.Orbs)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *apiHandler) standings(w http.ResponseWriter, r *http.Request) {
	ranks, err := h.service.Standings(r.Context(), mux.Vars(r)["week"], r.URL.Query().Get("city"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranks)
}

func (h *apiHandler) topScores(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	scores, err := h.service.TopScores(r.Context(), mux.Vars(r)["week"], r.URL.Query().Get("school"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *apiHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).Error("api request failed")
	}
	writeJSON(w, status, errorPayload{Message: err.Error(), Code: errorCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
