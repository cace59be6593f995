package results

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

type Reader interface {
	Get(ctx context.Context, code string) (*Result, error)
	Recent(ctx context.Context, limit int) ([]*Result, error)
}

// Routes registers GET /results and GET /results/{code}.
func Routes(mux *http.ServeMux, r Reader) {
	mux.HandleFunc("GET /results/{code}", func(w http.ResponseWriter, req *http.Request) {
		res, err := r.Get(req.Context(), req.PathValue("code"))
		if errors.Is(err, ErrResultNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			log.Error().Err(err).Str("code", req.PathValue("code")).Msg("failed to read result")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})
	mux.HandleFunc("GET /results", func(w http.ResponseWriter, req *http.Request) {
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		res, err := r.Recent(req.Context(), limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to list results")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, res)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
