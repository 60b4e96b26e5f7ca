package httpinterface

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/tdex-network/unitswap/internal/interfaces"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type reservationsResponse struct {
	Reservations []swap.ReservationInfo `json:"reservations"`
}

type outputsResponse struct {
	Outputs []swap.OutputInfo `json:"outputs"`
}

type settlementsResponse struct {
	Settlements []swap.SettlementInfo `json:"settlements"`
}

type handler struct {
	swapSvc interfaces.SwapService
}

// NewHandler returns the HTTP/JSON interface of the daemon. events serves the
// websocket event stream, it's optional.
func NewHandler(
	swapSvc interfaces.SwapService, events http.Handler, allowedOrigins []string,
) http.Handler {
	h := &handler{swapSvc}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/swap/build", post(h.buildSwap))
	mux.HandleFunc("/v1/swap/settle", post(h.settleSwap))
	mux.HandleFunc("/v1/reservations", get(h.listReservations))
	mux.HandleFunc("/v1/outputs", get(h.listOutputs))
	mux.HandleFunc("/v1/settlements", get(h.listSettlements))
	mux.HandleFunc("/v1/reconcile", post(h.reconcile))
	if events != nil {
		mux.Handle("/v1/events", events)
	}
	mux.Handle("/metrics", promhttp.Handler())

	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(mux)
}

func (h *handler) buildSwap(w http.ResponseWriter, r *http.Request) {
	var req swap.BuildSwapRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, swap.BuildSwapResponse{Error: err.Error()})
		return
	}
	resp, err := h.swapSvc.BuildSwap(r.Context(), req)
	if err != nil {
		writeJSON(w, interfaces.HTTPStatus(err), swap.BuildSwapResponse{
			Error: interfaces.ErrorMessage(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) settleSwap(w http.ResponseWriter, r *http.Request) {
	var req swap.SettleSwapRequest
	if err := decode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, swap.SettleSwapResponse{Error: err.Error()})
		return
	}
	resp, err := h.swapSvc.SettleSwap(r.Context(), req)
	if err != nil {
		writeJSON(w, interfaces.HTTPStatus(err), swap.SettleSwapResponse{
			Error: interfaces.ErrorMessage(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listReservations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, reservationsResponse{h.swapSvc.ListReservations(r.Context())})
}

func (h *handler) listOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := h.swapSvc.ListSpendableOutputs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outputsResponse{outputs})
}

func (h *handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := h.swapSvc.ListSettlements(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementsResponse{settlements})
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.swapSvc.Reconcile(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func post(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodPost, fn)
}

func get(fn http.HandlerFunc) http.HandlerFunc {
	return method(http.MethodGet, fn)
}

func method(m string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{"method not allowed"})
			return
		}
		fn(w, r)
	}
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, interfaces.HTTPStatus(err), errorResponse{interfaces.ErrorMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to write response")
	}
}
