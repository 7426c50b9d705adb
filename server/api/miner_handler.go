package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/nuchain-network/hardware-miner/x/rig"
	"github.com/nuchain-network/hardware-miner/x/stats"
	"github.com/nuchain-network/hardware-miner/x/submitter"
)

// MinerService is the slice of the miner the HTTP API needs.
type MinerService interface {
	Ready() bool
	Stats() stats.Stats
	SubmissionRecord(at rig.ProvenAt) (submitter.SubmissionRecord, bool)
}

// MinerHandler serves the miner's operational endpoints.
type MinerHandler struct {
	svc MinerService
	log zerolog.Logger
}

func NewMinerHandler(svc MinerService, log zerolog.Logger) *MinerHandler {
	return &MinerHandler{
		svc: svc,
		log: log.With().Str("component", "miner-api").Logger(),
	}
}

// RegisterMux attaches the miner routes to the router.
func (h *MinerHandler) RegisterMux(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/submissions/{chain}/{owner}/{rig_id}/{height}", h.handleSubmission).
		Methods(http.MethodGet)
}

func (h *MinerHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports 503 until the registry holds at least one active rig.
func (h *MinerHandler) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !h.svc.Ready() {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no_active_rigs"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *MinerHandler) handleStats(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.svc.Stats())
}

// handleSubmission looks up one (rig, height) submission record.
func (h *MinerHandler) handleSubmission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	rigID, err := strconv.ParseUint(vars["rig_id"], 10, 64)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_rig_id", "rig_id must be a decimal integer", nil)
		return
	}
	height, err := strconv.ParseUint(vars["height"], 10, 64)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_height", "height must be a decimal integer", nil)
		return
	}
	if !common.IsHexAddress(vars["owner"]) {
		WriteError(w, r, http.StatusBadRequest, "invalid_owner", "owner must be a hex address", nil)
		return
	}

	at := rig.ProvenAt{
		Rig: rig.Key{
			SourceChain: vars["chain"],
			Owner:       common.HexToAddress(vars["owner"]),
			RigID:       rigID,
		},
		Height: height,
	}

	rec, ok := h.svc.SubmissionRecord(at)
	if !ok {
		WriteError(w, r, http.StatusNotFound, "not_found", "no submission for this rig and height", nil)
		return
	}

	resp := map[string]any{
		"rig":      at.Rig.String(),
		"height":   at.Height,
		"state":    rec.State,
		"attempts": rec.Attempts,
	}
	if rec.TxHash != "" {
		resp["tx_hash"] = rec.TxHash
	}
	if rec.LastErr != nil {
		resp["last_error"] = rec.LastErr.Error()
	}
	WriteJSON(w, http.StatusOK, resp)
}
