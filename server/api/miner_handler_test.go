package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nuchain-network/hardware-miner/x/rig"
	"github.com/nuchain-network/hardware-miner/x/stats"
	"github.com/nuchain-network/hardware-miner/x/submitter"
)

type stubMiner struct {
	ready   bool
	stats   stats.Stats
	records map[rig.ProvenAt]submitter.SubmissionRecord
}

func (s *stubMiner) Ready() bool        { return s.ready }
func (s *stubMiner) Stats() stats.Stats { return s.stats }
func (s *stubMiner) SubmissionRecord(at rig.ProvenAt) (submitter.SubmissionRecord, bool) {
	rec, ok := s.records[at]
	return rec, ok
}

func newTestRouter(svc MinerService) *mux.Router {
	r := mux.NewRouter()
	NewMinerHandler(svc, zerolog.Nop()).RegisterMux(r)
	return r
}

func doGet(t *testing.T, router *mux.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	rec := doGet(t, newTestRouter(&stubMiner{}), "/health")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubMiner{ready: false}
	router := newTestRouter(svc)

	rec := doGet(t, router, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.ready = true
	rec = doGet(t, router, "/ready")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	t.Parallel()

	svc := &stubMiner{stats: stats.Stats{ProofsGenerated: 12, ActiveRigCount: 3}}
	rec := doGet(t, newTestRouter(svc), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var got stats.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, uint64(12), got.ProofsGenerated)
	require.Equal(t, 3, got.ActiveRigCount)
}

func TestSubmissionLookup(t *testing.T) {
	t.Parallel()

	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	at := rig.ProvenAt{
		Rig:    rig.Key{SourceChain: "ethereum", Owner: owner, RigID: 7},
		Height: 100,
	}
	svc := &stubMiner{records: map[rig.ProvenAt]submitter.SubmissionRecord{
		at: {State: submitter.StateConfirmed, Attempts: 2, TxHash: "ABCDEF"},
	}}
	router := newTestRouter(svc)

	rec := doGet(t, router, "/submissions/ethereum/"+owner.Hex()+"/7/100")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "confirmed", body["state"])
	require.Equal(t, "ABCDEF", body["tx_hash"])

	rec = doGet(t, router, "/submissions/ethereum/"+owner.Hex()+"/7/101")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doGet(t, router, "/submissions/ethereum/not-an-address/7/100")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doGet(t, router, "/submissions/ethereum/"+owner.Hex()+"/abc/100")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
