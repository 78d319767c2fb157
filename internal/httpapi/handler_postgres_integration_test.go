package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"mfmc/core-go/internal/auth"
	"mfmc/core-go/internal/db/dbtest"
	"mfmc/core-go/internal/store"
)

func TestHandler_Postgres_PollDownloadLog(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	pg := store.NewPostgres(pool)

	hasher := auth.NewHasher(bcrypt.MinCost)
	gate, err := auth.NewGate(pg, hasher)
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	router := NewHandler(zerolog.New(io.Discard), pg, gate, nil).Router()

	rrReady := httptest.NewRecorder()
	router.ServeHTTP(rrReady, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rrReady.Code != http.StatusOK {
		t.Fatalf("readyz expected 200, got %d: %s", rrReady.Code, rrReady.Body.String())
	}

	hash, err := hasher.Hash([]byte("secret"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	alpha, err := pg.CreateDevice(ctx, "alpha", hash, "Alpha")
	if err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	if _, err := pg.CreateDevice(ctx, "bravo", hash, "Bravo"); err != nil {
		t.Fatalf("create bravo: %v", err)
	}
	res, err := pg.PutAudio(ctx, "chime.wav", "", testWAV)
	if err != nil {
		t.Fatalf("put audio: %v", err)
	}
	if _, err := pg.AppendCommand(ctx, store.NewCommand{Action: store.ActionStop, Scope: store.TargetScope(alpha.ID)}); err != nil {
		t.Fatalf("append stop: %v", err)
	}
	play, err := pg.AppendCommand(ctx, store.NewCommand{Action: store.ActionPlay, ResourceID: &res.ID, Scope: store.TargetScope(alpha.ID)})
	if err != nil {
		t.Fatalf("append play: %v", err)
	}

	get := func(path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", basic(user, "secret"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/api/status", "alpha")
	if rr.Code != http.StatusOK {
		t.Fatalf("status expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var status struct {
		HasCommand bool   `json:"has_command"`
		CommandID  int64  `json:"command_id"`
		Action     string `json:"action"`
		Filename   string `json:"filename"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.HasCommand || status.CommandID != play.ID || status.Action != "PLAY" || status.Filename != "chime.wav" {
		t.Fatalf("unexpected status %+v", status)
	}

	fileURL := "/api/file?command_id=" + strconv.FormatInt(play.ID, 10)
	if rr := get(fileURL, "alpha"); rr.Code != http.StatusOK || rr.Body.String() != string(testWAV) {
		t.Fatalf("file expected 200 with payload, got %d", rr.Code)
	}
	if rr := get(fileURL, "bravo"); rr.Code != http.StatusForbidden {
		t.Fatalf("file for non-target expected 403, got %d", rr.Code)
	}

	rr = get("/api/status?last_id="+strconv.FormatInt(play.ID, 10), "alpha")
	if body := decodeBody(t, rr); body["has_command"] != false {
		t.Fatalf("expected caught-up status, got %v", body)
	}

	form := url.Values{"level": {"WARNING"}, "message": {"disk nearly full"}}
	req := httptest.NewRequest(http.MethodPost, "/api/client-log", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", basic("alpha", "secret"))
	rrLog := httptest.NewRecorder()
	router.ServeHTTP(rrLog, req)
	if rrLog.Code != http.StatusOK {
		t.Fatalf("client-log expected 200, got %d: %s", rrLog.Code, rrLog.Body.String())
	}

	recs, err := pg.RecentTelemetry(ctx, alpha.ID, 5)
	if err != nil {
		t.Fatalf("recent telemetry: %v", err)
	}
	if len(recs) != 1 || recs[0].Level != "WARNING" || recs[0].Message != "disk nearly full" {
		t.Fatalf("unexpected telemetry %+v", recs)
	}

	dev, err := pg.GetDevice(ctx, alpha.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if dev.LastSeenAt == nil {
		t.Fatalf("expected last_seen_at to be recorded")
	}
}
