package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).With("component", "test")

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "GET", Path: "/x"})
	ctx = WithAuthData(ctx, &AuthData{Strategy: "jwt", VerifyOnly: true})
	if ad, ok := AuthDataFrom(ctx); ok {
		ad.Subject = "abc123"
	}
	log.InfoContext(ctx, "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["component"] != "test" {
		t.Fatalf("WithAttrs lost the decorator: %v", entry)
	}
	req, _ := entry["req"].(map[string]any)
	if req["id"] != "r1" || req["path"] != "/x" {
		t.Fatalf("req = %v", entry["req"])
	}
	a, _ := entry["auth"].(map[string]any)
	if a["subject"] != "abc123" || a["strategy"] != "jwt" || a["verify_only"] != true {
		t.Fatalf("auth = %v", entry["auth"])
	}
}

func TestHandlerWithoutContext(t *testing.T) {
	var buf bytes.Buffer
	slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)}).Info("plain")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := entry["req"]; ok {
		t.Fatalf("unexpected req group: %v", entry)
	}
	if _, ok := AuthDataFrom(context.Background()); ok {
		t.Fatalf("empty context should carry no auth data")
	}
}
