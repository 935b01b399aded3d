package opera_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pmsbridge/internal/adapters/opera"
	"pmsbridge/internal/domain"
)

func newClient(t *testing.T, base string) *opera.Connector {
	t.Helper()
	c, err := opera.New(opera.Config{
		BaseURL:       base,
		PropertyID:    "h-100",
		ClientID:      "cid",
		ClientSecret:  "shh",
		WebhookSecret: "whsec",
		RPS:           100, // high for tests
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func tokenHandler(tokenHits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenHits, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	}
}

func range2() domain.DateRange {
	return domain.DateRange{
		Arrival:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Departure: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestGetAvailability_MapsVendorShape(t *testing.T) {
	var tokenHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/tokens", tokenHandler(&tokenHits))
	mux.HandleFunc("/par/v1/hotels/h-100/availability", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			w.WriteHeader(401)
			return
		}
		if r.URL.Query().Get("from") != "2025-03-10" {
			t.Errorf("unexpected from: %s", r.URL.Query().Get("from"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"roomTypes": []map[string]any{{
				"code": "DBL",
				"days": []map[string]any{
					{"date": "2025-03-10", "status": "O", "available": 4},
					{"date": "2025-03-11", "status": "C", "available": 0},
				},
			}},
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts.URL)
	grid, err := c.GetAvailability(context.Background(), domain.AvailabilityQuery{PropertyID: "h-100", Range: range2()})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(grid.Rows) != 1 || grid.Rows[0].RoomType != "DBL" {
		t.Fatalf("unexpected grid: %+v", grid)
	}
	days := grid.Rows[0].Days
	if len(days) != 2 || days[0].Status != domain.DayOpen || days[0].Quantity != 4 || days[1].Status != domain.DayClosed {
		t.Fatalf("unexpected days: %+v", days)
	}
	if atomic.LoadInt32(&tokenHits) != 1 {
		t.Fatalf("expected exactly one token fetch, got %d", tokenHits)
	}
}

func TestDo_RefreshesTokenOnceOn401(t *testing.T) {
	var tokenHits, apiHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenHits, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-" + string(rune('0'+n)), "expires_in": 3600})
	})
	mux.HandleFunc("/rsv/v1/hotels/h-100/reservations/r-1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&apiHits, 1) == 1 {
			w.WriteHeader(401) // first token declared stale by vendor
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reservationId": "r-1", "status": "RESERVED", "hotelId": "h-100",
			"arrivalDate": "2025-03-10", "departureDate": "2025-03-12", "adults": 2, "roomType": "DBL",
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := newClient(t, ts.URL)
	res, err := c.GetReservation(context.Background(), "r-1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.ID != "r-1" || res.Status != domain.StatusConfirmed || res.Guests != 2 {
		t.Fatalf("unexpected reservation: %+v", res)
	}
	if atomic.LoadInt32(&tokenHits) != 2 {
		t.Fatalf("expected one refresh (2 fetches), got %d", tokenHits)
	}
	if atomic.LoadInt32(&apiHits) != 2 {
		t.Fatalf("expected exactly one re-attempt after refresh, got %d", apiHits)
	}
}

func TestDo_ErrorTranslation(t *testing.T) {
	var tokenHits int32
	status := http.StatusInternalServerError
	var hdr http.Header
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/tokens", tokenHandler(&tokenHits))
	mux.HandleFunc("/rsv/v1/hotels/h-100/reservations/r-1", func(w http.ResponseWriter, r *http.Request) {
		for k, vs := range hdr {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(status)
		if status == http.StatusUnprocessableEntity {
			_, _ = w.Write([]byte(`{"error":{"code":"INVALID","field":"room_type","message":"unknown room type"}}`))
		}
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	c := newClient(t, ts.URL)

	cases := []struct {
		name   string
		status int
		hdr    http.Header
		kind   domain.ErrKind
		check  func(t *testing.T, e *domain.Error)
	}{
		{"not found", 404, nil, domain.KindNotFound, nil},
		{"validation with field", 422, nil, domain.KindValidation, func(t *testing.T, e *domain.Error) {
			if e.Field != "room_type" {
				t.Fatalf("field = %q", e.Field)
			}
		}},
		{"rate limit with retry-after", 429, http.Header{"Retry-After": {"7"}}, domain.KindRateLimit, func(t *testing.T, e *domain.Error) {
			if e.RetryAfter != 7*time.Second {
				t.Fatalf("retry_after = %v", e.RetryAfter)
			}
		}},
		{"server error is transient pms", 500, nil, domain.KindPMS, func(t *testing.T, e *domain.Error) {
			if !e.Temporary {
				t.Fatalf("5xx must be temporary")
			}
		}},
		{"bad gateway", 502, nil, domain.KindPMS, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, hdr = tc.status, tc.hdr
			_, err := c.GetReservation(context.Background(), "r-1")
			e, ok := domain.AsError(err)
			if !ok || e.Kind != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if tc.check != nil {
				tc.check(t, e)
			}
		})
	}
}

func TestToken_SingleFlightUnderConcurrency(t *testing.T) {
	var tokenHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenHits, 1)
		time.Sleep(50 * time.Millisecond) // widen the race window
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})
	mux.HandleFunc("/rsv/v1/hotels/h-100/reservations/r-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reservationId": "r-1", "status": "RESERVED", "hotelId": "h-100",
			"arrivalDate": "2025-03-10", "departureDate": "2025-03-12", "adults": 2, "roomType": "DBL",
		})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	c := newClient(t, ts.URL)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetReservation(context.Background(), "r-1"); err != nil {
				t.Errorf("concurrent get: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&tokenHits); got != 1 {
		t.Fatalf("expected a single in-flight token fetch, got %d", got)
	}
}

func TestWebhook_VerifyAndNormalize(t *testing.T) {
	c := newClient(t, "http://unused.invalid")
	body := []byte(`{"eventType":"ReservationChanged","reservationId":"r-9","hotelId":"h-100","occurredAt":"2025-03-10T08:00:00Z"}`)

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if err := c.VerifySignature(sig, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := c.VerifySignature("deadbeef", body); !domain.IsKind(err, domain.KindAuthentication) {
		t.Fatalf("bad signature must be an auth error, got %v", err)
	}

	ev, err := c.Normalize(body)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.Type != domain.EventReservationModified || ev.ReservationID != "r-9" || ev.PropertyID != "h-100" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.EventID == "" {
		t.Fatalf("event id must be assigned")
	}

	if _, err := c.Normalize([]byte(`{"eventType":"RoomServiceOrdered","reservationId":"x"}`)); !domain.IsKind(err, domain.KindValidation) {
		t.Fatalf("unknown event type must be a validation error, got %v", err)
	}
}
