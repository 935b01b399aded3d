// Package opera is the reference REST adapter, speaking an OPERA-style
// hospitality API with OAuth2 client credentials. It is the template for
// further vendor adapters: one file of wire shapes, one client, one
// webhook verifier, everything translated into domain terms at the edge.
package opera

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pmsbridge/internal/domain"
)

const VendorName = "opera"

// Config is everything the adapter needs beyond what the factory already
// validated. Secrets arrive resolved; the adapter never sees a ref.
type Config struct {
	BaseURL       string
	PropertyID    string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	RPS           int // client-side rate limit from the capability matrix
	Burst         int
}

type Connector struct {
	base     string
	property string
	hc       *http.Client
	rl       *rate.Limiter
	tokens   *tokenManager
	whSecret string
}

func New(cfg Config) (*Connector, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, domain.AuthErr("client credentials are required", nil)
	}
	if cfg.BaseURL == "" {
		return nil, domain.ValidationErr("base_url", "base url is required")
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RPS
	}
	hc := &http.Client{Timeout: 20 * time.Second}
	return &Connector{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		property: cfg.PropertyID,
		hc:       hc,
		rl:       rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		tokens:   newTokenManager(strings.TrimRight(cfg.BaseURL, "/"), cfg.ClientID, cfg.ClientSecret, hc),
		whSecret: cfg.WebhookSecret,
	}, nil
}

func (c *Connector) Vendor() string { return VendorName }

func (c *Connector) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}

// do performs one authenticated request and translates the outcome into
// the shared error taxonomy. It makes a single network attempt — retry
// policy belongs to the resilience layer — except for exactly one token
// refresh after a 401.
func (c *Connector) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	refreshed := false
	for {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}

		u := c.base + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		var body io.Reader
		if in != nil {
			b, err := json.Marshal(in)
			if err != nil {
				return domain.PMSErr("encode request payload", false, err)
			}
			body = bytes.NewReader(b)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, body)
		if err != nil {
			return domain.PMSErr("build request", false, err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "pmsbridge/1.0")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.PMSErr("vendor unreachable", true, err)
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			if out == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				return nil
			}
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return domain.PMSErr("decode vendor response", false, err)
			}
			return nil

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusUnauthorized:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if !refreshed {
				// one refresh, shared across concurrent callers
				c.tokens.Invalidate()
				refreshed = true
				continue
			}
			return domain.AuthErr("vendor rejected refreshed token", nil)

		case http.StatusForbidden:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return domain.AuthErr("credentials lack access to this property", nil)

		case http.StatusNotFound:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return domain.NotFoundErr("resource does not exist at vendor")

		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			var we wireError
			_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&we)
			resp.Body.Close()
			msg := we.Err.Message
			if msg == "" {
				msg = "vendor rejected request payload"
			}
			return domain.ValidationErr(we.Err.Field, msg)

		case http.StatusTooManyRequests:
			wait := retryAfter(resp)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return domain.RateLimitErr("vendor rate limit exceeded", wait)

		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return domain.PMSErr(fmt.Sprintf("remote %d", resp.StatusCode), true, nil)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return domain.PMSErr(fmt.Sprintf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))), false, nil)
		}
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). Returns 0 if
// absent or invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// ---- contract ----

func (c *Connector) GetAvailability(ctx context.Context, q domain.AvailabilityQuery) (domain.AvailabilityGrid, error) {
	query := url.Values{
		"from": {q.Range.Arrival.Format(dateFmt)},
		"to":   {q.Range.Departure.Format(dateFmt)},
	}
	if q.RoomType != "" {
		query.Set("roomType", q.RoomType)
	}
	var w wireAvailability
	if err := c.do(ctx, http.MethodGet, "/par/v1/hotels/"+url.PathEscape(q.PropertyID)+"/availability", query, nil, &w); err != nil {
		return domain.AvailabilityGrid{}, err
	}
	return w.toDomain(q.PropertyID, q.Range), nil
}

func (c *Connector) QuoteRate(ctx context.Context, q domain.RateQuery) (domain.RateQuote, error) {
	query := url.Values{
		"from":     {q.Range.Arrival.Format(dateFmt)},
		"to":       {q.Range.Departure.Format(dateFmt)},
		"roomType": {q.RoomType},
		"adults":   {strconv.Itoa(q.GuestCount())},
	}
	if q.RatePlan != "" {
		query.Set("ratePlanCode", q.RatePlan)
	}
	var w wireRate
	if err := c.do(ctx, http.MethodGet, "/par/v1/hotels/"+url.PathEscape(q.PropertyID)+"/rates", query, nil, &w); err != nil {
		return domain.RateQuote{}, err
	}
	return w.toDomain(q.PropertyID, q.Range), nil
}

func (c *Connector) CreateReservation(ctx context.Context, draft domain.ReservationDraft) (domain.Reservation, error) {
	var w wireReservation
	if err := c.do(ctx, http.MethodPost, c.rsvPath(""), nil, draftToWire(draft), &w); err != nil {
		return domain.Reservation{}, err
	}
	return w.toDomain()
}

func (c *Connector) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	var w wireReservation
	if err := c.do(ctx, http.MethodGet, c.rsvPath(id), nil, nil, &w); err != nil {
		return domain.Reservation{}, err
	}
	return w.toDomain()
}

func (c *Connector) ModifyReservation(ctx context.Context, id string, patch domain.ReservationPatch) (domain.Reservation, error) {
	var w wireReservation
	if err := c.do(ctx, http.MethodPut, c.rsvPath(id), nil, patchToWire(patch), &w); err != nil {
		return domain.Reservation{}, err
	}
	return w.toDomain()
}

func (c *Connector) CancelReservation(ctx context.Context, id, reason string) error {
	query := url.Values{}
	if reason != "" {
		query.Set("reason", reason)
	}
	return c.do(ctx, http.MethodDelete, c.rsvPath(id), query, nil, nil)
}

func (c *Connector) SearchGuest(ctx context.Context, q domain.GuestQuery) ([]domain.GuestProfile, error) {
	query := url.Values{}
	if q.Email != "" {
		query.Set("email", q.Email)
	}
	if q.Phone != "" {
		query.Set("phone", q.Phone)
	}
	if q.LastName != "" {
		query.Set("surname", q.LastName)
	}
	var w struct {
		Profiles []wireProfile `json:"profiles"`
	}
	if err := c.do(ctx, http.MethodGet, "/crm/v1/profiles", query, nil, &w); err != nil {
		return nil, err
	}
	out := make([]domain.GuestProfile, 0, len(w.Profiles))
	for _, p := range w.Profiles {
		out = append(out, p.toDomain())
	}
	return out, nil
}

func (c *Connector) GetGuestProfile(ctx context.Context, id string) (domain.GuestProfile, error) {
	var w wireProfile
	if err := c.do(ctx, http.MethodGet, "/crm/v1/profiles/"+url.PathEscape(id), nil, nil, &w); err != nil {
		return domain.GuestProfile{}, err
	}
	return w.toDomain(), nil
}

func (c *Connector) HealthCheck(ctx context.Context) (domain.HealthStatus, error) {
	start := time.Now()
	err := c.do(ctx, http.MethodGet, "/par/v1/hotels/"+url.PathEscape(c.property)+"/ping", nil, nil, nil)
	if err != nil {
		return domain.HealthStatus{Vendor: VendorName, Reachable: false}, err
	}
	return domain.HealthStatus{Vendor: VendorName, Reachable: true, Latency: time.Since(start)}, nil
}

func (c *Connector) rsvPath(id string) string {
	p := "/rsv/v1/hotels/" + url.PathEscape(c.property) + "/reservations"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

var _ domain.Connector = (*Connector)(nil)
