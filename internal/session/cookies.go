// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package session

import (
	"net/http"
	"time"
)

// Cookie names, one per slot.
const (
	CookieTransport = "sg_session"
	CookieCustomer  = "sg_customer"
	CookieAdmin     = "sg_admin"
)

// CookieName returns the cookie that carries kind.
func CookieName(kind Kind) string {
	switch kind {
	case KindCustomer:
		return CookieCustomer
	case KindAdmin:
		return CookieAdmin
	default:
		return CookieTransport
	}
}

// CookieConfig holds session cookie attributes.
type CookieConfig struct {
	// Secure forces the Secure flag. It is also set whenever the request
	// arrived over TLS.
	Secure bool

	// Domain is the cookie domain. Empty means host-only.
	Domain string

	// Lifetime sets Max-Age.
	Lifetime time.Duration
}

// Cookies reads and writes session cookies.
type Cookies struct {
	cfg CookieConfig
}

// NewCookies creates a cookie codec.
func NewCookies(cfg CookieConfig) *Cookies {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultConfig().Lifetime
	}
	return &Cookies{cfg: cfg}
}

// Read collects the session ids presented on r.
func (c *Cookies) Read(r *http.Request) *Client {
	client := &Client{}
	for _, kind := range []Kind{KindGuest, KindCustomer, KindAdmin} {
		if cookie, err := r.Cookie(CookieName(kind)); err == nil && cookie.Value != "" {
			client.SetSlot(kind, cookie.Value)
		}
	}
	return client
}

// Write sets a cookie for every slot of client and expires the cookies of
// empty slots that r presented.
func (c *Cookies) Write(w http.ResponseWriter, r *http.Request, client *Client) {
	for _, kind := range []Kind{KindGuest, KindCustomer, KindAdmin} {
		id := client.Slot(kind)
		name := CookieName(kind)
		switch {
		case id != "":
			if presented, err := r.Cookie(name); err == nil && presented.Value == id {
				continue
			}
			c.set(w, r, name, id, int(c.cfg.Lifetime.Seconds()))
		default:
			if _, err := r.Cookie(name); err == nil {
				c.set(w, r, name, "", -1)
			}
		}
	}
}

func (c *Cookies) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.cfg.Domain,
		MaxAge:   maxAge,
		Secure:   c.cfg.Secure || r.TLS != nil,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
