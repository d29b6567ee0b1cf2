// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package session

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCookies_ReadWrite(t *testing.T) {
	c := NewCookies(CookieConfig{Lifetime: 2 * time.Hour})

	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.AddCookie(&http.Cookie{Name: CookieTransport, Value: "guest1"})
	r.AddCookie(&http.Cookie{Name: CookieAdmin, Value: "admin1"})

	client := c.Read(r)
	if client.Transport != "guest1" || client.Admin != "admin1" || client.Customer != "" {
		t.Fatalf("Read = %+v", client)
	}

	client.Transport = "guest2"
	client.Customer = "cust1"
	client.Admin = ""

	w := httptest.NewRecorder()
	c.Write(w, r, client)

	got := map[string]*http.Cookie{}
	for _, ck := range w.Result().Cookies() {
		got[ck.Name] = ck
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 Set-Cookie headers, got %d", len(got))
	}

	cust := got[CookieCustomer]
	if cust.Value != "cust1" || cust.MaxAge != 7200 || !cust.HttpOnly || cust.SameSite != http.SameSiteStrictMode || cust.Path != "/" {
		t.Errorf("customer cookie = %+v", cust)
	}
	if cust.Secure {
		t.Error("Secure should be off for plain HTTP without CookieSecure")
	}
	if got[CookieTransport].Value != "guest2" {
		t.Errorf("transport cookie = %+v", got[CookieTransport])
	}
	if got[CookieAdmin].MaxAge != -1 {
		t.Errorf("admin cookie should be expired: %+v", got[CookieAdmin])
	}
}

func TestCookies_SecureOverTLS(t *testing.T) {
	c := NewCookies(CookieConfig{})
	r := httptest.NewRequest(http.MethodGet, "/csrf", nil)
	r.TLS = &tls.ConnectionState{}

	w := httptest.NewRecorder()
	c.Write(w, r, &Client{Transport: "g"})

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].Secure {
		t.Errorf("cookies = %+v, want one Secure cookie", cookies)
	}
}

func TestCookies_UnchangedNotRewritten(t *testing.T) {
	c := NewCookies(CookieConfig{})
	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.AddCookie(&http.Cookie{Name: CookieCustomer, Value: "same"})

	w := httptest.NewRecorder()
	c.Write(w, r, &Client{Customer: "same"})
	if n := len(w.Result().Cookies()); n != 0 {
		t.Errorf("expected no Set-Cookie, got %d", n)
	}
}
