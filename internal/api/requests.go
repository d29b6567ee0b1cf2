// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package api

import (
	"errors"
	"mime"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// maxBodyBytes bounds request bodies on the auth routes.
const maxBodyBytes = 64 << 10

// CustomerLoginRequest is the body of POST /login.
type CustomerLoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

func (req *CustomerLoginRequest) bindForm(v url.Values) {
	req.Email = v.Get("email")
	req.Password = v.Get("password")
}

func (req *CustomerLoginRequest) credentials() (string, string) {
	return req.Email, req.Password
}

// AdminLoginRequest is the body of POST /admin/login.
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=1024"`
}

func (req *AdminLoginRequest) bindForm(v url.Values) {
	req.Username = v.Get("username")
	req.Password = v.Get("password")
}

func (req *AdminLoginRequest) credentials() (string, string) {
	return req.Username, req.Password
}

// loginRequest is implemented by both login bodies.
type loginRequest interface {
	bindForm(url.Values)
	credentials() (identifier, secret string)
}

// EventsRequest holds the query of GET /admin/security/events.
type EventsRequest struct {
	Limit int `validate:"min=1,max=500"`
}

// defaultEventsLimit applies when limit is absent.
const defaultEventsLimit = 50

var errUnsupportedMediaType = errors.New("unsupported content type")

// decodeLogin fills req from a JSON body or a urlencoded/multipart form.
func decodeLogin(r *http.Request, req loginRequest) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}

	switch mediaType {
	case "application/json", "":
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		return dec.Decode(req)
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
		req.bindForm(r.PostForm)
		return nil
	default:
		return errUnsupportedMediaType
	}
}
