// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reqctx extracts the caller identity carried on every API request
// (X-Org-Id, X-User-Id, X-User-Role) into a typed Actor attached to the
// request context, mirroring the Python original's per-request user context.
package reqctx

import (
	"context"
	"net/http"
)

// Role values accepted by the intake API's role check.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Actor carries the identity and role presented on one request.
type Actor struct {
	OrgID  string
	UserID string
	Role   string
}

// AllowsAny reports whether the actor's role is one of allowed.
func (a Actor) AllowsAny(allowed ...string) bool {
	if a.Role == "" {
		return false
	}
	for _, r := range allowed {
		if a.Role == r {
			return true
		}
	}
	return false
}

type actorKey struct{}

// FromHeaders builds an Actor from a request's X-Org-Id, X-User-Id and
// X-User-Role headers.
func FromHeaders(r *http.Request) Actor {
	return Actor{
		OrgID:  r.Header.Get("X-Org-Id"),
		UserID: r.Header.Get("X-User-Id"),
		Role:   r.Header.Get("X-User-Role"),
	}
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the Actor attached to ctx, or a zero Actor if
// none was attached.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}

// Middleware attaches the request's Actor to the request context for
// downstream handlers, unconditionally — role enforcement is left to
// individual handlers via Actor.AllowsAny, since not every route requires one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithActor(r.Context(), FromHeaders(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
