package handler

import (
	"net/http"
	"time"

	"bpmncollab/internal/app/user"
	"bpmncollab/internal/pkg/auth/jwt"
	"bpmncollab/internal/pkg/errs"
	"bpmncollab/internal/pkg/logx"
	"bpmncollab/internal/pkg/req"
	"bpmncollab/internal/pkg/resp"
)

// IdentityRequest optionally carries a previously issued token in the body.
type IdentityRequest struct {
	Token string `json:"token"`
}

// IdentityResponse returns the resolved collaborator and a fresh token for it.
type IdentityResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      user.User `json:"user"`
}

// HandleIdentity resolves the caller's collaborator identity, minting one when the
// caller has no valid token, and issues a fresh identity token.
func HandleIdentity(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body IdentityRequest
		if r.ContentLength != 0 {
			if cerr := req.BindJSON(w, r, &body); cerr != nil {
				resp.RespondError(w, r, cerr)
				return
			}
		}

		userID := jwt.UserIDFromContext(r)
		if body.Token != "" {
			payload, err := jwt.ResolveIdentity(body.Token, deps.Config.JWTSecret)
			if err != nil {
				logx.Info("Identity token in body rejected, minting new user", "error", err.Error())
			} else {
				userID = payload.ID
			}
		}

		u := deps.Users.GetOrCreate(userID)

		token, expiresAt, err := issueIdentity(deps, u.ID)
		if err != nil {
			logx.Error(err, "Failed to issue identity token", "user_id", u.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
			return
		}

		http.SetCookie(w, identityCookie(deps, token, expiresAt))

		resp.RespondSuccess(w, r, IdentityResponse{
			Token:     token,
			ExpiresAt: expiresAt,
			User:      u,
		})
	}
}

func issueIdentity(deps *AppDeps, userID string) (string, time.Time, error) {
	issued, err := jwt.IssueIdentity(userID, deps.Config.JWTSecret, jwt.IdentityExpiration)
	if err != nil {
		return "", time.Time{}, err
	}
	return issued.Token, issued.ExpiresAt, nil
}

func identityCookie(deps *AppDeps, token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     jwt.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   !deps.Config.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	}
}
