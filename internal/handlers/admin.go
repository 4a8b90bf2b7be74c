// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/i18n"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	authsvc "codeberg.org/oliverandrich/identity-service/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// AdminHandlers serve user management and reports.
type AdminHandlers struct {
	svc *authsvc.Service
}

func NewAdmin(svc *authsvc.Service) *AdminHandlers {
	return &AdminHandlers{svc: svc}
}

// ListUsers returns all accounts.
func (h *AdminHandlers) ListUsers(c echo.Context) error {
	users, err := h.svc.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"users": userViews(users), "total": len(users)})
}

// GetUser returns one account.
func (h *AdminHandlers) GetUser(c echo.Context) error {
	user, err := h.svc.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userView(user))
}

type createUserItem struct {
	Username         string `json:"username"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	Role             string `json:"role"`
	SkipVerification bool   `json:"skipVerification"`
}

func (i createUserItem) params() (authsvc.AdminCreateParams, error) {
	role, err := models.ParseRole(i.Role)
	if err != nil {
		return authsvc.AdminCreateParams{}, apperror.Wrap(apperror.KindInvalidInput, "unknown role", err)
	}
	return authsvc.AdminCreateParams{
		Username:         i.Username,
		Email:            i.Email,
		Password:         i.Password,
		Role:             role,
		SkipVerification: i.SkipVerification,
	}, nil
}

// createUsersRequest is either a single user or a batch under "users".
type createUsersRequest struct {
	createUserItem
	Users []createUserItem `json:"users"`
}

type batchItemResult struct {
	Index  int          `json:"index"`
	UserID string       `json:"userId,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItemResult `json:"results"`
	Created int               `json:"created"`
	Failed  int               `json:"failed"`
}

func (r *batchResponse) add(index int, userID string, err error) {
	item := batchItemResult{Index: index, UserID: userID}
	if err != nil {
		_, body := errorResponse(err)
		if body.Error.Kind == apperror.KindInternal {
			body.Error.Message = http.StatusText(http.StatusInternalServerError)
		}
		item.Error = &body.Error
		r.Failed++
	} else {
		r.Created++
	}
	r.Results = append(r.Results, item)
}

// CreateUsers creates one account or a batch of accounts. Batch entries
// succeed or fail independently.
func (h *AdminHandlers) CreateUsers(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req createUsersRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	if len(req.Users) == 0 {
		params, err := req.params()
		if err != nil {
			return err
		}
		user, err := h.svc.AdminCreate(ctx, p.UserID, params)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, map[string]any{"userId": user.ID, "user": userView(user)})
	}

	resp := batchResponse{Results: make([]batchItemResult, 0, len(req.Users))}
	valid := make([]authsvc.AdminCreateParams, 0, len(req.Users))
	positions := make([]int, 0, len(req.Users))
	parseErrs := make(map[int]error)
	for i, item := range req.Users {
		params, err := item.params()
		if err != nil {
			parseErrs[i] = err
			continue
		}
		valid = append(valid, params)
		positions = append(positions, i)
	}

	created := h.svc.AdminCreateBatch(ctx, p.UserID, valid)
	byIndex := make(map[int]int, len(created))
	for j, pos := range positions {
		byIndex[pos] = j
	}
	for i := range req.Users {
		if err, ok := parseErrs[i]; ok {
			resp.add(i, "", err)
			continue
		}
		r := created[byIndex[i]]
		userID := ""
		if r.User != nil {
			userID = r.User.ID
		}
		resp.add(i, userID, r.Err)
	}
	return c.JSON(http.StatusOK, resp)
}

type deleteUsersRequest struct {
	IDs []string `json:"ids"`
}

type deleteItemResult struct {
	ID    string       `json:"id"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// DeleteUsers deletes the listed accounts.
func (h *AdminHandlers) DeleteUsers(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req deleteUsersRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if len(req.IDs) == 0 {
		return apperror.New(apperror.KindInvalidInput, "ids must not be empty")
	}

	results := h.svc.DeleteUsers(c.Request().Context(), p.UserID, req.IDs)
	out := make([]deleteItemResult, len(results))
	deleted := 0
	for i, r := range results {
		out[i] = deleteItemResult{ID: r.ID}
		if r.Err != nil {
			_, body := errorResponse(r.Err)
			out[i].Error = &body.Error
			continue
		}
		deleted++
	}
	return c.JSON(http.StatusOK, map[string]any{"results": out, "deleted": deleted})
}

// DeleteUser deletes one account.
func (h *AdminHandlers) DeleteUser(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUser(c.Request().Context(), p.UserID, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(c.Request().Context(), "msg_user_deleted")})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole assigns a non-admin role.
func (h *AdminHandlers) SetRole(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req setRoleRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Role == "" {
		return apperror.New(apperror.KindInvalidInput, "role is required")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return apperror.Wrap(apperror.KindInvalidInput, "unknown role", err)
	}

	user, err := h.svc.SetUserRole(c.Request().Context(), p.UserID, c.Param("id"), role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": i18n.T(c.Request().Context(), "msg_role_updated"),
		"user":    userView(user),
	})
}

type reportResponse struct {
	TotalUsers      int64                 `json:"totalUsers"`
	UsersByRole     map[models.Role]int64 `json:"usersByRole"`
	UnverifiedUsers int64                 `json:"unverifiedUsers"`
	ActiveSessions  int64                 `json:"activeSessions"`
}

// Reports returns aggregate counts.
func (h *AdminHandlers) Reports(c echo.Context) error {
	report, err := h.svc.Reports(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reportResponse{
		TotalUsers:      report.TotalUsers,
		UsersByRole:     report.UsersByRole,
		UnverifiedUsers: report.UnverifiedUsers,
		ActiveSessions:  report.ActiveSessions,
	})
}
