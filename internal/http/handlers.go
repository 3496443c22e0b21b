package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/knowledged/internal/customize"
	"github.com/fyrsmithlabs/knowledged/internal/services"
)

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
	Scope    string `json:"scope,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer     string   `json:"answer"`
	Sources    []string `json:"sources"`
	Confidence int      `json:"confidence,omitempty"`
	ChunkCount int      `json:"chunk_count"`
	LatencyMS  int64    `json:"latency_ms"`
}

func (s *Server) handleAsk(c echo.Context) error {
	userID, err := actorID(c)
	if err != nil {
		return err
	}
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	start := time.Now()
	resp, err := s.ask.Ask(c.Request().Context(), userID, services.AskRequest{
		Question: req.Question,
		Scope:    req.Scope,
		TopK:     req.TopK,
	})
	if err != nil {
		return s.mapError(err)
	}

	scope := req.Scope
	if scope == "" {
		scope = "all"
	}
	s.metrics.QueriesTotal.WithLabelValues(scope).Inc()
	s.metrics.QueryDuration.Observe(time.Since(start).Seconds())

	return c.JSON(http.StatusOK, AskResponse{
		Answer:     resp.Answer,
		Sources:    resp.Sources,
		Confidence: resp.Confidence,
		ChunkCount: resp.ChunkCount,
		LatencyMS:  resp.LatencyMS,
	})
}

func (s *Server) handleUsage(c echo.Context) error {
	userID, err := actorID(c)
	if err != nil {
		return err
	}
	usage, err := s.ask.Usage(c.Request().Context(), userID)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, usage)
}

// CreateOrganizationRequest is the request body for POST /api/v1/organizations.
type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateOrganization(c echo.Context) error {
	userID, err := actorID(c)
	if err != nil {
		return err
	}
	var req CreateOrganizationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	}
	org, err := s.registry.Directory().CreateOrganization(c.Request().Context(), userID, req.Name)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, org)
}

func (s *Server) handleOrgStats(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	stats, err := s.registry.Directory().OrgStats(c.Request().Context(), actor)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleDeleteOrganization(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	orgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
	}
	if err := s.ask.DeleteOrganization(c.Request().Context(), actor, orgID); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListMembers(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	members, err := s.registry.Directory().Members(c.Request().Context(), actor)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, members)
}

func (s *Server) handleRemoveMember(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	target, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if err := s.registry.Directory().RemoveMember(c.Request().Context(), actor, target); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateRoleRequest is the request body for PUT member role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleUpdateMemberRole(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	target, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	var req UpdateRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.registry.Directory().UpdateMemberRole(c.Request().Context(), actor, target, req.Role); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TransferOwnershipRequest is the request body for POST ownership transfer.
type TransferOwnershipRequest struct {
	NewOwnerID uuid.UUID `json:"new_owner_id"`
}

func (s *Server) handleTransferOwnership(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	var req TransferOwnershipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.registry.Directory().TransferOwnership(c.Request().Context(), actor, req.NewOwnerID); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLeave(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	if err := s.registry.Directory().LeaveOrganization(c.Request().Context(), actor); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CreateInviteRequest is the request body for POST /api/v1/invites.
type CreateInviteRequest struct {
	MaxUses     int    `json:"max_uses,omitempty"`
	TTLHours    int    `json:"ttl_hours,omitempty"`
	DefaultRole string `json:"default_role,omitempty"`
}

func (s *Server) handleCreateInvite(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	var req CreateInviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	inv, err := s.registry.Directory().CreateInvite(c.Request().Context(), actor,
		req.MaxUses, time.Duration(req.TTLHours)*time.Hour, req.DefaultRole)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, inv)
}

func (s *Server) handleInviteDetails(c echo.Context) error {
	preview, err := s.registry.Directory().InviteDetails(c.Request().Context(), c.Param("code"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, preview)
}

func (s *Server) handleRedeemInvite(c echo.Context) error {
	userID, err := actorID(c)
	if err != nil {
		return err
	}
	m, err := s.registry.Directory().RedeemInvite(c.Request().Context(), c.Param("code"), userID)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) handleRevokeInvite(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	inviteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid invite id")
	}
	if err := s.registry.Directory().RevokeInvite(c.Request().Context(), actor, inviteID); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RegisterDocumentRequest is the request body for POST /api/v1/documents.
type RegisterDocumentRequest struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"content_hash"`
	Visibility  string `json:"visibility"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (s *Server) handleRegisterDocument(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	var req RegisterDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Filename == "" || req.ContentHash == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename and content_hash are required")
	}
	doc, err := s.registry.Documents().RegisterUpload(c.Request().Context(), actor,
		req.Visibility, req.Filename, req.ContentHash, req.SizeBytes)
	if err != nil {
		return s.mapError(err)
	}
	s.metrics.DocumentsRegistered.Inc()
	return c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	docs, err := s.registry.Documents().ListVisible(c.Request().Context(), actor)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) handleGetDocument(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	doc, err := s.registry.Documents().Get(c.Request().Context(), actor, docID)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	docID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid document id")
	}
	if err := s.registry.Documents().Delete(c.Request().Context(), actor, docID); err != nil {
		return s.mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetSettings(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	settings, err := s.registry.Customization().GetSettings(c.Request().Context(), actor)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(c echo.Context) error {
	actor, err := s.actorContext(c)
	if err != nil {
		return err
	}
	var upd customize.Update
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	settings, err := s.registry.Customization().UpdateSettings(c.Request().Context(), actor, upd)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, settings)
}
