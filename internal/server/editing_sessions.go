package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
	"github.com/smallbiznis/kiraya/internal/softlock"
)

type releaseSessionRequest struct {
	Token string `json:"token"`
}

// editingTarget resolves :kind/:id and checks the caller may reach the
// resource's building.
func (s *Server) editingTarget(c *gin.Context) (softlock.Kind, snowflake.ID, bool) {
	caller, ok := mustCaller(c)
	if !ok {
		return "", 0, false
	}
	kind, valid := softlock.ParseKind(c.Param("kind"))
	if !valid {
		AbortWithError(c, softlock.ErrInvalidKind)
		return "", 0, false
	}
	id, ok := pathID(c, "id")
	if !ok {
		return "", 0, false
	}
	buildingID, err := s.accessSvc.AuthorizeResource(c.Request.Context(), caller, accessdomain.ResourceKind(kind), id)
	if err != nil {
		AbortWithError(c, err)
		return "", 0, false
	}
	c.Set("building_id", buildingID.String())
	return kind, id, true
}

func (s *Server) StartEditingSession(c *gin.Context) {
	kind, id, ok := s.editingTarget(c)
	if !ok {
		return
	}
	caller, _ := callerFrom(c)

	session, err := s.softlocks.Acquire(c.Request.Context(), caller.MemberID, kind, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) EndEditingSession(c *gin.Context) {
	kind, id, ok := s.editingTarget(c)
	if !ok {
		return
	}
	caller, _ := callerFrom(c)

	req := releaseSessionRequest{Token: c.Query("token")}
	if strings.TrimSpace(req.Token) == "" {
		if err := bindOptionalJSON(c, &req); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	if strings.TrimSpace(req.Token) == "" {
		AbortWithError(c, newValidationError("token", "required", "token is required"))
		return
	}

	if err := s.softlocks.Release(c.Request.Context(), caller.MemberID, kind, id, strings.TrimSpace(req.Token)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"released": true}})
}

// GetEditingSession reports who is editing a resource. The release token is
// only shown to its holder.
func (s *Server) GetEditingSession(c *gin.Context) {
	kind, id, ok := s.editingTarget(c)
	if !ok {
		return
	}
	caller, _ := callerFrom(c)

	session, err := s.softlocks.Holder(c.Request.Context(), kind, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if session != nil && session.MemberID != caller.MemberID {
		session.Token = ""
	}

	c.JSON(http.StatusOK, gin.H{"data": session})
}
