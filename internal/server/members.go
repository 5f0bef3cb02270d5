package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/kiraya/internal/account/domain"
	"github.com/smallbiznis/kiraya/internal/authorization"
)

type issueAPIKeyRequest struct {
	Name string `json:"name"`
}

func (s *Server) Me(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	member, err := s.accountSvc.GetMember(c.Request.Context(), caller.AccountID, caller.MemberID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": member})
}

func (s *Server) ListMembers(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	members, err := s.accountSvc.ListMembers(c.Request.Context(), caller)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if members == nil {
		members = []accountdomain.Member{}
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) AddMember(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req accountdomain.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.accountSvc.AddMember(c.Request.Context(), caller, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": member})
}

// IssueAPIKey returns the raw key once. Members may issue keys for
// themselves; issuing for someone else is owner only.
func (s *Server) IssueAPIKey(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	memberID, ok := pathID(c, "id")
	if !ok {
		return
	}

	action := authorization.ActionMemberIssueAPIKey
	if memberID == caller.MemberID {
		action = authorization.ActionMemberOwnAPIKey
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), caller, authorization.ObjectMember, action); err != nil {
		AbortWithError(c, err)
		return
	}

	var req issueAPIKeyRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	secret, err := s.accountSvc.IssueAPIKey(c.Request.Context(), caller, memberID, req.Name)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": secret})
}
