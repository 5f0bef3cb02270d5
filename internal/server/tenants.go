package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenantdomain "github.com/smallbiznis/kiraya/internal/tenant/domain"
	"github.com/smallbiznis/kiraya/pkg/db/pagination"
)

type listTenantsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Name      string `form:"name"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req tenantdomain.CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenant, err := s.tenantSvc.Create(c.Request.Context(), caller, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tenant})
}

func (s *Server) ListTenants(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var query listTenantsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.List(c.Request.Context(), caller, tenantdomain.ListTenantRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Name: strings.TrimSpace(query.Name),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.Tenants == nil {
		resp.Tenants = []tenantdomain.Tenant{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Tenants,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetTenant(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	tenant, err := s.tenantSvc.Get(c.Request.Context(), caller, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tenant})
}
