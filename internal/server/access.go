package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
)

type grantRequest struct {
	ManagerID  string `json:"manager_id"`
	BuildingID string `json:"building_id"`
}

func (r grantRequest) parse() (snowflake.ID, snowflake.ID, error) {
	managerID, err := bodyID("manager_id", r.ManagerID)
	if err != nil {
		return 0, 0, err
	}
	if managerID == 0 {
		return 0, 0, newValidationError("manager_id", "required", "manager_id is required")
	}
	buildingID, err := bodyID("building_id", r.BuildingID)
	if err != nil {
		return 0, 0, err
	}
	if buildingID == 0 {
		return 0, 0, newValidationError("building_id", "required", "building_id is required")
	}
	return managerID, buildingID, nil
}

func (s *Server) ListAccessibleBuildings(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	ids, err := s.accessSvc.AccessibleBuildings(c.Request.Context(), caller)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"building_ids": nonNilIDs(ids)}})
}

func (s *Server) ListAccessibleResources(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	kind, valid := accessdomain.ParseResourceKind(c.Param("kind"))
	if !valid {
		AbortWithError(c, accessdomain.ErrInvalidKind)
		return
	}

	ids, err := s.accessSvc.AccessibleResourceIDs(c.Request.Context(), caller, kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"kind": kind,
		"ids":  nonNilIDs(ids),
	}})
}

func (s *Server) GrantBuildingAccess(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	managerID, buildingID, err := req.parse()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	grant, err := s.accessSvc.GrantBuildingAccess(c.Request.Context(), caller, managerID, buildingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": grant})
}

// RevokeBuildingAccess takes the pair from the body, or from the query
// string for clients that cannot send a DELETE body.
func (s *Server) RevokeBuildingAccess(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	req := grantRequest{
		ManagerID:  c.Query("manager_id"),
		BuildingID: c.Query("building_id"),
	}
	if req.ManagerID == "" && req.BuildingID == "" {
		if err := bindOptionalJSON(c, &req); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	managerID, buildingID, err := req.parse()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.accessSvc.RevokeBuildingAccess(c.Request.Context(), caller, managerID, buildingID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"manager_id":  managerID,
		"building_id": buildingID,
		"revoked":     true,
	}})
}

func (s *Server) ListGrants(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var filter accessdomain.GrantFilter
	managerID, err := parseOptionalSnowflakeID(c.Query("manager_id"))
	if err != nil {
		AbortWithError(c, newValidationError("manager_id", "invalid_manager_id", "invalid manager_id"))
		return
	}
	if managerID != nil {
		filter.ManagerID = *managerID
	}
	buildingID, err := parseOptionalSnowflakeID(c.Query("building_id"))
	if err != nil {
		AbortWithError(c, newValidationError("building_id", "invalid_building_id", "invalid building_id"))
		return
	}
	if buildingID != nil {
		filter.BuildingID = *buildingID
	}

	grants, err := s.accessSvc.ListGrants(c.Request.Context(), caller, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if grants == nil {
		grants = []accessdomain.Grant{}
	}

	c.JSON(http.StatusOK, gin.H{"data": grants})
}

func nonNilIDs(ids []snowflake.ID) []snowflake.ID {
	if ids == nil {
		return []snowflake.ID{}
	}
	return ids
}
