package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	inventorydomain "github.com/smallbiznis/kiraya/internal/inventory/domain"
)

type noticePeriodRequest struct {
	NoticePeriodDays *int `json:"notice_period_days"`
}

func (s *Server) CreateBuilding(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req inventorydomain.CreateBuildingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)

	building, err := s.inventorySvc.CreateBuilding(c.Request.Context(), caller, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": building})
}

func (s *Server) ListBuildings(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	buildings, err := s.inventorySvc.ListBuildings(c.Request.Context(), caller)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if buildings == nil {
		buildings = []inventorydomain.BuildingView{}
	}

	c.JSON(http.StatusOK, gin.H{"data": buildings})
}

func (s *Server) GetBuilding(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	building, err := s.inventorySvc.GetBuilding(c.Request.Context(), caller, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": building})
}

func (s *Server) UpdateNoticePeriod(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req noticePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.NoticePeriodDays == nil {
		AbortWithError(c, newValidationError("notice_period_days", "required", "notice_period_days is required"))
		return
	}

	building, err := s.inventorySvc.UpdateNoticePeriod(c.Request.Context(), caller, id, *req.NoticePeriodDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": building})
}

func (s *Server) CreateUnit(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	buildingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req inventorydomain.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UnitNumber = strings.TrimSpace(req.UnitNumber)
	req.UnitType = inventorydomain.UnitType(strings.ToUpper(strings.TrimSpace(string(req.UnitType))))

	unit, err := s.inventorySvc.CreateUnit(c.Request.Context(), caller, buildingID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": unit})
}

func (s *Server) ListUnits(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	buildingID, ok := pathID(c, "id")
	if !ok {
		return
	}

	units, err := s.inventorySvc.ListUnits(c.Request.Context(), caller, buildingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if units == nil {
		units = []inventorydomain.Unit{}
	}

	c.JSON(http.StatusOK, gin.H{"data": units})
}

func (s *Server) CreateRoom(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	unitID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req inventorydomain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RoomNumber = strings.TrimSpace(req.RoomNumber)

	room, err := s.inventorySvc.CreateRoom(c.Request.Context(), caller, unitID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": room})
}

func (s *Server) CreateBed(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req inventorydomain.CreateBedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.BedNumber = strings.TrimSpace(req.BedNumber)

	bed, err := s.inventorySvc.CreateBed(c.Request.Context(), caller, roomID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": bed})
}

func (s *Server) ListBeds(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	roomID, ok := pathID(c, "id")
	if !ok {
		return
	}

	beds, err := s.inventorySvc.ListBeds(c.Request.Context(), caller, roomID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if beds == nil {
		beds = []inventorydomain.Bed{}
	}

	c.JSON(http.StatusOK, gin.H{"data": beds})
}
