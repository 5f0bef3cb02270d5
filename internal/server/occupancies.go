package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kiraya/internal/authorization"
	occupancydomain "github.com/smallbiznis/kiraya/internal/occupancy/domain"
)

type targetRequest struct {
	UnitID string `json:"unit_id"`
	BedID  string `json:"bed_id"`
}

func (r targetRequest) parse() (occupancydomain.Target, error) {
	unitID, err := bodyID("unit_id", r.UnitID)
	if err != nil {
		return occupancydomain.Target{}, err
	}
	bedID, err := bodyID("bed_id", r.BedID)
	if err != nil {
		return occupancydomain.Target{}, err
	}
	return occupancydomain.Target{UnitID: unitID, BedID: bedID}, nil
}

type createOccupancyRequest struct {
	targetRequest
	TenantID  string         `json:"tenant_id"`
	Rent      *int64         `json:"rent"`
	Deposit   *int64         `json:"deposit"`
	StartDate string         `json:"start_date"`
	Notes     string         `json:"notes"`
	Metadata  map[string]any `json:"metadata"`
}

type reassignOccupancyRequest struct {
	targetRequest
	Rent *int64 `json:"rent"`
}

type vacateOccupancyRequest struct {
	EndDate string `json:"end_date"`
	Force   bool   `json:"force"`
	Reason  string `json:"reason"`
}

type giveNoticeRequest struct {
	NoticeDate string `json:"notice_date"`
	Reason     string `json:"reason"`
}

type addOccupantRequest struct {
	TenantID  string `json:"tenant_id"`
	Deposit   *int64 `json:"deposit"`
	StartDate string `json:"start_date"`
	Notes     string `json:"notes"`
}

type listOccupanciesQuery struct {
	BuildingID  string `form:"building_id"`
	TenantID    string `form:"tenant_id"`
	Active      string `form:"active"`
	NoticeState string `form:"notice_state"`
}

// bindOptionalJSON tolerates an empty body so clients can POST action
// endpoints without a payload.
func bindOptionalJSON(c *gin.Context, out any) error {
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return invalidRequestError()
	}
	return nil
}

func (s *Server) CreateOccupancy(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req createOccupancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tenantID, err := bodyID("tenant_id", req.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenantID == 0 {
		AbortWithError(c, newValidationError("tenant_id", "required", "tenant_id is required"))
		return
	}
	target, err := req.parse()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	startDate, err := bodyDate("start_date", req.StartDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.occupancySvc.Create(c.Request.Context(), caller, occupancydomain.CreateRequest{
		TenantID:  tenantID,
		Target:    target,
		Rent:      req.Rent,
		Deposit:   req.Deposit,
		StartDate: startDate,
		Notes:     strings.TrimSpace(req.Notes),
		Metadata:  req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ReassignOccupancy(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req reassignOccupancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	target, err := req.parse()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.occupancySvc.Reassign(c.Request.Context(), caller, id, occupancydomain.ReassignRequest{
		Target: target,
		Rent:   req.Rent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// VacateOccupancy ends an occupancy. A forced vacate needs its own
// permission on top of the plain one checked by the route.
func (s *Server) VacateOccupancy(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req vacateOccupancyRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	if !req.Force {
		if force, err := parseOptionalBool(c.Query("force")); err == nil && force != nil {
			req.Force = *force
		}
	}
	endDate, err := bodyDate("end_date", req.EndDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if req.Force {
		if err := s.authzSvc.Authorize(c.Request.Context(), caller, authorization.ObjectOccupancy, authorization.ActionOccupancyForceVacate); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	resp, err := s.occupancySvc.Vacate(c.Request.Context(), caller, id, occupancydomain.VacateRequest{
		EndDate: endDate,
		Force:   req.Force,
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GiveNotice(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req giveNoticeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}
	noticeDate, err := bodyDate("notice_date", req.NoticeDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.occupancySvc.GiveNotice(c.Request.Context(), caller, id, occupancydomain.GiveNoticeRequest{
		NoticeDate: noticeDate,
		Reason:     strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelNotice(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.occupancySvc.CancelNotice(c.Request.Context(), caller, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetPrimaryOccupant(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.occupancySvc.SetPrimary(c.Request.Context(), caller, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddCoOccupant(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	unitID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req addOccupantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tenantID, err := bodyID("tenant_id", req.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenantID == 0 {
		AbortWithError(c, newValidationError("tenant_id", "required", "tenant_id is required"))
		return
	}
	startDate, err := bodyDate("start_date", req.StartDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.occupancySvc.AddCoOccupant(c.Request.Context(), caller, unitID, occupancydomain.AddCoOccupantRequest{
		TenantID:  tenantID,
		Deposit:   req.Deposit,
		StartDate: startDate,
		Notes:     strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListOccupancies(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var query listOccupanciesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var filter occupancydomain.ListFilter
	buildingID, err := parseOptionalSnowflakeID(query.BuildingID)
	if err != nil {
		AbortWithError(c, newValidationError("building_id", "invalid_building_id", "invalid building_id"))
		return
	}
	if buildingID != nil {
		filter.BuildingID = *buildingID
	}
	tenantID, err := parseOptionalSnowflakeID(query.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}
	if tenantID != nil {
		filter.TenantID = *tenantID
	}
	filter.Active, err = parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "active must be true or false"))
		return
	}
	if raw := strings.TrimSpace(query.NoticeState); raw != "" {
		state, ok := occupancydomain.ParseNoticeState(strings.ToUpper(raw))
		if !ok {
			AbortWithError(c, occupancydomain.ErrInvalidNoticeState)
			return
		}
		filter.NoticeState = state
	}

	items, err := s.occupancySvc.List(c.Request.Context(), caller, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []occupancydomain.OccupancyView{}
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetOccupancy(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.occupancySvc.Get(c.Request.Context(), caller, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// DownloadStatement streams the move-out statement PDF.
func (s *Server) DownloadStatement(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	doc, err := s.statementSvc.Render(c.Request.Context(), caller, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	c.DataFromReader(http.StatusOK, -1, "application/pdf", doc.Body, nil)
}
