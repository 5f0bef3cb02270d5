package server

import (
	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/kiraya/internal/access/domain"
)

// RequireBuildingAccess resolves the resource named by the :param path
// segment to its building and rejects callers outside that building before
// the handler runs. Missing rows and rows of other accounts both yield 403.
func (s *Server) RequireBuildingAccess(kind accessdomain.ResourceKind, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := mustCaller(c)
		if !ok {
			return
		}
		id, ok := pathID(c, param)
		if !ok {
			return
		}

		buildingID, err := s.accessSvc.AuthorizeResource(c.Request.Context(), caller, kind, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set("building_id", buildingID.String())
		c.Next()
	}
}
