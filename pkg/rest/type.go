package rest

import (
	"github.com/foxdalas/segregate/pkg/segregate"
	"github.com/foxdalas/segregate/pkg/segregation"
	"github.com/labstack/echo"
	"github.com/patrickmn/go-cache"
)

type Echo struct {
	*echo.Echo
	segregate *segregate.Segregate
	cache     *cache.Cache
}

// SegregateRequest overrides the command line defaults for one run.
type SegregateRequest struct {
	Threshold    int     `json:"threshold" form:"threshold" query:"threshold"`
	MaxOccupancy float64 `json:"maxOccupancy" form:"maxOccupancy" query:"maxOccupancy"`
	DryRun       *bool   `json:"dryRun" form:"dryRun" query:"dryRun"`
}

//State:
// running - live run in progress
// done - finished, see report
// failed - finished with error
type Progress struct {
	ID     string              `json:"id"`
	Action string              `json:"action"`
	State  string              `json:"state"`
	Error  string              `json:"error,omitempty"`
	Report *segregation.Report `json:"report,omitempty"`
}

type SimpleResponse struct {
	Message string `json:"message" xml:"message" form:"message" query:"message"`
	Error   string `json:"error" xml:"error" form:"error" query:"error"`
}
