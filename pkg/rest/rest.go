package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/foxdalas/segregate/pkg/fleet"
	"github.com/foxdalas/segregate/pkg/segregate"
	"github.com/foxdalas/segregate/pkg/segregation"
	"github.com/google/uuid"
	"github.com/labstack/echo"
	"github.com/labstack/gommon/log"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

const (
	hypervisorsKey = "hypervisors"
	hypervisorsTTL = time.Minute
	reportTTL      = 24 * time.Hour

	stateRunning = "running"
	stateDone    = "done"
	stateFailed  = "failed"
)

// Init serves the API on s.Listen until s is stopped.
func Init(s *segregate.Segregate) *Echo {
	e := New(s)

	go func() {
		<-s.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			e.Logger.Error(err)
		}
	}()

	if err := e.Start(s.Listen); err != nil && err != http.ErrServerClosed {
		e.Logger.Fatal(err)
	}
	return e
}

func New(s *segregate.Segregate) *Echo {
	e := &Echo{
		echo.New(),
		s,
		cache.New(60*time.Minute, 120*time.Minute),
	}

	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, "OK")
	})
	e.GET("/ping", ping)

	// Hypervisors Methods
	e.GET("/api/hypervisors", e.getHypervisors)
	e.GET("/api/hypervisors/:id", e.getHypervisorInfo)

	// Segregation Methods
	e.POST("/api/segregate/:mode", e.runSegregation)
	e.GET("/api/reports/:id", e.getReport)

	if s.MetricsHandler != nil {
		e.GET("/metrics", echo.WrapHandler(s.MetricsHandler))
	}

	return e
}

func ping(c echo.Context) error {
	return c.JSON(http.StatusOK, "pong")
}

// Get Hypervisors list
func (e *Echo) getHypervisors(c echo.Context) error {
	f, err := e.fleet()
	if err != nil {
		return c.JSON(statusOf(err), e.simpleMessage("Can't get hypervisors list", err))
	}
	return c.JSON(http.StatusOK, f.Views())
}

// Get Hypervisor Information
func (e *Echo) getHypervisorInfo(c echo.Context) error {
	f, err := e.fleet()
	if err != nil {
		return c.JSON(statusOf(err), e.simpleMessage("Can't get hypervisors list", err))
	}
	h, ok := f.Host(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, e.simpleMessage("Hypervisor not found", nil))
	}
	return c.JSON(http.StatusOK, h.View())
}

// Run a segregation. Dry runs work on a copy of the cached hypervisors and
// answer with the report, live runs are started in background.
func (e *Echo) runSegregation(c echo.Context) error {
	body := new(SegregateRequest)
	if c.Request().ContentLength != 0 {
		if err := c.Bind(body); err != nil {
			return c.JSON(http.StatusBadRequest, e.simpleMessage("Invalid request", err))
		}
	}

	req := e.segregate.Request()
	req.Mode = c.Param("mode")
	if body.Threshold != 0 {
		req.Threshold = body.Threshold
	}
	if body.MaxOccupancy != 0 {
		req.MaxOccupancy = body.MaxOccupancy
	}
	if body.DryRun != nil {
		req.DryRun = *body.DryRun
	}
	if err := req.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, e.simpleMessage("Invalid request", err))
	}

	if req.DryRun {
		f, err := e.fleet()
		if err != nil {
			return c.JSON(statusOf(err), e.simpleMessage("Can't get hypervisors list", err))
		}
		report, err := e.segregate.Segregate(c.Request().Context(), f.Snapshot().Hosts(), req)
		if err != nil {
			return c.JSON(statusOf(err), e.simpleMessage("Segregation failed", err))
		}
		progress := e.saveState(report.ID, req.Mode, report, nil)
		return c.JSON(http.StatusOK, progress)
	}

	hosts, err := e.segregate.HostList()
	if err != nil {
		return c.JSON(statusOf(err), e.simpleMessage("Can't get hypervisors list", err))
	}

	id := uuid.New().String()
	progress := &Progress{ID: id, Action: req.Mode, State: stateRunning}
	e.cache.Set(id, progress, reportTTL)

	ctx, cancel := e.segregate.Context()
	err = e.segregate.Go(ctx, hosts, req, func(report *segregation.Report, err error) {
		defer cancel()
		e.cache.Delete(hypervisorsKey)
		e.saveState(id, req.Mode, report, err)
		if report != nil {
			e.segregate.LogReport(report)
		}
	})
	if err != nil {
		cancel()
		e.cache.Delete(id)
		return c.JSON(statusOf(err), e.simpleMessage("Can't start segregation", err))
	}
	return c.JSON(http.StatusAccepted, progress)
}

// Get segregation report
func (e *Echo) getReport(c echo.Context) error {
	id := c.Param("id")
	if data, found := e.cache.Get(id); found {
		return c.JSON(http.StatusOK, data.(*Progress))
	}
	return c.JSON(http.StatusNotFound, e.simpleMessage("Report not found", nil))
}

// fleet returns the cached hypervisors, refreshing them from the inventory
// once they expire.
func (e *Echo) fleet() (*fleet.Fleet, error) {
	if data, found := e.cache.Get(hypervisorsKey); found {
		return data.(*fleet.Fleet), nil
	}

	hosts, err := e.segregate.HostList()
	if err != nil {
		return nil, err
	}
	f, err := fleet.New(hosts)
	if err != nil {
		return nil, err
	}
	e.cache.Set(hypervisorsKey, f, hypervisorsTTL)
	return f, nil
}

// Save run state
func (e *Echo) saveState(id string, action string, report *segregation.Report, err error) *Progress {
	progress := &Progress{
		ID:     id,
		Action: action,
		State:  stateDone,
		Report: report,
	}
	if err != nil {
		progress.State = stateFailed
		progress.Error = err.Error()
	}
	e.Logger.Infof("Save %s segregation %s with state %s", action, id, progress.State)
	e.cache.Set(id, progress, reportTTL)
	return progress
}

// Simple Message
// {
//    "message": "Some message",
//    "error": "error message"
// }
func (e *Echo) simpleMessage(message string, err error) *SimpleResponse {
	r := &SimpleResponse{Message: message}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func statusOf(err error) int {
	switch errors.Cause(err) {
	case segregate.ErrInvalidMode, segregate.ErrInvalidThreshold, segregate.ErrInvalidMaxOccupancy:
		return http.StatusBadRequest
	case segregate.ErrBusy:
		return http.StatusConflict
	case fleet.ErrInvalidHostList:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
