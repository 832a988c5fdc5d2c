/*
Copyright 2024 PayBridge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/paybridge/paybridge/api/model"
	"github.com/paybridge/paybridge/internal/apierror"
)

func (a Api) CreateResiliencyConfiguration(c *gin.Context) {
	var body model2.CreateResiliencyConfiguration
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	cfg := body.ToConfiguration()
	resp, err := a.bridge.Datasource().RecordResiliencyConfiguration(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	a.bridge.Policies().Invalidate(c.Request.Context(), cfg.ServiceName, cfg.TenantID)

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetResiliencyConfiguration(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.bridge.Datasource().GetResiliencyConfiguration(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAllResiliencyConfigurations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := a.bridge.Datasource().GetAllResiliencyConfigurations(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateResiliencyConfiguration(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var body model2.CreateResiliencyConfiguration
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	cfg := body.ToConfiguration()
	cfg.ConfigID = id
	if err := a.bridge.Datasource().UpdateResiliencyConfiguration(c.Request.Context(), cfg); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	a.bridge.Policies().Invalidate(c.Request.Context(), cfg.ServiceName, cfg.TenantID)

	c.JSON(http.StatusOK, cfg)
}

func (a Api) DeleteResiliencyConfiguration(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	cfg, err := a.bridge.Datasource().GetResiliencyConfiguration(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := a.bridge.Datasource().DeleteResiliencyConfiguration(c.Request.Context(), id); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	a.bridge.Policies().Invalidate(c.Request.Context(), cfg.ServiceName, cfg.TenantID)

	c.JSON(http.StatusOK, gin.H{"message": "resiliency configuration deleted"})
}

// GetBreakerSnapshots reports the live state of every breaker in the process.
func (a Api) GetBreakerSnapshots(c *gin.Context) {
	c.JSON(http.StatusOK, a.bridge.Breakers().Snapshots())
}

// OpenBreaker trips a breaker by hand, fencing a downstream known to be down.
func (a Api) OpenBreaker(c *gin.Context) {
	service, passed := c.Params.Get("service")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service is required. pass it in the route /:service"})
		return
	}
	tenantID := c.Query("tenant_id")

	breaker := a.bridge.Breakers().Lookup(service, tenantID)
	if breaker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no breaker exists for this service and tenant"})
		return
	}
	breaker.ForceOpen()
	c.JSON(http.StatusOK, breaker.Snapshot())
}

// ResetBreaker closes a breaker and clears its window.
func (a Api) ResetBreaker(c *gin.Context) {
	service, passed := c.Params.Get("service")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "service is required. pass it in the route /:service"})
		return
	}
	tenantID := c.Query("tenant_id")

	breaker := a.bridge.Breakers().Lookup(service, tenantID)
	if breaker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no breaker exists for this service and tenant"})
		return
	}
	breaker.Reset()
	c.JSON(http.StatusOK, breaker.Snapshot())
}
