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

	"github.com/gin-gonic/gin"
	"github.com/wacul/ptr"

	model2 "github.com/paybridge/paybridge/api/model"
	"github.com/paybridge/paybridge/internal/apierror"
)

func (a Api) RecordDownstreamService(c *gin.Context) {
	var body model2.CreateDownstreamService
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.bridge.Datasource().RecordDownstreamService(c.Request.Context(), body.ToService())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetDownstreamServices(c *gin.Context) {
	resp, err := a.bridge.Datasource().GetDownstreamServices(c.Request.Context())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetServiceHealth reports the monitor's view of every probed downstream.
func (a Api) GetServiceHealth(c *gin.Context) {
	if a.monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "health monitoring is not running on this node"})
		return
	}
	c.JSON(http.StatusOK, a.monitor.Health())
}

func (a Api) RecordTenantAccess(c *gin.Context) {
	var body model2.TenantAccess
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if body.IsAllowed == nil {
		body.IsAllowed = ptr.Bool(true)
	}

	err := a.bridge.Datasource().RecordTenantAccess(c.Request.Context(),
		body.TenantID, body.ServiceType, body.Endpoint, body.PaymentType, *body.IsAllowed)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "tenant access rule recorded"})
}
