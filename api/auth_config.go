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
	"github.com/paybridge/paybridge/model"
)

func (a Api) CreateAuthConfiguration(c *gin.Context) {
	var body model2.CreateAuthConfiguration
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	record := body.ToRecord()
	resp, err := a.bridge.Datasource().RecordAuthConfiguration(c.Request.Context(), record)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	// The next resolution of this scope must see the new record.
	_ = a.bridge.Resolver().Invalidate(c.Request.Context(), record.Scope)

	c.JSON(http.StatusCreated, resp)
}

// ResolveAuthConfiguration exposes the resolver's output for one hypothetical
// call, for debugging and audit. Read-only; resolution is total, so this
// always answers.
func (a Api) ResolveAuthConfiguration(c *gin.Context) {
	tenantID, passed := c.Params.Get("tenantId")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId is required. pass it in the route /:tenantId"})
		return
	}
	serviceType := c.Query("serviceType")
	endpoint := c.Query("endpoint")
	if serviceType == "" || endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serviceType and endpoint query parameters are required"})
		return
	}

	resolved := a.bridge.Resolver().Resolve(c.Request.Context(), tenantID, serviceType, endpoint, c.Query("paymentType"))
	c.JSON(http.StatusOK, resolved)
}

func (a Api) GetAuthConfiguration(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.bridge.Datasource().GetAuthConfiguration(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetAuthConfigurations(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := a.bridge.Datasource().GetAuthConfigurations(c.Request.Context(), tenantID, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateAuthConfiguration(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var body model2.UpdateAuthConfiguration
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	record, err := a.bridge.Datasource().GetAuthConfiguration(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	record.AuthMethod = model.AuthMethod(body.AuthMethod)
	record.CredentialRef = body.CredentialRef
	if body.IncludeClientHeaders != nil {
		record.IncludeClientHeaders = *body.IncludeClientHeaders
	}
	if body.HeaderOverrides != nil {
		record.HeaderOverrides = body.HeaderOverrides
	}
	if body.IsActive != nil {
		record.IsActive = *body.IsActive
	}

	if err := a.bridge.Datasource().UpdateAuthConfiguration(c.Request.Context(), record); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	_ = a.bridge.Resolver().Invalidate(c.Request.Context(), record.Scope)

	c.JSON(http.StatusOK, record)
}

func (a Api) DeactivateAuthConfiguration(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	record, err := a.bridge.Datasource().GetAuthConfiguration(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	if err := a.bridge.Datasource().DeactivateAuthConfiguration(c.Request.Context(), id); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	_ = a.bridge.Resolver().Invalidate(c.Request.Context(), record.Scope)

	c.JSON(http.StatusOK, gin.H{"message": "auth configuration deactivated"})
}
