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

	model2 "github.com/paybridge/paybridge/api/model"
	"github.com/paybridge/paybridge/internal/apierror"
	"github.com/paybridge/paybridge/model"
)

// RouteDownstream is the live traffic entrypoint. The call's result class
// picks the HTTP status: rejections map to 403/503, a queue hand-off to 202,
// and a terminal failure to 502.
func (a Api) RouteDownstream(c *gin.Context) {
	var body model2.RouteDownstream
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := body.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := a.bridge.RouteDownstream(c.Request.Context(), body.ToRequest())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(callResultStatus(result), result)
}

func callResultStatus(result *model.CallResult) int {
	switch result.Status {
	case model.CallSuccess:
		return http.StatusOK
	case model.CallQueuedForRetry:
		return http.StatusAccepted
	case model.CallRejected:
		if result.Reason == model.ReasonAccessDenied {
			return http.StatusForbidden
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
