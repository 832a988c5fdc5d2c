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

package request

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
)

func TestToJsonReq(t *testing.T) {
	buf, err := ToJsonReq(map[string]string{"tenant_id": "tn_1"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"tenant_id":"tn_1"}`, buf.String())
}

func TestDo(t *testing.T) {
	httpmock.ActivateNonDefault(HTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "http://fraud.internal/score",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "key-123", req.Header.Get("X-Api-Key"))
			return httpmock.NewJsonResponse(200, map[string]string{"verdict": "pass"})
		})

	status, body, err := Do(context.Background(), "POST", "http://fraud.internal/score",
		[]byte(`{"amount":"10.00"}`), map[string]string{"X-Api-Key": "key-123"})
	assert.NoError(t, err)
	assert.Equal(t, 200, status)

	var decoded map[string]string
	assert.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "pass", decoded["verdict"])
}

func TestDoRespectsContextTimeout(t *testing.T) {
	httpmock.ActivateNonDefault(HTTPClient)
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "http://slow.internal/health",
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := Do(ctx, "GET", "http://slow.internal/health", nil, nil)
	assert.Error(t, err)
}

func TestBasicAuth(t *testing.T) {
	assert.Equal(t, "dXNlcjpwYXNz", BasicAuth("user", "pass"))
	assert.Equal(t, "Bearer tok", BearerAuth("tok"))
}
