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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
)

// HTTPClient is the shared client for all outbound downstream calls. Timeouts
// are applied per call through the request context, not here, because every
// call carries its own configured bound.
var HTTPClient = &http.Client{}

// ToJsonReq converts a Go object to a JSON-encoded HTTP request payload.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, e := json.Marshal(payload)
	if e != nil {
		return nil, e
	}
	bytePayload := bytes.NewBuffer(c)
	return bytePayload, nil
}

// Call makes an HTTP request using the provided request object and decodes the
// response into the specified structure. Content-Type is set to application/json.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return resp, err
	}

	err = json.NewDecoder(resp.Body).Decode(&response)
	if err != nil {
		return resp, err
	}
	return resp, err
}

// Do sends one bounded downstream call and returns the status code and raw
// body. The caller owns classification of the result; the context carries the
// call timeout and cancellation.
func Do(ctx context.Context, method, url string, payload []byte, headers map[string]string) (int, []byte, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

// BasicAuth generates a basic HTTP authentication string by encoding the
// provided username and password.
func BasicAuth(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}

// BearerAuth formats a bearer token header value.
func BearerAuth(token string) string {
	return "Bearer " + token
}
