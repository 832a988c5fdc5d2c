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

package notification

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/paybridge/paybridge/internal/request"
	"github.com/sirupsen/logrus"

	"github.com/paybridge/paybridge/config"
)

// SlackNotification sends an error message to a Slack webhook. It formats the
// error details and the current time into a Slack message payload.
func SlackNotification(err error) {
	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "Error From PayBridge 🐞",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Error:*\n%v"
					}
				]
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, err.Error(), time.Now().Format(time.RFC822)))

	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}

	if conf.Notification.Slack.WebhookUrl == "" {
		return
	}

	payload, err := request.ToJsonReq(&data)
	if err != nil {
		log.Println(err)
		return
	}

	req, err := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if err != nil {
		log.Println(err)
		return
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if err != nil {
		logrus.Error(err)
		return
	}
	if resp.StatusCode >= 300 {
		logrus.Errorf("slack notification failed with status %d", resp.StatusCode)
	}
}

// NotifyError reports an operational error to the configured Slack channel.
// It never fails the caller; notification problems are only logged.
func NotifyError(systemError error) {
	SlackNotification(systemError)
}
