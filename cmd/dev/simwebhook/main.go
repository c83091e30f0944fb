package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/pflag"

	"housekeeping/internal/webhook"
)

func main() {
	var (
		url     = pflag.String("url", "", "webhook endpoint url (defaults to http://localhost<HTTP_ADDR>/v1/webhooks/pms/<topic>)")
		topic   = pflag.String("topic", webhook.TopicGuestCheckedOut, "PMS topic")
		secret  = pflag.String("secret", os.Getenv("PMS_WEBHOOK_SECRET"), "PMS_WEBHOOK_SECRET")
		payload = pflag.String("payload", "", "path to json payload file")
		room    = pflag.String("room", "", "room number; builds a minimal payload when -payload is not set")
		eventID = pflag.String("id", "", "optional event id header value")
		retries = pflag.Int("retries", 3, "redeliveries on 503")
	)
	pflag.Parse()

	if *url == "" {
		httpAddr := os.Getenv("HTTP_ADDR")
		if httpAddr == "" {
			httpAddr = ":8081"
		}
		if strings.HasPrefix(httpAddr, ":") {
			httpAddr = "localhost" + httpAddr
		}
		*url = "http://" + httpAddr + "/v1/webhooks/pms/" + webhook.NormalizeTopic(*topic)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "missing --secret")
		os.Exit(2)
	}

	var body []byte
	switch {
	case *payload != "":
		b, err := os.ReadFile(*payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read payload: %v\n", err)
			os.Exit(2)
		}
		body = b
	case *room != "":
		body = []byte(fmt.Sprintf(`{"roomNumber":%q}`, *room))
	default:
		fmt.Fprintln(os.Stderr, "missing --payload or --room")
		os.Exit(2)
	}

	// Redeliveries carry the same event id, as a PMS retry would.
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(*retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusServiceUnavailable
		})

	req := client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("X-PMS-Topic", *topic).
		SetHeader("X-PMS-Signature", webhook.Sign(body, *secret)).
		SetBody(body)
	if *eventID != "" {
		req.SetHeader("X-PMS-Event-Id", *eventID)
	}

	resp, err := req.Post(*url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "post: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("status=%d attempts=%d\n%s\n", resp.StatusCode(), resp.Request.Attempt, resp.String())
}
