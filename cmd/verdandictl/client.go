package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// apiDo issues one request against the configured Verdandi API.
func apiDo(method, path string, body io.Reader) (*http.Response, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s%s", viper.GetString("url"), path)
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := viper.GetString("key"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return client.Do(req)
}
