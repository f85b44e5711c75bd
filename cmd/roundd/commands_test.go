package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestRoundCreateCommand(t *testing.T) {
	fixtures := []struct {
		name      string
		args      []string
		autoStart bool
	}{
		{"default waits for the open phase", nil, false},
		{"auto start", []string{"--auto-start"}, true},
	}

	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			bodies := make(chan map[string]interface{}, 1)
			server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
				assert.Equal(t, "/v1/rounds", req.URL.Path)
				assert.Equal(t, "Bearer admin-token", req.Header.Get("Authorization"))
				body := make(map[string]interface{})
				assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
				bodies <- body
				rw.WriteHeader(http.StatusCreated)
				rw.Write([]byte(`{"id":"r1","status":"SCHEDULED"}`)) // nolint
			}))
			defer server.Close()

			app := cli.NewApp()
			app.Flags = []cli.Flag{urlFlag, tokenFlag}
			app.Commands = cli.Commands{roundCmd}

			args := []string{
				"roundd", "--url", server.URL, "--token", "admin-token",
				"round", "create", "--entry-fee", "700", "--winner-count", "3",
			}
			args = append(args, f.args...)
			require.NoError(t, app.Run(args))

			body := <-bodies

			require.Equal(t, f.autoStart, body["auto_start"])
			require.Equal(t, float64(700), body["entry_fee"])
			require.Equal(t, float64(3), body["winner_count"])
			require.Equal(t, "1m0s", body["base_countdown"])
		})
	}
}

func TestRoundCommandError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		http.Error(rw, `{"error":"round not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	app := cli.NewApp()
	app.Flags = []cli.Flag{urlFlag, tokenFlag}
	app.Commands = cli.Commands{roundCmd}

	err := app.Run([]string{"roundd", "--url", server.URL, "round", "get", "--id", "missing"})
	require.ErrorContains(t, err, "404")
}
