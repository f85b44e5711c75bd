package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lastword-games/roundd/internal/config"
	httpservice "github.com/lastword-games/roundd/internal/interface/http"
	"github.com/urfave/cli/v2"
)

// flags
var (
	urlFlag = &cli.StringFlag{
		Name:    "url",
		Usage:   "base url of the round service",
		Value:   fmt.Sprintf("http://localhost:%d", config.DefaultPort),
		EnvVars: []string{"ROUNDD_URL"},
	}
	tokenFlag = &cli.StringFlag{
		Name:    "token",
		Usage:   "admin bearer token",
		EnvVars: []string{"ROUNDD_ADMIN_TOKEN"},
	}
	roundIdFlag = &cli.StringFlag{
		Name:     "id",
		Usage:    "round id",
		Required: true,
	}
	entryFeeFlag = &cli.Uint64Flag{
		Name:  "entry-fee",
		Usage: "entry fee charged to every participant",
	}
	minParticipantsFlag = &cli.IntFlag{
		Name:  "min-participants",
		Usage: "participants required to go live",
		Value: 2,
	}
	winnerCountFlag = &cli.IntFlag{
		Name:  "winner-count",
		Usage: "number of paid ranks",
		Value: 1,
	}
	baseCountdownFlag = &cli.DurationFlag{
		Name:  "base-countdown",
		Usage: "countdown restored by every keep-alive",
		Value: time.Minute,
	}
	finalStretchFlag = &cli.DurationFlag{
		Name:  "final-stretch",
		Usage: "remaining time below which the round is ending",
		Value: 10 * time.Second,
	}
	openDurationFlag = &cli.DurationFlag{
		Name:  "open-duration",
		Usage: "time participants have to join",
		Value: 5 * time.Minute,
	}
	graceWindowFlag = &cli.DurationFlag{
		Name:  "grace-window",
		Usage: "extension granted when too few participants joined",
		Value: time.Minute,
	}
	maxGraceFlag = &cli.IntFlag{
		Name:  "max-grace-extensions",
		Usage: "grace extensions before the round is cancelled",
		Value: 2,
	}
	autoStartFlag = &cli.BoolFlag{
		Name:  "auto-start",
		Usage: "go live as soon as min-participants have joined instead of waiting for the open phase to end",
	}
	reasonFlag = &cli.StringFlag{
		Name:  "reason",
		Usage: "cancellation reason",
	}
	secretFlag = &cli.StringFlag{
		Name:     "secret",
		Usage:    "admin jwt secret the service is configured with",
		EnvVars:  []string{"ROUNDD_ADMIN_JWT_SECRET"},
		Required: true,
	}
	ttlFlag = &cli.DurationFlag{
		Name:  "ttl",
		Usage: "token validity",
		Value: 24 * time.Hour,
	}
)

// commands
var (
	serveCmd = &cli.Command{
		Name:   "serve",
		Usage:  "Start the round service",
		Action: serveAction,
	}
	roundCmd = &cli.Command{
		Name:  "round",
		Usage: "Manage rounds",
		Subcommands: append(
			cli.Commands{},
			roundCreateCmd,
			roundGetCmd,
			roundTickCmd,
			roundCancelCmd,
			roundResumeCmd,
		),
	}
	roundCreateCmd = &cli.Command{
		Name:   "create",
		Usage:  "Create a new round",
		Action: roundCreateAction,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "round id, generated if empty"},
			entryFeeFlag, minParticipantsFlag, winnerCountFlag, baseCountdownFlag,
			finalStretchFlag, openDurationFlag, graceWindowFlag, maxGraceFlag, autoStartFlag,
		},
	}
	roundGetCmd = &cli.Command{
		Name:   "get",
		Usage:  "Get the state of a round",
		Action: roundGetAction,
		Flags:  []cli.Flag{roundIdFlag},
	}
	roundTickCmd = &cli.Command{
		Name:   "tick",
		Usage:  "Advance a round to the state its clock implies",
		Action: roundTickAction,
		Flags:  []cli.Flag{roundIdFlag},
	}
	roundCancelCmd = &cli.Command{
		Name:   "cancel",
		Usage:  "Cancel a round and refund its participants",
		Action: roundCancelAction,
		Flags:  []cli.Flag{roundIdFlag, reasonFlag},
	}
	roundResumeCmd = &cli.Command{
		Name:   "resume-settlement",
		Usage:  "Retry the disbursement of a round flagged for review",
		Action: roundResumeAction,
		Flags:  []cli.Flag{roundIdFlag},
	}
	runDueCmd = &cli.Command{
		Name:   "run-due",
		Usage:  "Tick every round whose deadline has elapsed",
		Action: runDueAction,
	}
	adminTokenCmd = &cli.Command{
		Name:   "admin-token",
		Usage:  "Mint an admin bearer token",
		Action: adminTokenAction,
		Flags:  []cli.Flag{secretFlag, ttlFlag},
	}
)

func roundCreateAction(ctx *cli.Context) error {
	body := map[string]interface{}{
		"id":                   ctx.String("id"),
		"entry_fee":            ctx.Uint64("entry-fee"),
		"min_participants":     ctx.Int("min-participants"),
		"winner_count":         ctx.Int("winner-count"),
		"base_countdown":       ctx.Duration("base-countdown").String(),
		"final_stretch":        ctx.Duration("final-stretch").String(),
		"open_duration":        ctx.Duration("open-duration").String(),
		"grace_window":         ctx.Duration("grace-window").String(),
		"max_grace_extensions": ctx.Int("max-grace-extensions"),
		"auto_start":           ctx.Bool("auto-start"),
	}
	return call(ctx, http.MethodPost, "/v1/rounds", body)
}

func roundGetAction(ctx *cli.Context) error {
	return call(ctx, http.MethodGet, roundPath(ctx, ""), nil)
}

func roundTickAction(ctx *cli.Context) error {
	return call(ctx, http.MethodPost, roundPath(ctx, "/tick"), nil)
}

func roundCancelAction(ctx *cli.Context) error {
	body := map[string]string{"reason": ctx.String("reason")}
	return call(ctx, http.MethodPost, roundPath(ctx, "/cancel"), body)
}

func roundResumeAction(ctx *cli.Context) error {
	return call(ctx, http.MethodPost, roundPath(ctx, "/settlement/resume"), nil)
}

func runDueAction(ctx *cli.Context) error {
	return call(ctx, http.MethodPost, "/v1/ticks", nil)
}

func adminTokenAction(ctx *cli.Context) error {
	token, err := httpservice.NewAdminToken(ctx.String("secret"), ctx.Duration("ttl"))
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func roundPath(ctx *cli.Context, suffix string) string {
	return fmt.Sprintf("/v1/rounds/%s%s", ctx.String("id"), suffix)
}

func call(ctx *cli.Context, method, path string, body interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	url := strings.TrimSuffix(ctx.String("url"), "/") + path
	req, err := http.NewRequestWithContext(ctx.Context, method, url, reqBody)
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	if token := ctx.String("token"); len(token) > 0 {
		req.Header.Add("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(buf))
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf, "", "  "); err != nil {
		fmt.Println(string(buf))
		return nil
	}
	fmt.Println(out.String())
	return nil
}
