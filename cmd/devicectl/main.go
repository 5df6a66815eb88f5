package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"

	"github.com/habitkit/devicegate/pkg/activity"
	"github.com/habitkit/devicegate/pkg/device/api"
	"github.com/habitkit/devicegate/pkg/deviceclient"
	"github.com/habitkit/devicegate/pkg/identity"
)

// devicectl signs this machine in as a device and keeps its session alive
// while lines arrive on stdin. Ctrl-C logs out.
func main() {
	server := flag.String("server", "http://localhost:4000/api/v1/devices", "Device API base URL")
	token := flag.String("token", os.Getenv("DEVICEGATE_TOKEN"), "Bearer token (see cmd/tokengen)")
	name := flag.String("name", "", "Device name shown in the device list")
	rememberMe := flag.Bool("remember", false, "Keep the session for the remember-me period")
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "Error: -token or DEVICEGATE_TOKEN is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jar, err := cookiejar.New(nil)
	if err != nil {
		slog.Error("Failed to create cookie jar", "error", err)
		os.Exit(1)
	}
	client, err := deviceclient.New(*server,
		deviceclient.WithHTTPClient(&http.Client{Jar: jar, Timeout: deviceclient.DefaultTimeout}),
		deviceclient.WithTokenSource(deviceclient.StaticToken(*token)))
	if err != nil {
		slog.Error("Invalid server URL", "error", err)
		os.Exit(1)
	}

	files, err := identity.DefaultFileStore()
	if err != nil {
		slog.Error("Failed to locate device id file", "error", err)
		os.Exit(1)
	}
	resolver := identity.NewResolver(identity.CurrentHardware(),
		files,
		identity.NewCookieStore(jar, client.BaseURL(), identity.DefaultCookieTTL, nil))
	deviceID, err := resolver.Resolve(ctx)
	if err != nil {
		slog.Error("Failed to resolve device id", "error", err)
		os.Exit(1)
	}

	resp, err := client.Register(ctx, api.RegisterRequest{
		DeviceID:         deviceID,
		PhysicalDeviceID: resolver.PhysicalDeviceID(),
		DeviceName:       *name,
		DeviceType:       "desktop",
		RememberMe:       *rememberMe,
	})
	if err != nil {
		slog.Error("Failed to register device", "device_id", deviceID, "error", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "%s\nRemove one of these devices first:\n", resp.Message)
		for _, d := range resp.ActiveDevices {
			fmt.Fprintf(os.Stderr, "  %s\t%s\t%s\n", d.DeviceID, d.DeviceName, d.DeviceType)
		}
		os.Exit(2)
	}

	done := make(chan activity.LogoutEvent, 1)
	tracker := activity.NewTracker(deviceID, client,
		activity.WithCleaners(resolver),
		activity.WithLogoutHandler(func(ev activity.LogoutEvent) {
			done <- ev
		}))
	tracker.Start()
	slog.Info("Device signed in", "device_id", deviceID, "remember_me", *rememberMe)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			tracker.RecordActivity(activity.KindKey)
		}
	}()

	select {
	case <-ctx.Done():
		tracker.Logout(context.Background())
		ev := <-done
		slog.Info("Logged out", "redirect", ev.Redirect, "server_error", ev.ServerErr)
	case ev := <-done:
		slog.Info("Session ended", "reason", ev.Reason, "redirect", ev.Redirect)
	}
	tracker.Wait()
}
