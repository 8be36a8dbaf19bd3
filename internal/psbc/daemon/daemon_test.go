package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/debrief/psbc/internal/psbc/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	opts := config.NewOptions()
	opts.Bridge.Port = freePort(t)
	opts.ToolServer.URL = ""
	cfg, err := config.CreateConfigFromOptions(opts)
	if err != nil {
		t.Fatalf("CreateConfigFromOptions: %v", err)
	}
	return cfg
}

func TestDaemonStartServesHealthzAndStopShutsDown(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Bridge.Port)
	var resp *http.Response
	for i := 0; i < 20; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	d.Stop(stopCtx)

	if _, err := http.Get(url); err == nil {
		t.Fatalf("expected bridge listener to be stopped")
	}
}

func TestDaemonSupervisorStatusReachableViaBridge(t *testing.T) {
	cfg := testConfig(t)
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop(context.Background())

	waitForHealthy(t, d, 5*time.Second)

	body := fmt.Sprintf(`{"command":"get_supervisor_status","params":null}`)
	var resp *http.Response
	for i := 0; i < 20; i++ {
		resp, err = http.Post(fmt.Sprintf("http://127.0.0.1:%d/bridge", cfg.Bridge.Port), "application/json",
			strings.NewReader(body))
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("POST /bridge: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func waitForHealthy(t *testing.T, d *Daemon, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.bridgeSupervisor.Status().State == "Healthy" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("bridge supervisor never became healthy")
}
