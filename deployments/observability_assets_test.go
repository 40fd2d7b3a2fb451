package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	content := readAsset(t, "observability", "grafana", "tabletalk_dashboard.json")

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := string(readAsset(t, "observability", "prometheus", "tabletalk_rules.yaml"))

	requiredAlerts := []string{
		"TabletalkHTTPErrorRateHigh",
		"TabletalkAskLatencyP95High",
		"TabletalkLLMErrorRateHigh",
		"TabletalkSQLGenerationFailing",
		"TabletalkPipelineStageFailing",
		"TabletalkUploadsFailing",
		"TabletalkWarehouseRetriesHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
}

func TestAlertsOnlyReferenceRecordedSeries(t *testing.T) {
	alerts := string(readAsset(t, "observability", "prometheus", "tabletalk_rules.yaml"))
	recording := string(readAsset(t, "observability", "prometheus", "tabletalk_recording_rules.yaml"))

	for _, line := range strings.Split(alerts, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "expr:") {
			continue
		}
		series := strings.Fields(strings.TrimPrefix(line, "expr:"))[0]
		if !strings.Contains(recording, "record: "+series) {
			t.Fatalf("alert expression uses unrecorded series %q", series)
		}
	}
}

func TestRecordingRulesUseExportedMetrics(t *testing.T) {
	text := string(readAsset(t, "observability", "prometheus", "tabletalk_recording_rules.yaml"))

	exported := []string{
		"tabletalk_http_requests_total",
		"tabletalk_http_request_duration_seconds_bucket",
		"tabletalk_llm_requests_total",
		"tabletalk_sql_generation_attempts_total",
		"tabletalk_pipeline_stage_total",
		"tabletalk_uploads_total",
		"tabletalk_warehouse_retries_total",
	}
	for _, metric := range exported {
		if !strings.Contains(text, metric) {
			t.Fatalf("recording rules never read %q", metric)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := string(readAsset(t, "observability", "prometheus", "prometheus-scrape.example.yaml"))

	for _, token := range []string{
		"metrics_path: /metrics",
		"tabletalk_rules.yaml",
		"tabletalk_recording_rules.yaml",
		"job_name: tabletalk-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func TestComposeDeclaresBackingServices(t *testing.T) {
	text := string(readAsset(t, "docker-compose.yml"))

	for _, service := range []string{"postgres:", "minio:", "redis:", "prometheus:"} {
		if !strings.Contains(text, "\n  "+service) {
			t.Fatalf("compose file missing service %q", service)
		}
	}
}

func readAsset(t *testing.T, parts ...string) []byte {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	path := filepath.Join(append([]string{filepath.Dir(filename)}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return content
}
