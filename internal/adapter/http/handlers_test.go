package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/bujia-iot/vmc-gateway/internal/app/service"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/storage"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/transport"
	"github.com/bujia-iot/vmc-gateway/internal/ports"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	script := transport.NewVMCScript("VMC-TEST-01", 0)
	link := transport.NewSimulatedTransport(script.Handle)
	if !link.Connect(ports.DefaultTransportConfig()) {
		t.Fatal("模拟链路打开失败")
	}
	t.Cleanup(link.Disconnect)

	lanes, err := service.NewLaneManager(storage.NewMemoryLaneStore(), config.LanesConfig{
		LoadBalanceThreshold: 10,
		FailureThreshold:     3,
		StartLane:            1,
	})
	if err != nil {
		t.Fatal(err)
	}
	dispenser := service.NewDispenserService(link, config.DispenseConfig{
		MaxPollAttempts: 5,
		PollIntervalMs:  20,
		EchoTimeoutMs:   50,
		Quantity:        1,
	})

	router := gin.New()
	NewHandlers(service.NewCoordinator(dispenser, lanes)).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestDispenseEndpoint 指定货道出货，结果以200返回
func TestDispenseEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/dispense", gin.H{"lane": 21})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 %d，期望 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Success bool `json:"success"`
			Lane    byte `json:"lane"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || !resp.Data.Success || resp.Data.Lane != 21 {
		t.Fatalf("响应内容错误: %s", w.Body.String())
	}
}

// TestDispenseEndpointFailureStill200 出货失败不是HTTP错误
func TestDispenseEndpointFailureStill200(t *testing.T) {
	router := newTestRouter(t)

	// 货道9不在合法地址空间，核心返回校验失败结果
	w := doJSON(t, router, http.MethodPost, "/api/v1/dispense", gin.H{"lane": 9})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 %d，期望 200: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Success   bool   `json:"success"`
			ErrorType string `json:"error_type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Success || resp.Data.ErrorType != "validation" {
		t.Fatalf("响应内容错误: %s", w.Body.String())
	}
}

// TestResetEndpointValidation 非法货道重置按调用方错误返回400
func TestResetEndpointValidation(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/lanes/reset", gin.H{"lane": 9})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("状态码 %d，期望 400: %s", w.Code, w.Body.String())
	}
}

// TestResetEndpoint 合法货道重置与全量重置
func TestResetEndpoint(t *testing.T) {
	router := newTestRouter(t)

	if w := doJSON(t, router, http.MethodPost, "/api/v1/lanes/reset", gin.H{"lane": 21}); w.Code != http.StatusOK {
		t.Fatalf("单货道重置状态码 %d: %s", w.Code, w.Body.String())
	}
	if w := doJSON(t, router, http.MethodPost, "/api/v1/lanes/reset", gin.H{"lane": 0}); w.Code != http.StatusOK {
		t.Fatalf("全量重置状态码 %d: %s", w.Code, w.Body.String())
	}
}

// TestLaneReportEndpoint 货道快照
func TestLaneReportEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/lanes/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Lanes []json.RawMessage `json:"lanes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data.Lanes) != 48 {
		t.Fatalf("快照货道数 %d，期望 48", len(resp.Data.Lanes))
	}
}

// TestDeviceIDEndpoint 设备标识查询
func TestDeviceIDEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/device/id", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			DeviceID string `json:"device_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.DeviceID != "VMC-TEST-01" {
		t.Fatalf("设备标识 %q", resp.Data.DeviceID)
	}
}
