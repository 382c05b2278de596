package fleet

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeKeyFile записывает JSON-файл ключа во временную директорию.
func writeKeyFile(t *testing.T, id, secret string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.json")
	data, _ := json.Marshal(Key{ID: id, Secret: secret})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Ошибка записи файла ключа: %v", err)
	}
	return path
}

// setupMockFleet создаёт mock HTTP-сервер fleet API.
func setupMockFleet(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(baseURL, writeKeyFile(t, "key-id", "key-secret"), 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("Ошибка создания клиента: %v", err)
	}
	return client
}

func TestLoadKey_MissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte(`{"id": "only-id"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadKey(path); err == nil {
		t.Error("Ожидалась ошибка для ключа без secret")
	}
}

// TestClient_ListDevices проверяет маппинг устройств из wire-формата.
func TestClient_ListDevices(t *testing.T) {
	server := setupMockFleet(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/devices" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		// Basic Auth из файла ключа
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("key-id:key-secret"))
		if got := r.Header.Get("Authorization"); got != expected {
			t.Errorf("Authorization = %q, ожидалось %q", got, expected)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{
			"id": "dev-1",
			"name": "Quest-01",
			"manufacturer": "Meta",
			"model": "Quest 3",
			"online": true,
			"batteryIsCharging": false,
			"batteryLevel": 87,
			"controllerData": {
				"controller0": {"batteryLevel": 60},
				"controller1": {"batteryLevel": 55}
			}
		}]}`))
	})

	client := newTestClient(t, server.URL)

	devices, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("Ошибка ListDevices: %v", err)
	}

	if len(devices) != 1 {
		t.Fatalf("Получено %d устройств, ожидалось 1", len(devices))
	}
	d := devices[0]
	if d.ID != "dev-1" {
		t.Errorf("ID = %q, ожидалось \"dev-1\"", d.ID)
	}
	if d.Model != "Meta Quest 3" {
		t.Errorf("Model = %q, ожидалось склеенное \"Meta Quest 3\"", d.Model)
	}
	if !d.Online || d.Charging {
		t.Errorf("Online/Charging = %v/%v, ожидалось true/false", d.Online, d.Charging)
	}
	if d.LeftControllerBatteryLevel != 60 || d.RightControllerBatteryLevel != 55 {
		t.Errorf("Заряд контроллеров = %d/%d, ожидалось 60/55",
			d.LeftControllerBatteryLevel, d.RightControllerBatteryLevel)
	}
}

// TestClient_ListApps проверяет маппинг packageName → id.
func TestClient_ListApps(t *testing.T) {
	server := setupMockFleet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"packageName":"com.acme.trainer","title":"Trainer","description":"VR training"}]}`))
	})

	client := newTestClient(t, server.URL)

	apps, err := client.ListApps(context.Background())
	if err != nil {
		t.Fatalf("Ошибка ListApps: %v", err)
	}
	if len(apps) != 1 || apps[0].ID != "com.acme.trainer" || apps[0].Name != "Trainer" {
		t.Errorf("Неожиданный результат ListApps: %+v", apps)
	}
}

// TestClient_UpstreamError проверяет, что не-2xx статус возвращается как ошибка.
func TestClient_UpstreamError(t *testing.T) {
	server := setupMockFleet(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid key"))
	})

	client := newTestClient(t, server.URL)

	if _, err := client.ListDevices(context.Background()); err == nil {
		t.Error("Ожидалась ошибка при статусе 403")
	}
}

// TestClient_UpdateConfiguration проверяет сборку PATCH-тела
// из текущих списков приложений и файлов.
func TestClient_UpdateConfiguration(t *testing.T) {
	var patched configPatch

	server := setupMockFleet(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/v1/apps":
			w.Write([]byte(`{"data":[{"packageName":"com.acme.trainer","title":"Trainer"}]}`))
		case r.URL.Path == "/v1/files":
			w.Write([]byte(`{"data":[{"id":"file-1","name":"intro.mp4","size":100}]}`))
		case r.URL.Path == "/v1/configurations/cfg-1" && r.Method == http.MethodPatch:
			if err := json.NewDecoder(r.Body).Decode(&patched); err != nil {
				t.Errorf("Ошибка декодирования PATCH-тела: %v", err)
			}
			w.Write([]byte(`{"data":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	client := newTestClient(t, server.URL)

	if err := client.UpdateConfiguration(context.Background(), "cfg-1"); err != nil {
		t.Fatalf("Ошибка UpdateConfiguration: %v", err)
	}

	if len(patched.VRContent) != 1 || patched.VRContent[0].ID.PackageName != "com.acme.trainer" {
		t.Errorf("Неожиданный vrContent: %+v", patched.VRContent)
	}
	if len(patched.Files) != 1 || patched.Files[0].ID != "file-1" {
		t.Errorf("Неожиданный files: %+v", patched.Files)
	}
	if len(patched.Files) == 1 && (len(patched.Files[0].DeviceDirectoryPaths) != 1 || patched.Files[0].DeviceDirectoryPaths[0] != "/") {
		t.Errorf("deviceDirectoryPaths = %v, ожидалось [\"/\"]", patched.Files[0].DeviceDirectoryPaths)
	}
}
