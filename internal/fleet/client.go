// Пакет fleet — HTTP-клиент внешнего API управления парком устройств.
// Авторизация — Basic Auth по ключу из JSON-файла {"id": "...", "secret": "..."}.
// Операции: ListDevices, ListApps, ListFiles (GET /v1/...),
// UpdateConfiguration (PATCH /v1/configurations/{id}).
package fleet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Key — ключ доступа к fleet API.
type Key struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// LoadKey читает и валидирует ключ из JSON-файла.
func LoadKey(path string) (*Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение ключа fleet API: %w", err)
	}
	var key Key
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("разбор ключа fleet API: %w", err)
	}
	if key.ID == "" || key.Secret == "" {
		return nil, fmt.Errorf("ключ fleet API неполон: требуются поля id и secret")
	}
	return &key, nil
}

// basicAuthHeader строит значение заголовка Authorization для ключа.
func basicAuthHeader(key *Key) string {
	credentials := key.ID + ":" + key.Secret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

// Device — устройство парка в локальном представлении.
type Device struct {
	ID                          string `json:"id"`
	Name                        string `json:"name"`
	Model                       string `json:"model"`
	Online                      bool   `json:"online"`
	Charging                    bool   `json:"charging"`
	BatteryLevel                int    `json:"batteryLevel"`
	LeftControllerBatteryLevel  int    `json:"leftControllerBatteryLevel"`
	RightControllerBatteryLevel int    `json:"rightControllerBatteryLevel"`
}

// App — приложение, доступное парку.
type App struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// File — файл в библиотеке fleet API.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	MD5         string `json:"md5"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Path        string `json:"path"`
}

// Wire-формат fleet API: полезная нагрузка в обёртке {"data": [...]}.
type remoteDevice struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Manufacturer      string `json:"manufacturer"`
	Model             string `json:"model"`
	Online            bool   `json:"online"`
	BatteryIsCharging bool   `json:"batteryIsCharging"`
	BatteryLevel      int    `json:"batteryLevel"`
	ControllerData    struct {
		Controller0 struct {
			BatteryLevel int `json:"batteryLevel"`
		} `json:"controller0"`
		Controller1 struct {
			BatteryLevel int `json:"batteryLevel"`
		} `json:"controller1"`
	} `json:"controllerData"`
}

type remoteApp struct {
	PackageName string `json:"packageName"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type remoteFile struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Size                 int64  `json:"size"`
	MD5                  string `json:"md5"`
	URL                  string `json:"url"`
	Description          string `json:"description"`
	LibraryDirectoryPath string `json:"libraryDirectoryPath"`
}

type envelope[T any] struct {
	Data []T `json:"data"`
}

// Client — HTTP-клиент fleet API.
type Client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт fleet-клиент.
// baseURL — базовый URL fleet API (AH_FLEET_API_URL).
// keyPath — путь к JSON-файлу ключа (AH_FLEET_KEY_PATH).
func New(baseURL, keyPath string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	key, err := LoadKey(keyPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		authHeader: basicAuthHeader(key),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("component", "fleet_client")),
	}, nil
}

// do выполняет запрос к fleet API и декодирует JSON-ответ в out.
// Не-2xx статус возвращается как ошибка с телом ответа.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("сериализация запроса %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("создание запроса %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("fleet API %s %s вернул статус %d: %s", method, path, resp.StatusCode, string(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("декодирование ответа %s %s: %w", method, path, err)
		}
	}
	return nil
}

// ListDevices возвращает устройства парка.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var raw envelope[remoteDevice]
	if err := c.do(ctx, http.MethodGet, "/v1/devices", nil, &raw); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(raw.Data))
	for _, d := range raw.Data {
		devices = append(devices, Device{
			ID:                          d.ID,
			Name:                        d.Name,
			Model:                       strings.TrimSpace(d.Manufacturer + " " + d.Model),
			Online:                      d.Online,
			Charging:                    d.BatteryIsCharging,
			BatteryLevel:                d.BatteryLevel,
			LeftControllerBatteryLevel:  d.ControllerData.Controller0.BatteryLevel,
			RightControllerBatteryLevel: d.ControllerData.Controller1.BatteryLevel,
		})
	}
	return devices, nil
}

// ListApps возвращает приложения, доступные парку.
func (c *Client) ListApps(ctx context.Context) ([]App, error) {
	var raw envelope[remoteApp]
	if err := c.do(ctx, http.MethodGet, "/v1/apps", nil, &raw); err != nil {
		return nil, err
	}

	apps := make([]App, 0, len(raw.Data))
	for _, a := range raw.Data {
		apps = append(apps, App{
			ID:          a.PackageName,
			Name:        a.Title,
			Description: a.Description,
		})
	}
	return apps, nil
}

// ListFiles возвращает файлы библиотеки fleet API.
func (c *Client) ListFiles(ctx context.Context) ([]File, error) {
	var raw envelope[remoteFile]
	if err := c.do(ctx, http.MethodGet, "/v1/files", nil, &raw); err != nil {
		return nil, err
	}

	files := make([]File, 0, len(raw.Data))
	for _, f := range raw.Data {
		files = append(files, File{
			ID:          f.ID,
			Name:        f.Name,
			Size:        f.Size,
			MD5:         f.MD5,
			URL:         f.URL,
			Description: f.Description,
			Path:        f.LibraryDirectoryPath,
		})
	}
	return files, nil
}

// configPatch — тело PATCH /v1/configurations/{id}: полный набор
// контента конфигурации (приложения + файлы).
type configPatch struct {
	Files     []configFile `json:"files"`
	VRContent []configApp  `json:"vrContent"`
}

type configFile struct {
	ID                   string   `json:"id"`
	DeviceDirectoryPaths []string `json:"deviceDirectoryPaths"`
}

type configApp struct {
	Type string    `json:"type"`
	ID   configRef `json:"id"`
}

type configRef struct {
	PackageName string `json:"packageName"`
	Version     string `json:"version"`
}

// UpdateConfiguration пушит текущий набор приложений и файлов
// в конфигурацию configID. Устройства с этой конфигурацией
// получают контент при следующей синхронизации.
func (c *Client) UpdateConfiguration(ctx context.Context, configID string) error {
	apps, err := c.ListApps(ctx)
	if err != nil {
		return err
	}
	files, err := c.ListFiles(ctx)
	if err != nil {
		return err
	}

	patch := configPatch{
		Files:     make([]configFile, 0, len(files)),
		VRContent: make([]configApp, 0, len(apps)),
	}
	for _, f := range files {
		patch.Files = append(patch.Files, configFile{
			ID:                   f.ID,
			DeviceDirectoryPaths: []string{"/"},
		})
	}
	for _, a := range apps {
		patch.VRContent = append(patch.VRContent, configApp{
			Type: "app",
			ID:   configRef{PackageName: a.ID, Version: "latest"},
		})
	}

	if err := c.do(ctx, http.MethodPatch, "/v1/configurations/"+configID, patch, nil); err != nil {
		return err
	}

	c.logger.Info("Конфигурация fleet обновлена",
		slog.String("config_id", configID),
		slog.Int("apps", len(apps)),
		slog.Int("files", len(files)),
	)
	return nil
}
