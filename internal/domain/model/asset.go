// Пакет model — доменные модели Asset Hub.
// AssetMeta — единая структура метаданных ассета, используется
// как in-memory представление и как формат assets/<id>/meta.json.
// JSON-теги в camelCase: формат является wire-контрактом для устройств
// и web-клиента, менять нельзя.
package model

// AssetType — тип ассета.
type AssetType string

const (
	// AssetGLB — 3D-модель в формате GLB (binary glTF)
	AssetGLB AssetType = "glb"
	// AssetVideo — видео (включая 360°)
	AssetVideo AssetType = "video"
)

// TranscodeStatus — статус фонового транскодирования видео.
type TranscodeStatus string

const (
	// TranscodeProcessing — задача поставлена в очередь или выполняется
	TranscodeProcessing TranscodeStatus = "processing"
	// TranscodeReady — universal.mp4 записан и доступен
	TranscodeReady TranscodeStatus = "ready"
	// TranscodeFailed — ошибка probe/encode, повторов нет
	TranscodeFailed TranscodeStatus = "failed"
)

// TranscodeVariants — URL производных вариантов ассета.
type TranscodeVariants struct {
	// MP4 — URL универсального MP4 (H.264 yuv420p + AAC, faststart)
	MP4 string `json:"mp4,omitempty"`
}

// TranscodeInfo — результат транскодирования, записывается обратно
// в meta.json воркером. Ошибка транскодирования никогда не влияет
// на доступность оригинальных байтов ассета.
type TranscodeInfo struct {
	Status TranscodeStatus `json:"status"`

	// Variants — заполняется только при status=ready
	Variants *TranscodeVariants `json:"variants,omitempty"`

	// Error — сообщение об ошибке, только при status=failed
	Error string `json:"error,omitempty"`

	// UpdatedAt — unix-время в миллисекундах последнего изменения
	UpdatedAt int64 `json:"updatedAt"`
}

// AssetMeta — полные метаданные ассета (содержимое meta.json).
type AssetMeta struct {
	// ID — уникальный идентификатор ассета (UUID v4)
	ID string `json:"id"`

	// Type — тип ассета (glb, video)
	Type AssetType `json:"type"`

	// OriginalFilename — оригинальное имя файла при загрузке
	OriginalFilename string `json:"originalFilename"`

	// Mime — MIME-тип, заявленный при загрузке
	Mime string `json:"mime"`

	// SizeBytes — размер оригинального файла в байтах
	SizeBytes int64 `json:"sizeBytes"`

	// SHA256 — hex-дайджест SHA-256, посчитанный над байтами
	// в момент их записи в хранилище (не из повторного чтения)
	SHA256 string `json:"sha256"`

	// Transcode — результат транскодирования (только video)
	Transcode *TranscodeInfo `json:"transcode,omitempty"`
}

// AssetListing — проекция AssetMeta для assets/index.json.
// Строгое подмножество AssetMeta: без sha256 и transcode.
type AssetListing struct {
	ID               string    `json:"id"`
	Type             AssetType `json:"type"`
	OriginalFilename string    `json:"originalFilename"`
	Mime             string    `json:"mime"`
	SizeBytes        int64     `json:"sizeBytes"`
}

// Listing строит проекцию для индекса из полных метаданных.
func (m *AssetMeta) Listing() AssetListing {
	return AssetListing{
		ID:               m.ID,
		Type:             m.Type,
		OriginalFilename: m.OriginalFilename,
		Mime:             m.Mime,
		SizeBytes:        m.SizeBytes,
	}
}

// IsVideo проверяет, что ассет является видео.
func (m *AssetMeta) IsVideo() bool {
	return m.Type == AssetVideo
}
