// keys.go — схема ключей хранилища и публичных URL ассетов.
//
// Раскладка ключей (контракт, менять нельзя):
//
//	assets/<id>/file               оригинальные байты
//	assets/<id>/meta.json          AssetMeta
//	assets/<id>/mp4/universal.mp4  производный MP4 (только video)
//	assets/index.json              проекция-листинг ассетов
//	jobs/index.json                список заданий устройств
package model

// Ключи индексных документов.
const (
	AssetIndexKey = "assets/index.json"
	JobsIndexKey  = "jobs/index.json"
)

// AssetPrefix возвращает префикс поддерева ассета.
func AssetPrefix(id string) string {
	return "assets/" + id
}

// FileKey возвращает ключ оригинальных байтов ассета.
func FileKey(id string) string {
	return "assets/" + id + "/file"
}

// MetaKey возвращает ключ метаданных ассета.
func MetaKey(id string) string {
	return "assets/" + id + "/meta.json"
}

// MP4Key возвращает ключ универсального MP4.
func MP4Key(id string) string {
	return "assets/" + id + "/mp4/universal.mp4"
}

// StreamURL возвращает URL range-стриминга ассета.
func StreamURL(id string) string {
	return "/api/v1/assets/" + id + "/stream"
}

// DownloadURL возвращает URL полного скачивания ассета.
func DownloadURL(id string) string {
	return "/api/v1/assets/" + id + "/download"
}

// UniversalMP4URL возвращает URL производного MP4.
// До завершения транскодирования отвечает 404.
func UniversalMP4URL(id string) string {
	return "/api/v1/assets/" + id + "/mp4/universal.mp4"
}
