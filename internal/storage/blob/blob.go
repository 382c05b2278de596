// Пакет blob — абстракция байтового хранилища с адресацией
// slash-разделёнными ключами и префиксными операциями.
//
// Два взаимозаменяемых бэкенда с идентичным контрактом:
//   - local — локальная файловая система (AH_STORAGE_ROOT)
//   - s3    — S3-совместимое хранилище через minio-go
//
// Выбор бэкенда — конфигурацией при старте (AH_STORAGE_BACKEND).
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound — ключ отсутствует в хранилище.
var ErrNotFound = errors.New("ключ не найден в хранилище")

// ByteRange — включающее окно байтов [Start, End] для частичного чтения.
type ByteRange struct {
	Start int64
	End   int64
}

// HeadInfo — метаданные объекта без чтения тела.
type HeadInfo struct {
	ContentLength int64
	ContentType   string
}

// Store — контракт байтового хранилища.
//
// GetStream: ошибки уровня потока (обрыв чтения с диска/сети) приходят
// из Read возвращённого ReadCloser, а не синхронно из вызова — к моменту
// ошибки ответ может уже передаваться клиенту.
type Store interface {
	// Put надёжно записывает тело под ключом, возвращает число записанных байт.
	Put(ctx context.Context, key, contentType string, body io.Reader) (int64, error)

	// GetStream открывает поток чтения, опционально ограниченный окном rng.
	// Возвращает ErrNotFound, если ключа нет.
	GetStream(ctx context.Context, key string, rng *ByteRange) (io.ReadCloser, error)

	// Head возвращает длину и content-type объекта или ErrNotFound.
	Head(ctx context.Context, key string) (*HeadInfo, error)

	// Exists проверяет существование ключа.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete удаляет ключ. Отсутствие ключа не является ошибкой.
	Delete(ctx context.Context, key string) error

	// DeleteTree удаляет все ключи с указанным префиксом.
	DeleteTree(ctx context.Context, prefix string) error
}
