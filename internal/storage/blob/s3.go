// s3.go — бэкенд хранилища на S3-совместимом объектном сторадже.
// Реализован поверх minio-go: работает с AWS S3, MinIO и совместимыми.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config — параметры подключения к S3-совместимому хранилищу.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PathStyle — путевая адресация бакета (MinIO, некоторые S3-прокси)
	PathStyle bool
}

// S3Store — хранилище в S3-совместимом бакете.
type S3Store struct {
	cl     *minio.Client
	bucket string
}

// NewS3 создаёт S3Store. Соединение не проверяется: первая операция
// вернёт ошибку при недоступности бакета.
func NewS3(cfg S3Config) (*S3Store, error) {
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("инициализация S3-клиента: %w", err)
	}

	return &S3Store{cl: cl, bucket: cfg.Bucket}, nil
}

// isNoSuchKey проверяет, является ли ошибка отсутствием объекта.
func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// Put загружает тело под ключом. Размер неизвестен заранее (-1):
// minio использует multipart upload для больших объектов.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) (int64, error) {
	info, err := s.cl.PutObject(ctx, s.bucket, key, body, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка записи объекта %s: %w", key, err)
	}
	return info.Size, nil
}

// GetStream открывает поток чтения объекта, опционально с окном rng.
// Отсутствие ключа проверяется через Stat до открытия потока; ошибки
// самого чтения приходят из Read возвращённого потока.
func (s *S3Store) GetStream(ctx context.Context, key string, rng *ByteRange) (io.ReadCloser, error) {
	if _, err := s.cl.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка stat объекта %s: %w", key, err)
	}

	opts := minio.GetObjectOptions{}
	if rng != nil {
		// SetRange принимает включающие границы [start, end]
		if err := opts.SetRange(rng.Start, rng.End); err != nil {
			return nil, fmt.Errorf("некорректный диапазон для %s: %w", key, err)
		}
	}

	obj, err := s.cl.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", key, err)
	}
	return obj, nil
}

// Head возвращает размер и content-type объекта.
func (s *S3Store) Head(ctx context.Context, key string) (*HeadInfo, error) {
	info, err := s.cl.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка stat объекта %s: %w", key, err)
	}
	return &HeadInfo{
		ContentLength: info.Size,
		ContentType:   info.ContentType,
	}, nil
}

// Exists проверяет существование объекта.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.cl.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка stat объекта %s: %w", key, err)
	}
	return true, nil
}

// Delete удаляет объект. Отсутствие ключа не является ошибкой.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.cl.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// DeleteTree удаляет все объекты с указанным префиксом
// (prefix-scan-and-delete: у объектного стораджа нет директорий).
func (s *S3Store) DeleteTree(ctx context.Context, prefix string) error {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	objects := s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("ошибка листинга префикса %s: %w", prefix, obj.Err)
		}
		if err := s.cl.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("ошибка удаления объекта %s: %w", obj.Key, err)
		}
	}
	return nil
}

// Проверка соответствия контракту на этапе компиляции
var _ Store = (*S3Store)(nil)
