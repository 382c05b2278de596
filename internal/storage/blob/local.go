// local.go — бэкенд хранилища на локальной файловой системе.
// Ключи отображаются на пути внутри корневой директории.
// Паттерн записи: temp файл → fsync → atomic rename.
package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore — хранилище на локальной ФС под корнем root.
type LocalStore struct {
	root string
}

// NewLocal создаёт LocalStore. Создаёт корневую директорию при отсутствии.
func NewLocal(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("не удалось определить абсолютный путь %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать корневую директорию %s: %w", abs, err)
	}
	return &LocalStore{root: abs}, nil
}

// Root возвращает корневую директорию хранилища.
func (s *LocalStore) Root() string {
	return s.root
}

// safeJoin канонизирует ключ и отклоняет ключи, выходящие за пределы
// корня хранилища (защита от path traversal).
func (s *LocalStore) safeJoin(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("пустой ключ хранилища")
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("недопустимый ключ хранилища: %q", key)
	}
	full := filepath.Join(s.root, cleaned)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("недопустимый ключ хранилища: %q", key)
	}
	return full, nil
}

// Put записывает тело под ключом. contentType локальный бэкенд не хранит:
// при Head тип восстанавливается из расширения ключа.
func (s *LocalStore) Put(ctx context.Context, key, contentType string, body io.Reader) (int64, error) {
	full, err := s.safeJoin(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return 0, fmt.Errorf("не удалось создать директорию для %s: %w", key, err)
	}

	tmpPath := full + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	written, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи данных под ключом %s: %w", key, err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Атомарный rename
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return written, nil
}

// sectionReadCloser — оконное чтение поверх открытого файла.
type sectionReadCloser struct {
	*io.SectionReader
	f *os.File
}

func (s *sectionReadCloser) Close() error {
	return s.f.Close()
}

// GetStream открывает поток чтения, опционально ограниченный окном rng.
// Границы окна не проверяются на выход за размер файла: чтение за EOF
// завершится коротким io.EOF — валидация диапазона лежит на вызывающем коде.
func (s *LocalStore) GetStream(ctx context.Context, key string, rng *ByteRange) (io.ReadCloser, error) {
	full, err := s.safeJoin(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка открытия %s: %w", key, err)
	}

	if rng == nil {
		return f, nil
	}

	return &sectionReadCloser{
		SectionReader: io.NewSectionReader(f, rng.Start, rng.End-rng.Start+1),
		f:             f,
	}, nil
}

// Head возвращает размер и content-type (по расширению ключа).
func (s *LocalStore) Head(ctx context.Context, key string) (*HeadInfo, error) {
	full, err := s.safeJoin(key)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка stat %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	contentType := mime.TypeByExtension(filepath.Ext(full))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &HeadInfo{
		ContentLength: info.Size(),
		ContentType:   contentType,
	}, nil
}

// Exists проверяет существование ключа.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	full, err := s.safeJoin(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("ошибка stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Delete удаляет ключ. Отсутствие ключа не является ошибкой.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	full, err := s.safeJoin(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления %s: %w", key, err)
	}
	return nil
}

// DeleteTree удаляет все ключи с указанным префиксом.
func (s *LocalStore) DeleteTree(ctx context.Context, prefix string) error {
	full, err := s.safeJoin(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("ошибка удаления поддерева %s: %w", prefix, err)
	}
	return nil
}

// Проверка соответствия контракту на этапе компиляции
var _ Store = (*LocalStore)(nil)
