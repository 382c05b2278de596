// Пакет docstore — JSON-документы поверх blob.Store.
//
// Семантика чтения: отсутствующий документ — это пустая коллекция,
// а не ошибка; повреждённый документ деградирует до fallback,
// не роняя сервис.
//
// Все read-modify-write последовательности над одним документом
// сериализуются через Mutator: на каждый ключ — свой мьютекс,
// что устраняет гонку lost update при конкурентных загрузках/удалениях,
// сохраняя внешний контракт read/write без изменений.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/immerse-zhaw/asset-hub/internal/storage/blob"
)

// Read читает и парсит JSON-документ под ключом key.
// Отсутствующий или повреждённый документ → fallback без ошибки.
// Ошибки ввода-вывода при чтении существующего документа возвращаются как есть.
func Read[T any](ctx context.Context, st blob.Store, key string, fallback T) (T, error) {
	rc, err := st.GetStream(ctx, key, nil)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fallback, nil
		}
		return fallback, fmt.Errorf("чтение документа %s: %w", key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fallback, fmt.Errorf("чтение документа %s: %w", key, err)
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		// Повреждённый документ деградирует до fallback
		return fallback, nil
	}
	return doc, nil
}

// Write сериализует документ с отступами и целиком замещает его под ключом.
func Write[T any](ctx context.Context, st blob.Store, key string, doc T) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация документа %s: %w", key, err)
	}
	if _, err := st.Put(ctx, key, "application/json", bytes.NewReader(data)); err != nil {
		return fmt.Errorf("запись документа %s: %w", key, err)
	}
	return nil
}

// Mutator — владелец read-modify-write последовательностей над документами.
// Потокобезопасен: мутации одного ключа выполняются строго по одной.
type Mutator struct {
	st    blob.Store
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMutator создаёт Mutator поверх хранилища.
func NewMutator(st blob.Store) *Mutator {
	return &Mutator{
		st:    st,
		locks: make(map[string]*sync.Mutex),
	}
}

// Store возвращает нижележащее хранилище (для прямых чтений без мутации).
func (m *Mutator) Store() blob.Store {
	return m.st
}

// lockFor возвращает мьютекс документа, создавая его при первом обращении.
func (m *Mutator) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Update атомарно (относительно других Update того же ключа) применяет
// fn к текущему содержимому документа и записывает результат.
// fn получает документ (или fallback) и возвращает новое содержимое.
// Ошибка fn отменяет запись и возвращается вызывающему.
func Update[T any](ctx context.Context, m *Mutator, key string, fallback T, fn func(T) (T, error)) (T, error) {
	l := m.lockFor(key)
	l.Lock()
	defer l.Unlock()

	doc, err := Read(ctx, m.st, key, fallback)
	if err != nil {
		return fallback, err
	}

	updated, err := fn(doc)
	if err != nil {
		return fallback, err
	}

	if err := Write(ctx, m.st, key, updated); err != nil {
		return fallback, err
	}
	return updated, nil
}
