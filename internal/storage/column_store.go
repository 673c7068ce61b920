package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/annel0/world-observer/internal/vec"
	"github.com/annel0/world-observer/internal/world"
)

const columnKeyPrefix = "column:"

// ErrStoreClosed - операция над закрытым хранилищем
var ErrStoreClosed = errors.New("storage: column store closed")

// ColumnStore хранит колонны в BadgerDB: JSON, сжатый zstd
type ColumnStore struct {
	db      *badger.DB
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	mutex   sync.RWMutex
	isReady bool
}

// columnRecord - формат хранения колонны
type columnRecord struct {
	X         int             `json:"x"`
	Z         int             `json:"z"`
	FullChunk bool            `json:"full_chunk"`
	Height    int             `json:"height"` // Число секций мира
	DecodedAt time.Time       `json:"decoded_at"`
	Sections  []sectionRecord `json:"sections"`
}

type sectionRecord struct {
	Y          int      `json:"y"`
	Palette    []uint32 `json:"palette,omitempty"`
	States     []uint32 `json:"states"`
	Biomes     []uint32 `json:"biomes"`
	BlockLight []byte   `json:"block_light"`
	SkyLight   []byte   `json:"sky_light,omitempty"`
}

// NewColumnStore открывает хранилище в каталоге path; inMemory - без диска (тесты)
func NewColumnStore(path string, inMemory bool) (*ColumnStore, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &ColumnStore{db: db, enc: enc, dec: dec, isReady: true}, nil
}

// Close закрывает хранилище
func (s *ColumnStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}
	s.isReady = false
	s.dec.Close()
	_ = s.enc.Close()
	return s.db.Close()
}

func columnKey(c vec.Coord2D) []byte {
	return []byte(columnKeyPrefix + c.Key())
}

func parseColumnKey(key []byte) (vec.Coord2D, error) {
	parts := strings.SplitN(strings.TrimPrefix(string(key), columnKeyPrefix), ":", 2)
	if len(parts) != 2 {
		return vec.Coord2D{}, fmt.Errorf("bad column key %q", key)
	}
	x, err := strconv.Atoi(parts[0])
	if err != nil {
		return vec.Coord2D{}, fmt.Errorf("bad column key %q: %w", key, err)
	}
	z, err := strconv.Atoi(parts[1])
	if err != nil {
		return vec.Coord2D{}, fmt.Errorf("bad column key %q: %w", key, err)
	}
	return vec.Coord2D{X: x, Z: z}, nil
}

func (s *ColumnStore) encode(col *world.Column) ([]byte, error) {
	rec := columnRecord{
		X:         col.Coords.X,
		Z:         col.Coords.Z,
		FullChunk: col.FullChunk,
		Height:    len(col.Sections),
		DecodedAt: col.DecodedAt,
	}
	for _, sec := range col.Sections {
		if sec == nil {
			continue
		}
		rec.Sections = append(rec.Sections, sectionRecord{
			Y:          sec.Y,
			Palette:    sec.Palette,
			States:     sec.States,
			Biomes:     sec.Biomes,
			BlockLight: sec.BlockLight,
			SkyLight:   sec.SkyLight,
		})
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return s.enc.EncodeAll(data, nil), nil
}

func (s *ColumnStore) decode(blob []byte) (*world.Column, error) {
	data, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	var rec columnRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	col := world.NewColumn(vec.Coord2D{X: rec.X, Z: rec.Z}, rec.Height)
	col.FullChunk = rec.FullChunk
	col.DecodedAt = rec.DecodedAt
	for _, sr := range rec.Sections {
		if sr.Y < 0 || sr.Y >= rec.Height {
			return nil, fmt.Errorf("section %d outside height %d", sr.Y, rec.Height)
		}
		col.Sections[sr.Y] = &world.Section{
			Y:          sr.Y,
			Palette:    sr.Palette,
			States:     sr.States,
			Biomes:     sr.Biomes,
			BlockLight: sr.BlockLight,
			SkyLight:   sr.SkyLight,
		}
	}
	return col, nil
}

// SaveColumns записывает колонны одним пакетом
func (s *ColumnStore) SaveColumns(cols []*world.Column) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return ErrStoreClosed
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, col := range cols {
		blob, err := s.encode(col)
		if err != nil {
			return fmt.Errorf("encode column %s: %w", col.Coords, err)
		}
		if err := wb.Set(columnKey(col.Coords), blob); err != nil {
			return fmt.Errorf("write column %s: %w", col.Coords, err)
		}
	}
	return wb.Flush()
}

// LoadColumn читает колонну; false, если ее нет
func (s *ColumnStore) LoadColumn(c vec.Coord2D) (*world.Column, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return nil, false, ErrStoreClosed
	}

	var col *world.Column
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(columnKey(c))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			col, err = s.decode(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load column %s: %w", c, err)
	}
	return col, true, nil
}

// Coords возвращает координаты сохраненных колонн в порядке (X, Z)
func (s *ColumnStore) Coords() ([]vec.Coord2D, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return nil, ErrStoreClosed
	}

	var coords []vec.Coord2D
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(columnKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			c, err := parseColumnKey(it.Item().Key())
			if err != nil {
				return err
			}
			coords = append(coords, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords, nil
}

// DeleteColumn удаляет колонну
func (s *ColumnStore) DeleteColumn(c vec.Coord2D) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(columnKey(c))
	})
}
