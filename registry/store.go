package registry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/YuminosukeSato/automl/core/model"
	"github.com/YuminosukeSato/automl/pkg/errors"
	applog "github.com/YuminosukeSato/automl/pkg/log"
)

const (
	indexFile   = "index.json"
	modelsDir   = "models"
	bundleExt   = ".gob"
	dirPerm     = 0o755
	indexPerm   = 0o644
)

// Store はディスク上のモデルレジストリ。
// インデックス全体をメモリに保持し、全ての変更を単一のミューテックスで
// 直列化した上でアトミックにディスクへ反映する。予測パスからの
// 利用実績の追記が並行しても失われない。
type Store struct {
	dir string

	mu    sync.Mutex
	index map[string]*ModelRecord
}

// Open はディレクトリをレジストリとして開く。なければ作成する。
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, modelsDir), dirPerm); err != nil {
		return nil, errors.NewPersistenceError("open", dir, err)
	}

	s := &Store{dir: dir, index: make(map[string]*ModelRecord)}

	path := filepath.Join(dir, indexFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("open", path, err)
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return nil, errors.NewPersistenceError("open", path, err)
	}
	return s, nil
}

// Dir はレジストリのルートディレクトリを返す
func (s *Store) Dir() string {
	return s.dir
}

// Create はモデルレコードと（あれば）gobバンドルを永続化する。
// バンドルを先に書き、インデックスの書き込みに失敗した場合は
// バンドルを消して以前の状態に戻す。両方成功するか、何も残らないか。
func (s *Store) Create(rec *ModelRecord, bundle *Bundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[rec.ModelID]; ok {
		return errors.NewValidationError("modelId", "already exists", rec.ModelID)
	}

	bundleWritten := false
	if bundle != nil {
		if err := s.writeBundle(rec.ModelID, bundle); err != nil {
			return err
		}
		bundleWritten = true
	}

	s.index[rec.ModelID] = rec.clone()
	if err := s.saveIndexLocked(); err != nil {
		delete(s.index, rec.ModelID)
		if bundleWritten {
			os.Remove(s.bundlePath(rec.ModelID))
		}
		return err
	}

	slog.Info("model persisted",
		slog.String(applog.ModelIDKey, rec.ModelID),
		slog.String(applog.AlgorithmKey, rec.AlgorithmName),
		slog.String(applog.OperationKey, "persist"))
	return nil
}

// Get はレコードの読み取り専用コピーを返す。バンドルは読み込まない。
func (s *Store) Get(modelID string) (*ModelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[modelID]
	if !ok {
		return nil, errors.NewNotFoundError(modelID)
	}
	return rec.clone(), nil
}

// List は作成日時の新しい順に全レコードのコピーを返す
func (s *Store) List() []*ModelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*ModelRecord, 0, len(s.index))
	for _, rec := range s.index {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

// Delete はインデックスのエントリとgobバンドルを一緒に削除する
func (s *Store) Delete(modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[modelID]
	if !ok {
		return errors.NewNotFoundError(modelID)
	}

	delete(s.index, modelID)
	if err := s.saveIndexLocked(); err != nil {
		s.index[modelID] = rec
		return err
	}

	// インデックスから消えた後のバンドル削除失敗は孤児ファイルを残すだけで、
	// レコードの可視性には影響しない
	if err := os.Remove(s.bundlePath(modelID)); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove model bundle",
			slog.String(applog.ModelIDKey, modelID),
			applog.ErrAttr(err))
	}
	return nil
}

// RecordUsage は1回の予測呼び出しの利用実績とリソースサンプルを追記する。
// 同一モデルへの並行predictからの追記はストアのミューテックスで直列化される。
func (s *Store) RecordUsage(modelID, userID string, sample ResourceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.index[modelID]
	if !ok {
		return errors.NewNotFoundError(modelID)
	}

	rec.Usage.TotalCalls++
	rec.Usage.addUser(userID)
	rec.Usage.LastUsed = sample.Timestamp
	rec.ResourceMonitoring = append(rec.ResourceMonitoring, sample)

	return s.saveIndexLocked()
}

// LoadBundle はgobバンドルを読み込む
func (s *Store) LoadBundle(modelID string) (*Bundle, error) {
	s.mu.Lock()
	_, ok := s.index[modelID]
	s.mu.Unlock()
	if !ok {
		return nil, errors.NewNotFoundError(modelID)
	}

	path := s.bundlePath(modelID)
	var bundle Bundle
	if err := model.LoadModel(&bundle, path); err != nil {
		return nil, errors.NewPersistenceError("load bundle", path, err)
	}
	return &bundle, nil
}

// Exists はモデルIDがインデックスに存在するかを返す
func (s *Store) Exists(modelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[modelID]
	return ok
}

func (s *Store) bundlePath(modelID string) string {
	return filepath.Join(s.dir, modelsDir, modelID+bundleExt)
}

// writeBundle はgobバンドルを一時ファイル経由でアトミックに書き込む
func (s *Store) writeBundle(modelID string, bundle *Bundle) error {
	path := s.bundlePath(modelID)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return errors.NewPersistenceError("write bundle", tmp, err)
	}
	if err := model.SaveModelToWriter(bundle, f); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewPersistenceError("write bundle", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewPersistenceError("write bundle", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewPersistenceError("write bundle", path, err)
	}
	return nil
}

// saveIndexLocked はインデックス全体をアトミックに書き換える。
// 呼び出し側がs.muを保持していること。
func (s *Store) saveIndexLocked() error {
	path := filepath.Join(s.dir, indexFile)
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return errors.NewPersistenceError("save index", path, err)
	}
	if err := os.WriteFile(tmp, data, indexPerm); err != nil {
		return errors.NewPersistenceError("save index", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.NewPersistenceError("save index", path, err)
	}
	return nil
}
