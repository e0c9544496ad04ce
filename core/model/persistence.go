package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// SaveModel は学習済みモデルを gob 形式で path に書き出す
//
// 同じディレクトリの一時ファイルに書いてから rename するため、途中で失敗しても
// 既存のファイルは壊れない。モデルは gob.GobEncoder を実装するか、公開フィールドだけで
// 状態を表現している必要がある。
func SaveModel(m interface{}, path string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = encodeGob(tmp, m); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename to %s", path)
	}
	return nil
}

// LoadModel は SaveModel が書いたファイルを m に復元する
func LoadModel(m interface{}, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return decodeGob(f, m)
}

func encodeGob(w io.Writer, m interface{}) error {
	return errors.Wrapf(gob.NewEncoder(w).Encode(m), "encode %T", m)
}

func decodeGob(r io.Reader, m interface{}) error {
	return errors.Wrapf(gob.NewDecoder(r).Decode(m), "decode %T", m)
}
