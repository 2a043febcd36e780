package steps

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// errInvalidPath — путь не представим в файловой системе ОС.
var errInvalidPath = errors.New("invalid path")

// copyFS — бэкпорт os.CopyFS (добавлен в Go 1.23) для сборки
// тулчейном Go 1.21. Повторяет поведение стандартной библиотеки:
// директории создаются с правами 0o777 (до umask), файлы — 0o666 плюс
// биты исполнения источника, существующие файлы не перезаписываются
// (fs.ErrExist), символические ссылки в источнике не поддерживаются
// (*PathError с ErrInvalid).
func copyFS(dir string, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		fpath, err := localizePath(path)
		if err != nil {
			return err
		}
		newPath := joinPath(dir, fpath)
		if d.IsDir() {
			return os.MkdirAll(newPath, 0777)
		}

		if !d.Type().IsRegular() {
			return &os.PathError{Op: "CopyFS", Path: path, Err: os.ErrInvalid}
		}

		r, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer r.Close()
		info, err := r.Stat()
		if err != nil {
			return err
		}
		w, err := os.OpenFile(newPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666|info.Mode()&0777)
		if err != nil {
			return err
		}

		if _, err := io.Copy(w, r); err != nil {
			w.Close()
			return &os.PathError{Op: "Copy", Path: newPath, Err: err}
		}
		return w.Close()
	})
}

// localizePath — аналог filepath.Localize (Go 1.23): проверяет
// slash-разделённый путь и приводит его к пути ОС.
func localizePath(path string) (string, error) {
	if !fs.ValidPath(path) {
		return "", errInvalidPath
	}
	for i := 0; i < len(path); i++ {
		if path[i] == 0 {
			return "", errInvalidPath
		}
	}
	return filepath.FromSlash(path), nil
}

// joinPath — аналог внутреннего os.joinPath: соединяет каталог и имя
// без нормализации пути.
func joinPath(dir, name string) string {
	if len(dir) > 0 && os.IsPathSeparator(dir[len(dir)-1]) {
		return dir + name
	}
	return dir + string(os.PathSeparator) + name
}
