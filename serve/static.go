package serve

import (
	"embed"
	"io/fs"
	"os"

	assetfs "github.com/elazarl/go-bindata-assetfs"
)

//go:embed web
var webFS embed.FS

// Assets exposes the embedded web frontend as an http.FileSystem.
func Assets() *assetfs.AssetFS {
	return &assetfs.AssetFS{
		Asset: webFS.ReadFile,
		AssetDir: func(name string) ([]string, error) {
			entries, err := webFS.ReadDir(name)
			if err != nil {
				return nil, err
			}
			var names []string
			for _, e := range entries {
				names = append(names, e.Name())
			}
			return names, nil
		},
		AssetInfo: func(name string) (os.FileInfo, error) {
			return fs.Stat(webFS, name)
		},
		Prefix: "web",
	}
}
