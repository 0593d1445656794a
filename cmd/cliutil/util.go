package cliutil

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/labstack/gommon/color"

	"github.com/sidequest-dev/foreman/pkg/build"
)

func PrintHero(w io.Writer, publicURL string) {
	fmt.Fprintf(w, `
 _____ ___  ____  _____ __  __    _    _   _
|  ___/ _ \|  _ \| ____|  \/  |  / \  | \ | |
| |_ | | | | |_) |  _| | |\/| | / _ \ |  \| |
|  _|| |_| |  _ <| |___| |  | |/ ___ \| |\  |
|_|   \___/|_| \_\_____|_|  |_/_/   \_\_| \_|

⚒️  %s
🌐 %s
🚀 Ready!
`,
		color.Green(build.Version), publicURL)
}

func Mkdirp(dirpath ...string) (string, error) {
	dir := path.Join(dirpath...)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return "", fmt.Errorf("creating directory: %s: %w", dir, err)
	}
	return dir, nil
}
